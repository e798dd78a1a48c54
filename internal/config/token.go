package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// The CLI and server share a bearer token so only local commands can hit the
// management API. It lives next to the database, not in the config file, so
// `config show` output stays safe to paste.
func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

// GetAPIToken returns the API bearer token, generating and persisting one on
// first use.
func GetAPIToken() (string, error) {
	p := secretsFilePath()

	secrets := make(map[string]string)
	if data, err := os.ReadFile(p); err == nil {
		_ = json.Unmarshal(data, &secrets)
	}

	if token := strings.TrimSpace(secrets["api_token"]); token != "" {
		return token, nil
	}

	token := uuid.New().String()
	secrets["api_token"] = token

	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return "", fmt.Errorf("creating secrets dir: %w", err)
	}
	data, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("writing secrets file: %w", err)
	}
	return token, nil
}
