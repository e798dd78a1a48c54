package config

type Config struct {
	Server  ServerConfig
	Dict    DictConfig
	Storage StorageConfig
	Review  ReviewConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type DictConfig struct {
	BaseURL string
	APIKey  string
}

type StorageConfig struct {
	DataDir string
}

type ReviewConfig struct {
	// Policy selects the scheduling strategy: "sm2" (three-outcome
	// SM-2 derived) or "skip" (two-outcome defer/dequeue).
	Policy string

	// BatchSize is how many due candidates one queue selection fetches.
	BatchSize int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Dict: DictConfig{
			BaseURL: "https://dict.lexdrill.dev",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Review: ReviewConfig{
			Policy:    "sm2",
			BatchSize: 8,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/lexdrill/config.json, then applies LEXDRILL_* environment
// variable overrides. Secrets (the dict API key) come from the environment
// only.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
