// Package dict talks to the external vocabulary provider: given a headword
// it returns translated definitions, transliteration, and example sentences,
// or reports that the word is unknown along with spelling suggestions.
package dict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is the provider's structured lexical data for one headword. The
// scheduler treats it as opaque; it is stored alongside the word and rendered
// on card backs.
type Entry struct {
	Headword    string       `json:"headword"`
	Pinyin      string       `json:"pinyin,omitempty"`
	Definitions []Definition `json:"definitions"`
}

// Definition is one sense of a headword.
type Definition struct {
	PartOfSpeech string    `json:"part_of_speech,omitempty"`
	Meaning      string    `json:"meaning"`
	Examples     []Example `json:"examples,omitempty"`
}

// Example is one usage sentence with its translation.
type Example struct {
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
}

// NotFoundError reports that the provider does not know the word. Suggestions
// carries the provider's "did you mean" candidates, possibly empty.
type NotFoundError struct {
	Word        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("dict: unknown word %q", e.Word)
	}
	return fmt.Sprintf("dict: unknown word %q (did you mean: %s)", e.Word, strings.Join(e.Suggestions, ", "))
}

// IsNotFound reports whether err is a provider unknown-word response.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Client communicates with the vocabulary provider over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// Concurrent lookups for the same headword collapse into one request.
	group singleflight.Group
}

// New creates a Client targeting the given provider base URL. The API key may
// be empty for providers that don't require one.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{},
	}
}

// errorResponse mirrors the provider's non-200 JSON body.
type errorResponse struct {
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Lookup fetches the lexical entry for a word. forceRefresh asks the provider
// to bypass its own cache. An unknown word returns a *NotFoundError.
func (c *Client) Lookup(ctx context.Context, word string, forceRefresh bool) (*Entry, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return nil, errors.New("dict: empty word")
	}

	// Refresh requests skip deduplication: the point is to hit the provider.
	if forceRefresh {
		return c.lookup(ctx, word, true)
	}

	v, err, _ := c.group.Do(word, func() (any, error) {
		return c.lookup(ctx, word, false)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (c *Client) lookup(ctx context.Context, word string, forceRefresh bool) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	u := c.baseURL + "/v1/entries/" + url.PathEscape(word)
	if forceRefresh {
		u += "?refresh=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating lookup request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var entry Entry
		if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
			return nil, fmt.Errorf("decoding lookup response: %w", err)
		}
		if entry.Headword == "" {
			entry.Headword = word
		}
		return &entry, nil

	case resp.StatusCode == http.StatusNotFound:
		var er errorResponse
		// A plain 404 body is still a valid unknown-word signal.
		_ = json.NewDecoder(resp.Body).Decode(&er)
		return nil, &NotFoundError{Word: word, Suggestions: er.Suggestions}

	default:
		return nil, fmt.Errorf("lookup %q: unexpected status %d", word, resp.StatusCode)
	}
}
