package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lexdrill/lexdrill/internal/dict"
	"github.com/lexdrill/lexdrill/internal/srs"
	"github.com/lexdrill/lexdrill/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store *storage.Store
	Dict  Lexicon
}

// NewMCPServer creates an MCP server exposing the deck to local agents:
// dictionary lookups, saving words, and due-card counts.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"lexdrill",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("lexdrill — local vocabulary deck with spaced-repetition scheduling."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("lookup_word",
			mcp.WithDescription("Look up a word in the dictionary provider and return its definitions, transliteration, and examples."),
			mcp.WithString("word", mcp.Description("The headword to look up"), mcp.Required()),
			mcp.WithBoolean("refresh", mcp.Description("Bypass the provider cache")),
		),
		mcpLookupWord(deps),
	)

	s.AddTool(
		mcp.NewTool("save_word",
			mcp.WithDescription("Save a word to the vocabulary deck so it enters the review rotation."),
			mcp.WithString("word", mcp.Description("The headword to save"), mcp.Required()),
		),
		mcpSaveWord(deps),
	)

	s.AddTool(
		mcp.NewTool("due_count",
			mcp.WithDescription("Return the number of words currently due for review."),
		),
		mcpDueCount(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"deck://recent",
			"Recently Saved Words",
			mcp.WithResourceDescription("Last 10 words added to the deck"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentWords(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"deck://history",
			"Lookup History",
			mcp.WithResourceDescription("Last 20 dictionary lookups"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

func mcpLookupWord(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		word, err := req.RequireString("word")
		if err != nil {
			return mcpError("word is required"), nil
		}
		refresh := req.GetBool("refresh", false)

		entry, err := deps.Dict.Lookup(ctx, word, refresh)
		recordLookup(deps.Store, strings.ToLower(strings.TrimSpace(word)), err == nil)
		if dict.IsNotFound(err) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		b, err := json.Marshal(entry)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entry: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSaveWord(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("word")
		if err != nil {
			return mcpError("word is required"), nil
		}
		headword := strings.ToLower(strings.TrimSpace(raw))
		if headword == "" {
			return mcpError("word is required"), nil
		}

		if existing, err := deps.Store.GetWordByHeadword(headword); err == nil {
			return mcpText(fmt.Sprintf("Already in deck as %s (next review %s)",
				existing.ID, existing.Schedule.NextReviewAt.Format("2006-01-02"))), nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("failed to check existing word: %v", err)), nil
		}

		entry, err := deps.Dict.Lookup(ctx, headword, false)
		recordLookup(deps.Store, headword, err == nil)
		if dict.IsNotFound(err) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		lexical, err := json.Marshal(entry)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode lexical data: %v", err)), nil
		}

		now := time.Now().UTC()
		word := storage.Word{
			ID:        uuid.New().String(),
			Headword:  headword,
			Lexical:   string(lexical),
			Schedule:  srs.NewScheduleState(now),
			CreatedAt: now,
		}
		if err := deps.Store.CreateWord(word); err != nil {
			return mcpError(fmt.Sprintf("failed to save word: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Saved %s as %s", headword, word.ID)), nil
	}
}

func mcpDueCount(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		count, err := deps.Store.CountDue(time.Now().UTC(), nil)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to count due words: %v", err)), nil
		}
		return mcpText(fmt.Sprintf(`{"due":%d}`, count)), nil
	}
}

func mcpResourceRecentWords(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		words, err := deps.Store.ListWords(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list words: %w", err)
		}

		type wordSummary struct {
			ID           string `json:"id"`
			Headword     string `json:"headword"`
			NextReviewAt string `json:"next_review_at"`
			Learned      bool   `json:"learned"`
		}

		summaries := make([]wordSummary, len(words))
		for i, w := range words {
			summaries[i] = wordSummary{
				ID:           w.ID,
				Headword:     w.Headword,
				NextReviewAt: w.Schedule.NextReviewAt.Format(time.RFC3339),
				Learned:      w.Schedule.Learned,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal words: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		lookups, err := deps.Store.RecentLookups(20)
		if err != nil {
			return nil, fmt.Errorf("failed to list lookups: %w", err)
		}

		type lookupSummary struct {
			Term      string `json:"term"`
			Found     bool   `json:"found"`
			CreatedAt string `json:"created_at"`
		}

		summaries := make([]lookupSummary, len(lookups))
		for i, l := range lookups {
			summaries[i] = lookupSummary{
				Term:      l.Term,
				Found:     l.Found,
				CreatedAt: l.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal lookups: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
