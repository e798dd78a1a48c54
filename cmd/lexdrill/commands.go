package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexdrill/lexdrill/internal/config"
)

// wordView mirrors the server's word payload.
type wordView struct {
	ID       string `json:"id"`
	Headword string `json:"headword"`
	Lexical  string `json:"lexical"`
	Schedule struct {
		IntervalDays float64   `json:"interval_days"`
		EaseFactor   float64   `json:"ease_factor"`
		NextReviewAt time.Time `json:"next_review_at"`
		Learned      bool      `json:"learned"`
	} `json:"schedule"`
	CreatedAt time.Time `json:"created_at"`
}

// entryView mirrors the provider entry stored in a word's lexical payload.
type entryView struct {
	Headword    string `json:"headword"`
	Pinyin      string `json:"pinyin"`
	Definitions []struct {
		PartOfSpeech string `json:"part_of_speech"`
		Meaning      string `json:"meaning"`
		Examples     []struct {
			Text        string `json:"text"`
			Translation string `json:"translation"`
		} `json:"examples"`
	} `json:"definitions"`
}

func printEntry(e entryView) {
	if e.Pinyin != "" {
		fmt.Printf("  %s\n", colorize(colorCyan, e.Pinyin))
	}
	for i, d := range e.Definitions {
		meaning := d.Meaning
		if d.PartOfSpeech != "" {
			meaning = fmt.Sprintf("(%s) %s", d.PartOfSpeech, meaning)
		}
		fmt.Printf("  %d. %s\n", i+1, meaning)
		for _, ex := range d.Examples {
			fmt.Printf("     %s\n", ex.Text)
			if ex.Translation != "" {
				fmt.Printf("     %s\n", colorize(colorYellow, ex.Translation))
			}
		}
	}
}

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add <word>",
	Short: "Look up a word and save it to the deck",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/words", map[string]any{
			"headword": args[0],
			"refresh":  refresh,
		})
		if err != nil {
			return err
		}

		if resp.StatusCode == 422 {
			var body struct {
				Suggestions []string `json:"suggestions"`
			}
			if err := decodeUnknownWord(resp, &body); err != nil {
				return err
			}
			printError("Unknown word: %s", args[0])
			if len(body.Suggestions) > 0 {
				fmt.Printf("Did you mean: %s\n", strings.Join(body.Suggestions, ", "))
			}
			return fmt.Errorf("word not found")
		}

		var word wordView
		if err := decodeJSON(resp, &word); err != nil {
			return err
		}

		if resp.StatusCode == 200 {
			printWarning("Already in deck (next review %s)", word.Schedule.NextReviewAt.Local().Format("2006-01-02"))
			return nil
		}

		printSuccess("Saved %s", word.Headword)
		var entry entryView
		if json.Unmarshal([]byte(word.Lexical), &entry) == nil {
			printEntry(entry)
		}
		return nil
	},
}

func init() {
	addCmd.Flags().Bool("refresh", false, "bypass the provider cache")
}

// --- lookup ---

var lookupCmd = &cobra.Command{
	Use:   "lookup <word>",
	Short: "Look up a word without saving it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/lookup?q=" + url.QueryEscape(args[0])
		if refresh {
			path += "&refresh=true"
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		if resp.StatusCode == 404 {
			var body struct {
				Suggestions []string `json:"suggestions"`
			}
			if err := decodeUnknownWord(resp, &body); err != nil {
				return err
			}
			printError("Unknown word: %s", args[0])
			if len(body.Suggestions) > 0 {
				fmt.Printf("Did you mean: %s\n", strings.Join(body.Suggestions, ", "))
			}
			return fmt.Errorf("word not found")
		}

		var entry entryView
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}

		fmt.Println(colorize(colorBold, entry.Headword))
		printEntry(entry)
		return nil
	},
}

func init() {
	lookupCmd.Flags().Bool("refresh", false, "bypass the provider cache")
}

// decodeUnknownWord reads an unknown-word error body without treating the
// status code as a transport failure, unlike decodeJSON.
func decodeUnknownWord(resp *http.Response, v any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved words",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/words?limit=%d&offset=%d", limit, offset))
		if err != nil {
			return err
		}

		var words []wordView
		if err := decodeJSON(resp, &words); err != nil {
			return err
		}

		if len(words) == 0 {
			fmt.Println("No words saved yet.")
			return nil
		}

		now := time.Now()
		for _, w := range words {
			due := w.Schedule.NextReviewAt.Local().Format("2006-01-02")
			switch {
			case w.Schedule.Learned:
				due = colorize(colorGreen, "learned")
			case !w.Schedule.NextReviewAt.After(now):
				due = colorize(colorYellow, "due now")
			}
			fmt.Printf("%s  %-12s %s\n",
				colorize(colorCyan, w.ID[:8]),
				due,
				colorize(colorBold, w.Headword),
			)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().Int("limit", 20, "maximum number of words to list")
	listCmd.Flags().Int("offset", 0, "number of words to skip")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent dictionary lookups",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var lookups []struct {
			Term      string    `json:"term"`
			Found     bool      `json:"found"`
			CreatedAt time.Time `json:"created_at"`
		}
		if err := decodeJSON(resp, &lookups); err != nil {
			return err
		}

		if len(lookups) == 0 {
			fmt.Println("No lookups yet.")
			return nil
		}

		for _, l := range lookups {
			mark := colorize(colorGreen, "✓")
			if !l.Found {
				mark = colorize(colorRed, "✗")
			}
			fmt.Printf("%s  %s  %s\n", mark, l.CreatedAt.Local().Format("2006-01-02 15:04"), l.Term)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of lookups to show")
}

// --- defer / learned / rm ---

var deferCmd = &cobra.Command{
	Use:   "defer <id>",
	Short: "Push a word to the end of the list without rescheduling it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/words/"+args[0]+"/defer", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deferred %s", args[0])
		return nil
	},
}

var learnedCmd = &cobra.Command{
	Use:   "learned <id>",
	Short: "Mark a word as mastered so it leaves the review rotation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		undo, _ := cmd.Flags().GetBool("undo")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/words/"+args[0]+"/learned", map[string]any{
			"learned": !undo,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if undo {
			printSuccess("Word %s is back in rotation", args[0])
		} else {
			printSuccess("Marked %s as learned", args[0])
		}
		return nil
	},
}

func init() {
	learnedCmd.Flags().Bool("undo", false, "put the word back into the review rotation")
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a word from the deck",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/words/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted %s", args[0])
		return nil
	},
}

// --- review ---

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Start an interactive review session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		resp, err := client.post(ctx, "/review/sessions", nil)
		if err != nil {
			return err
		}

		var session struct {
			ID        string `json:"id"`
			Policy    string `json:"policy"`
			Remaining int    `json:"remaining"`
		}
		if err := decodeJSON(resp, &session); err != nil {
			return err
		}
		defer func() {
			if resp, err := client.delete(ctx, "/review/sessions/"+session.ID); err == nil {
				resp.Body.Close()
			}
		}()

		if session.Remaining == 0 {
			fmt.Println("Nothing due — come back later.")
			return nil
		}
		fmt.Printf("%d words due (%s policy). Press Enter to reveal, then rate.\n\n",
			session.Remaining, session.Policy)

		ratings := "[a]gain  [g]ood  [e]asy  [q]uit"
		keys := map[string]string{"a": "again", "g": "good", "e": "easy"}
		if session.Policy == "skip" {
			ratings = "[a]gain  [d]one  [q]uit"
			keys = map[string]string{"a": "again", "d": "done"}
		}

		stdin := bufio.NewScanner(os.Stdin)
		reviewed := 0
		for {
			resp, err := client.get(ctx, "/review/sessions/"+session.ID+"/next")
			if err != nil {
				return err
			}

			var next struct {
				Done      bool      `json:"done"`
				Remaining int       `json:"remaining"`
				Card      *wordView `json:"card"`
			}
			if err := decodeJSON(resp, &next); err != nil {
				return err
			}
			if next.Done {
				break
			}

			fmt.Printf("%s  (%d left)\n", colorize(colorBold, next.Card.Headword), next.Remaining)
			if !stdin.Scan() {
				return nil
			}

			var entry entryView
			if json.Unmarshal([]byte(next.Card.Lexical), &entry) == nil {
				printEntry(entry)
			}

			rating := ""
			for rating == "" {
				fmt.Printf("%s ", ratings)
				if !stdin.Scan() {
					return nil
				}
				input := strings.ToLower(strings.TrimSpace(stdin.Text()))
				if input == "q" {
					fmt.Printf("\nStopped after %d cards.\n", reviewed)
					return nil
				}
				rating = keys[input]
			}

			resp, err = client.post(ctx, "/review/sessions/"+session.ID+"/rate", map[string]any{
				"word_id": next.Card.ID,
				"rating":  rating,
			})
			if err != nil {
				return err
			}
			var result map[string]any
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			reviewed++
			fmt.Println()
		}

		printSuccess("Session complete: %d cards reviewed", reviewed)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
