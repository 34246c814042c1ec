package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

var (
	searchLimit int
	searchTags  []string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var autocompleteCmd = &cobra.Command{
	Use:   "autocomplete <prefix>",
	Short: "Suggest completions for a prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runAutocomplete,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "keep only results carrying one of these tags")
	autocompleteCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of suggestions")
	rootCmd.AddCommand(searchCmd, autocompleteCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Warm the in-memory index from the store before querying.
	if err := warmIndex(cmd, a); err != nil {
		return err
	}

	var filters *domain.SearchFilters
	if len(searchTags) > 0 {
		filters = &domain.SearchFilters{Tags: searchTags}
	}

	query := strings.Join(args, " ")
	results, err := a.search.Search(cmd.Context(), query, searchLimit, filters)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		cmd.Println("No results.")
		return nil
	}
	for i, r := range results {
		cmd.Printf("%2d. %s (score %.2f)\n", i+1, r.Document.Title, r.Score)
		if snippet := makeSnippet(r.Document.Content); snippet != "" {
			cmd.Printf("    %s\n", snippet)
		}
	}
	return nil
}

func runAutocomplete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := warmIndex(cmd, a); err != nil {
		return err
	}
	for _, word := range a.search.Autocomplete(args[0], searchLimit) {
		cmd.Println(word)
	}
	return nil
}

// warmIndex replays stored documents into the realtime index so trie
// and tag lookups work across process restarts. Full-text matches come
// from the durable FTS backend either way.
func warmIndex(cmd *cobra.Command, a *app) error {
	accounts, err := a.store.AccountStore().ListAccounts(cmd.Context(), userFlag)
	if err != nil {
		return err
	}
	for i := range accounts {
		rows, err := a.store.DocumentStore().ListDocuments(cmd.Context(), accounts[i].ID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if row.IndexedAt == nil {
				continue
			}
			a.index.Warm(domain.SearchDocument{
				ID:        row.ID,
				Title:     row.Name,
				Tags:      []string{string(row.ConnectorType), string(row.ContentType)},
				Timestamp: *row.IndexedAt,
				Score:     1,
			})
		}
	}
	return nil
}

func makeSnippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) > 120 {
		content = content[:120] + "..."
	}
	return content
}
