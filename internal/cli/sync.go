package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

var syncFull bool

var syncCmd = &cobra.Command{
	Use:   "sync [account-id]",
	Short: "Synchronise documents from connected accounts",
	Long: `Runs a sync for one account, or for every syncable account of the
user when no account id is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "force a complete re-listing")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	req := domain.SyncRequest{Full: syncFull}

	if len(args) == 1 {
		accountID := args[0]
		cmd.Printf("Syncing account %s...\n", accountID)

		result, err := syncWithProgress(cmd, a, accountID, req)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		printResult(cmd, accountID, result)
		return nil
	}

	cmd.Println("Syncing all accounts...")
	results, err := a.orchestrator.SyncAll(ctx, userFlag)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if len(results) == 0 {
		cmd.Println("No syncable accounts.")
		return nil
	}
	for accountID, result := range results {
		printResult(cmd, accountID, result)
	}
	return nil
}

// syncWithProgress runs the sync in the background and ticks a status
// line while it is in flight.
func syncWithProgress(cmd *cobra.Command, a *app, accountID string, req domain.SyncRequest) (*domain.SyncResult, error) {
	type outcome struct {
		result *domain.SyncResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := a.orchestrator.Sync(cmd.Context(), accountID, req)
		done <- outcome{result, err}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case out := <-done:
			cmd.Print("\r")
			return out.result, out.err
		case <-ticker.C:
			if a.orchestrator.Status(accountID).Running {
				cmd.Print("\rSyncing...")
			}
		}
	}
}

func printResult(cmd *cobra.Command, accountID string, result *domain.SyncResult) {
	cmd.Printf("%s: %d listed, %d new, %d updated, %d deleted, %d failed (%.1fs)\n",
		accountID, result.Total, result.New, result.Updated, result.Deleted,
		result.Failed, float64(result.DurationMs)/1000)
	for _, msg := range result.Errors {
		cmd.Printf("  error: %s\n", msg)
	}
}
