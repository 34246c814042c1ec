package cli

import (
	"fmt"
	"path"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/incremental"
	"github.com/openindex-dev/openindex/internal/logger"
)

var (
	followChannel string
	followWindow  time.Duration
)

// followBatchLimit flushes a delta batch even while events keep coming.
const followBatchLimit = 100

var followCmd = &cobra.Command{
	Use:   "follow <account-id>",
	Short: "Apply change notifications to an account's index",
	Long: `Subscribes to the redis change channel and applies incoming
notifications as delta syncs: changed documents are re-fetched and
re-indexed, deleted documents are dropped. Runs until interrupted.
Requires redis_addr in the config (or OPENINDEX_REDIS_ADDR).`,
	Args: cobra.ExactArgs(1),
	RunE: runFollow,
}

func init() {
	followCmd.Flags().StringVar(&followChannel, "channel", "openindex:documents", "redis pub/sub channel")
	followCmd.Flags().DurationVar(&followWindow, "window", 2*time.Second, "batching window before a delta sync is applied")
	rootCmd.AddCommand(followCmd)
}

func runFollow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.RedisAddr == "" {
		return fmt.Errorf("%w: redis_addr is not configured", domain.ErrInvalidConfiguration)
	}
	accountID := args[0]
	ctx := cmd.Context()

	client := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
	defer client.Close()

	notifier := incremental.NewNotifier(client, followChannel)
	if err := notifier.EnsureChannel(ctx); err != nil {
		return err
	}
	events, err := notifier.Listen(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("Following %s for account %s...\n", followChannel, accountID)

	var batch []domain.SourceDocument
	timer := time.NewTimer(followWindow)
	if !timer.Stop() {
		<-timer.C
	}

	apply := func() {
		if len(batch) == 0 {
			return
		}
		result, err := a.orchestrator.DeltaSync(ctx, accountID, batch)
		if err != nil {
			logger.Error("delta sync failed: %v", err)
		} else {
			printResult(cmd, accountID, result)
		}
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
			apply()
			return nil
		case note, ok := <-events:
			if !ok {
				apply()
				return nil
			}
			batch = append(batch, deltaRow(note))
			if len(batch) >= followBatchLimit {
				apply()
				continue
			}
			timer.Reset(followWindow)
		case <-timer.C:
			apply()
		}
	}
}

// deltaRow maps a change notification onto a source document row. The
// primary key is the provider's external id.
func deltaRow(note incremental.Notification) domain.SourceDocument {
	name := path.Base(note.PrimaryKey)
	contentType, _ := domain.ContentTypeFromName(name)
	doc := domain.SourceDocument{
		ExternalID:  note.PrimaryKey,
		Name:        name,
		Path:        note.PrimaryKey,
		ContentType: contentType,
		ModifiedAt:  note.Timestamp,
	}
	if note.Operation == incremental.OpDelete {
		doc.Metadata = map[string]any{"deleted": true}
	}
	return doc
}
