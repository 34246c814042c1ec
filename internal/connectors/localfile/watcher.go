package localfile

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/logger"
)

// watchBuffer bounds undelivered change events.
const watchBuffer = 64

// Watch streams file changes under the account's root until the
// context is cancelled. Removed files carry a "deleted" metadata flag.
// New subdirectories are added to the watch as they appear.
func (c *Connector) Watch(ctx context.Context, account *domain.ConnectedAccount) (<-chan domain.SourceDocument, error) {
	root := account.Config["path"]
	if err := c.ValidateConfig(account.Config); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addRecursive(watcher, root); err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan domain.SourceDocument, watchBuffer)
	go func() {
		defer watcher.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("filesystem watcher error: %v", err)
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				c.handleEvent(ctx, account, watcher, root, event, out)
			}
		}
	}()
	return out, nil
}

func (c *Connector) handleEvent(ctx context.Context, account *domain.ConnectedAccount, watcher *fsnotify.Watcher, root string, event fsnotify.Event, out chan<- domain.SourceDocument) {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		contentType, _ := domain.ContentTypeFromName(event.Name)
		rel, _ := filepath.Rel(root, event.Name)
		deliver(ctx, out, domain.SourceDocument{
			SourceID:      account.ID,
			ConnectorType: domain.ProviderLocalFile,
			ExternalID:    event.Name,
			Name:          filepath.Base(event.Name),
			Path:          filepath.ToSlash(rel),
			ContentType:   contentType,
			Metadata:      map[string]any{"deleted": true},
		})
		return
	}

	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Op.Has(fsnotify.Create) {
			if err := addRecursive(watcher, event.Name); err != nil {
				logger.Warn("watching new directory %s: %v", event.Name, err)
			}
		}
		return
	}
	deliver(ctx, out, toSourceDocument(account, root, event.Name, info))
}

func deliver(ctx context.Context, out chan<- domain.SourceDocument, doc domain.SourceDocument) {
	select {
	case out <- doc:
	case <-ctx.Done():
	}
}

// addRecursive watches dir and every non-hidden subdirectory.
func addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
