package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/openindex-dev/openindex/internal/breaker"
	"github.com/openindex-dev/openindex/internal/cache"
	"github.com/openindex-dev/openindex/internal/chunking"
	"github.com/openindex-dev/openindex/internal/connectors"
	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
	"github.com/openindex-dev/openindex/internal/core/ports/driving"
	"github.com/openindex-dev/openindex/internal/index/realtime"
	"github.com/openindex-dev/openindex/internal/logger"
	"github.com/openindex-dev/openindex/internal/monitor"
)

// defaultSyncTimeout bounds one account's sync run.
const defaultSyncTimeout = 300 * time.Second

// RetryConfig tunes the transient-failure retry loop.
type RetryConfig struct {
	// BaseDelay is the first backoff interval.
	BaseDelay time.Duration
	// Multiplier grows the interval per attempt.
	Multiplier float64
	// MaxDelay caps a single backoff interval.
	MaxDelay time.Duration
	// MaxAttempts bounds total tries, the first call included.
	MaxAttempts int
}

// DefaultRetryConfig matches the tuning used for provider syncs.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 4,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// delay returns the backoff before attempt n (0-based), capped.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * pow(c.Multiplier, attempt))
	if d > c.MaxDelay || d <= 0 {
		d = c.MaxDelay
	}
	return d
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

// SyncOrchestrator drives account syncs end to end: connector calls
// run under a per-origin circuit breaker with retries for transient
// failures, one sync per account at a time, and every fetched document
// is written through to the store, cache, realtime index, and
// embedding queue.
type SyncOrchestrator struct {
	accounts driven.AccountStore
	docs     driven.DocumentStore
	queue    driven.EmbeddingQueue
	registry *connectors.Registry
	index    *realtime.Index
	docCache *cache.Cache[domain.Document]

	breakers *breaker.Group
	retry    RetryConfig
	timeout  time.Duration
	metrics  *monitor.Monitor
	engine   *chunking.Engine

	mu     sync.Mutex
	locks  map[string]*semaphore.Weighted
	status map[string]*driving.SyncStatus
}

var _ driving.SyncOrchestrator = (*SyncOrchestrator)(nil)

// OrchestratorOption configures the orchestrator.
type OrchestratorOption func(*SyncOrchestrator)

// WithSyncTimeout overrides the per-run deadline.
func WithSyncTimeout(d time.Duration) OrchestratorOption {
	return func(o *SyncOrchestrator) { o.timeout = d }
}

// WithRetryConfig overrides the transient-retry tuning.
func WithRetryConfig(cfg RetryConfig) OrchestratorOption {
	return func(o *SyncOrchestrator) { o.retry = cfg.withDefaults() }
}

// WithBreakerConfig overrides the per-origin breaker tuning.
func WithBreakerConfig(cfg breaker.Config) OrchestratorOption {
	return func(o *SyncOrchestrator) { o.breakers = breaker.NewGroup(cfg) }
}

// WithMonitor records sync requests and timings on the monitor.
func WithMonitor(m *monitor.Monitor) OrchestratorOption {
	return func(o *SyncOrchestrator) { o.metrics = m }
}

// NewSyncOrchestrator creates an orchestrator over the given stores,
// registry, index, and cache.
func NewSyncOrchestrator(
	accounts driven.AccountStore,
	docs driven.DocumentStore,
	queue driven.EmbeddingQueue,
	registry *connectors.Registry,
	index *realtime.Index,
	docCache *cache.Cache[domain.Document],
	opts ...OrchestratorOption,
) *SyncOrchestrator {
	o := &SyncOrchestrator{
		accounts: accounts,
		docs:     docs,
		queue:    queue,
		registry: registry,
		index:    index,
		docCache: docCache,
		breakers: breaker.NewGroup(breaker.DefaultConfig()),
		retry:    DefaultRetryConfig(),
		timeout:  defaultSyncTimeout,
		engine:   chunking.New(),
		locks:    make(map[string]*semaphore.Weighted),
		status:   make(map[string]*driving.SyncStatus),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sync runs one sync for an account. A second call for the same
// account while one is running returns ErrSyncInProgress.
func (o *SyncOrchestrator) Sync(ctx context.Context, accountID string, req domain.SyncRequest) (*domain.SyncResult, error) {
	account, err := o.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.IsSyncable() {
		return nil, fmt.Errorf("%w: account %s is not syncable (state %s)",
			domain.ErrInvalidConfiguration, accountID, account.Status.State)
	}

	lock := o.lock(accountID)
	if !lock.TryAcquire(1) {
		return nil, fmt.Errorf("%w: account %s", domain.ErrSyncInProgress, accountID)
	}
	defer lock.Release(1)
	o.setRunning(accountID, true)
	defer o.setRunning(accountID, false)

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	result, err := o.runSync(ctx, account, req)
	if o.metrics != nil {
		o.metrics.RecordRequest(float64(time.Since(start).Milliseconds()), err != nil)
	}
	if err != nil {
		if domain.IsTerminal(err) {
			if statusErr := o.accounts.UpdateStatus(ctx, accountID, domain.AccountStatus{
				State:  domain.AccountError,
				Reason: err.Error(),
			}); statusErr != nil {
				logger.Warn("recording error status for account %s: %v", accountID, statusErr)
			}
		}
		return nil, err
	}

	o.setLastResult(accountID, result)
	return result, nil
}

// SyncAll syncs every syncable account for a user. Per-account
// failures land in that account's result without stopping the rest.
func (o *SyncOrchestrator) SyncAll(ctx context.Context, userID string) (map[string]*domain.SyncResult, error) {
	accounts, err := o.accounts.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*domain.SyncResult, len(accounts))
	for i := range accounts {
		account := &accounts[i]
		if !account.IsSyncable() {
			continue
		}
		result, err := o.Sync(ctx, account.ID, domain.SyncRequest{})
		if err != nil {
			logger.Warn("sync failed for account %s: %v", account.ID, err)
			results[account.ID] = &domain.SyncResult{Failed: 1, Errors: []string{err.Error()}}
			continue
		}
		results[account.ID] = result
	}
	return results, nil
}

// Status reports whether a sync is running for an account and its last
// outcome.
func (o *SyncOrchestrator) Status(accountID string) driving.SyncStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.status[accountID]; ok {
		return *s
	}
	return driving.SyncStatus{AccountID: accountID}
}

// DeltaSync applies a batch of changed rows from a webhook or change
// feed. Rows are deduplicated by external id, later entries winning;
// rows flagged deleted come out of the store, cache, and index.
func (o *SyncOrchestrator) DeltaSync(ctx context.Context, accountID string, changed []domain.SourceDocument) (*domain.SyncResult, error) {
	account, err := o.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	conn, err := o.registry.Create(account.ConnectorType)
	if err != nil {
		return nil, err
	}

	// Last write per external id wins.
	deduped := make(map[string]domain.SourceDocument, len(changed))
	order := make([]string, 0, len(changed))
	for _, doc := range changed {
		if _, seen := deduped[doc.ExternalID]; !seen {
			order = append(order, doc.ExternalID)
		}
		deduped[doc.ExternalID] = doc
	}

	start := time.Now()
	result := &domain.SyncResult{Total: len(order)}
	deleted := make(map[string]bool)
	for _, externalID := range order {
		doc := deduped[externalID]
		if doc.Metadata["deleted"] == true {
			deleted[externalID] = true
			continue
		}
		doc.SourceID = account.ID
		if err := o.storeDocument(ctx, account, conn, &doc, result); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", doc.Path, err))
		}
	}

	if len(deleted) > 0 {
		n, err := o.dropDeleted(ctx, account.ID, deleted)
		if err != nil {
			return nil, err
		}
		result.Deleted = n
	}
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

// runSync executes the connector pipeline and the store/index
// write-through for one account.
func (o *SyncOrchestrator) runSync(ctx context.Context, account *domain.ConnectedAccount, req domain.SyncRequest) (*domain.SyncResult, error) {
	conn, err := o.registry.Create(account.ConnectorType)
	if err != nil {
		return nil, err
	}
	br := o.breakers.For(string(account.ConnectorType))

	var result *domain.SyncResult
	var forEmbedding []domain.DocumentForEmbedding
	err = o.withRetry(ctx, br, func() error {
		var callErr error
		result, forEmbedding, callErr = conn.Sync(ctx, account, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	// Upsert every listed non-folder row so deletions and new/updated
	// counts are computed against the store, then index the fetched
	// content under the stored row ids.
	rowIDs := make(map[string]string, len(result.Listed))
	keep := make([]string, 0, len(result.Listed))
	for i := range result.Listed {
		doc := &result.Listed[i]
		if doc.IsFolder {
			continue
		}
		doc.SourceID = account.ID
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		created, err := o.docs.UpsertDocument(ctx, doc)
		if err != nil {
			return nil, err
		}
		if created {
			result.New++
		} else {
			result.Updated++
		}
		rowIDs[doc.ExternalID] = doc.ID
		keep = append(keep, doc.ExternalID)
	}

	result.Deleted, err = o.docs.DeleteVanished(ctx, account.ID, keep)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range forEmbedding {
		item := &forEmbedding[i]
		if id, ok := rowIDs[item.Document.ExternalID]; ok {
			item.Document.ID = id
		}
		if err := o.indexDocument(ctx, item.Document, now); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.Document.Title, err))
		}
	}
	result.Listed = nil

	if err := o.accounts.TouchLastSync(ctx, account.ID, now); err != nil {
		logger.Warn("recording last sync for account %s: %v", account.ID, err)
	}
	if account.Status.State != domain.AccountConnected {
		if err := o.accounts.UpdateStatus(ctx, account.ID, domain.AccountStatus{State: domain.AccountConnected}); err != nil {
			logger.Warn("restoring connected status for account %s: %v", account.ID, err)
		}
	}
	return result, nil
}

// storeDocument upserts one delta row, fetches its content, and
// indexes it.
func (o *SyncOrchestrator) storeDocument(ctx context.Context, account *domain.ConnectedAccount, conn driven.Connector, doc *domain.SourceDocument, result *domain.SyncResult) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	created, err := o.docs.UpsertDocument(ctx, doc)
	if err != nil {
		return err
	}
	if created {
		result.New++
	} else {
		result.Updated++
	}
	if !doc.ContentType.IsTextBearing() {
		return nil
	}

	content, err := conn.GetDocumentContent(ctx, account, doc.ExternalID)
	if err != nil {
		return err
	}
	item := connectors.BuildForEmbedding(doc, content, o.engine)
	item.Document.ID = doc.ID
	return o.indexDocument(ctx, item.Document, time.Now())
}

// indexDocument writes one document through cache, realtime index,
// embedding queue, and the indexed stamp.
func (o *SyncOrchestrator) indexDocument(ctx context.Context, doc domain.Document, now time.Time) error {
	o.docCache.Set(doc.ID, doc)

	searchStart := time.Now()
	err := o.index.Index(ctx, domain.SearchDocument{
		ID:        doc.ID,
		Title:     doc.Title,
		Content:   doc.Content,
		Tags:      doc.Tags,
		Timestamp: now,
		Score:     1,
	})
	if o.metrics != nil {
		o.metrics.RecordSearchQuery(float64(time.Since(searchStart).Milliseconds()))
	}
	if err != nil {
		return err
	}

	if err := o.queue.Enqueue(ctx, doc.ID); err != nil {
		return err
	}
	if err := o.docs.MarkIndexed(ctx, doc.ID, now); err != nil {
		logger.Warn("marking document %s indexed: %v", doc.ID, err)
	}
	return nil
}

// dropDeleted removes delta-deleted rows from the store, index, and
// cache.
func (o *SyncOrchestrator) dropDeleted(ctx context.Context, sourceID string, deleted map[string]bool) (int, error) {
	rows, err := o.docs.ListDocuments(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	keep := make([]string, 0, len(rows))
	for _, row := range rows {
		if deleted[row.ExternalID] {
			if err := o.index.Remove(ctx, row.ID); err != nil {
				logger.Warn("removing document %s from index: %v", row.ID, err)
			}
			o.docCache.Delete(row.ID)
			continue
		}
		keep = append(keep, row.ExternalID)
	}
	return o.docs.DeleteVanished(ctx, sourceID, keep)
}

// withRetry runs fn under the breaker, backing off and retrying only
// transient failures.
func (o *SyncOrchestrator) withRetry(ctx context.Context, br *breaker.Breaker, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < o.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.retry.delay(attempt - 1)):
			}
		}

		err := br.Execute(fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, breaker.ErrOpen) || errors.Is(err, breaker.ErrTooManyTrials) {
			return fmt.Errorf("%w: provider temporarily unavailable: %v", domain.ErrNetwork, err)
		}
		if !domain.IsRetryable(err) {
			return err
		}
		logger.Debug("transient sync failure (attempt %d/%d): %v", attempt+1, o.retry.MaxAttempts, err)
	}
	return lastErr
}

func (o *SyncOrchestrator) lock(accountID string) *semaphore.Weighted {
	o.mu.Lock()
	defer o.mu.Unlock()
	sem, ok := o.locks[accountID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		o.locks[accountID] = sem
	}
	return sem
}

func (o *SyncOrchestrator) setRunning(accountID string, running bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.status[accountID]
	if !ok {
		s = &driving.SyncStatus{AccountID: accountID}
		o.status[accountID] = s
	}
	s.Running = running
}

func (o *SyncOrchestrator) setLastResult(accountID string, result *domain.SyncResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.status[accountID]
	if !ok {
		s = &driving.SyncStatus{AccountID: accountID}
		o.status[accountID] = s
	}
	s.LastResult = result
}
