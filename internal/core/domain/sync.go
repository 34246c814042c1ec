package domain

// ListFilters narrows a connector's document listing.
type ListFilters struct {
	// IncludePatterns are glob-style path patterns to keep. Empty means
	// keep everything.
	IncludePatterns []string

	// ExcludePatterns are glob-style path patterns to drop. Applied
	// after includes.
	ExcludePatterns []string

	// FileTypes restricts to the given extensions (without dot).
	FileTypes []string

	// MaxFileSize drops documents larger than this many bytes when
	// positive.
	MaxFileSize int64
}

// DefaultMaxDocumentSize caps fetched document content during sync.
const DefaultMaxDocumentSize = 10 << 20 // 10 MiB

// SyncRequest configures one sync run for an account.
type SyncRequest struct {
	// Filters narrows the listing; nil syncs everything.
	Filters *ListFilters

	// MaxDocumentSize caps content fetches. Zero means the default cap.
	MaxDocumentSize int64

	// Full forces a complete re-listing instead of an incremental pass.
	Full bool
}

// SyncResult is the user-visible outcome of one sync run.
type SyncResult struct {
	// Total is the number of documents seen in the listing.
	Total int `json:"total"`

	// New is the number of documents stored for the first time.
	New int `json:"new"`

	// Updated is the number of documents whose content changed.
	Updated int `json:"updated"`

	// Deleted is the number of documents removed upstream.
	Deleted int `json:"deleted"`

	// Failed is the number of documents that errored. Per-document
	// failures never abort the sync.
	Failed int `json:"failed"`

	// DurationMs is the wall-clock duration of the run.
	DurationMs int64 `json:"duration_ms"`

	// Errors collects per-document failure messages.
	Errors []string `json:"errors,omitempty"`

	// Listed carries the raw listing for the orchestrator's
	// new/updated/deleted bookkeeping. Never serialized.
	Listed []SourceDocument `json:"-"`
}
