package types

import "errors"

// Error taxonomy for the detection and audit pipeline. Callers classify
// with errors.Is; wrap these with fmt.Errorf("...: %w", ...) to add context.
var (
	// ErrStoreUnavailable means the transaction store could not be reached.
	// Callers fail open: treat as "cannot confirm", let the import proceed,
	// and record the degradation in metrics.
	ErrStoreUnavailable = errors.New("transaction store unavailable")

	// ErrCleanupFailed means a file deletion failed after exhausting
	// retries. Non-fatal: the cancel decision and its audit write still
	// commit.
	ErrCleanupFailed = errors.New("file cleanup failed")

	// ErrAuditWriteFailed means a decision log entry could not be accepted
	// at all. In steady state this must not happen: transient write
	// failures are retried and then queued, not dropped.
	ErrAuditWriteFailed = errors.New("audit write failed")

	// ErrCacheCorruption means a cache entry was unreadable. Treated as a
	// miss; the live query path stays correct.
	ErrCacheCorruption = errors.New("cache entry corrupt")
)

// IsUnavailable reports whether err is a store-unavailable condition
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
