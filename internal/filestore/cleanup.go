package filestore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/guestledger/dupguard/internal/config"
	"github.com/guestledger/dupguard/internal/retry"
	"github.com/guestledger/dupguard/internal/types"
)

// ReferenceCounter is the slice of transaction storage cleanup consults
// before deleting anything.
type ReferenceCounter interface {
	CountReferencing(ctx context.Context, fileID string) (int, error)
}

// Cleaner removes the upload behind a cancelled import. A file is only
// deleted when nothing needs it anymore: the upload may be the very file
// an existing transaction points at (re-submission of the same document),
// or other transactions may still reference it. Deletion failures are
// reported but never block the decision that triggered them.
type Cleaner struct {
	files FileStore
	refs  ReferenceCounter
	retry retry.Config
	log   zerolog.Logger
}

// NewCleaner creates a cleanup manager over the given file store
func NewCleaner(files FileStore, refs ReferenceCounter, cfg config.CleanupConfig, log zerolog.Logger) *Cleaner {
	return &Cleaner{
		files: files,
		refs:  refs,
		retry: retry.Config{
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
			Multiplier:     cfg.BackoffMultiplier,
		},
		log: log.With().Str("component", "cleanup").Logger(),
	}
}

// Cleanup deletes the new upload after a cancel decision, unless it is one
// of the files backing the existing candidates or other transactions still
// reference it. Reports whether a file was actually removed. Returns an
// error wrapping types.ErrCleanupFailed once retries are exhausted; callers
// treat that as non-fatal and still write the audit entry.
func (c *Cleaner) Cleanup(ctx context.Context, newFileURL string, existingFileURLs []string) (bool, error) {
	if newFileURL == "" {
		return false, nil
	}
	newID := c.files.ResolveID(newFileURL)

	for _, u := range existingFileURLs {
		if u != "" && c.files.ResolveID(u) == newID {
			c.log.Info().Str("file", newID).
				Msg("upload backs an existing transaction, keeping")
			return false, nil
		}
	}

	refs, err := c.refs.CountReferencing(ctx, newID)
	if err != nil {
		// Cannot prove the file is unreferenced, so keep it.
		c.log.Warn().Err(err).Str("file", newID).
			Msg("reference check failed, keeping file")
		return false, fmt.Errorf("%w: reference check: %v", types.ErrCleanupFailed, err)
	}
	if refs > 0 {
		c.log.Warn().Str("file", newID).Int("references", refs).
			Msg("file still referenced, skipping delete")
		return false, nil
	}

	err = retry.Do(ctx, c.log, c.retry, "file delete", func(ctx context.Context) error {
		return c.files.Delete(ctx, newID)
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrCleanupFailed, err)
	}

	c.log.Info().Str("file", newID).Msg("deleted cancelled upload")
	return true, nil
}
