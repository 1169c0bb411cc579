package audit

import (
	"context"

	"github.com/guestledger/dupguard/internal/types"
)

// Sink receives a copy of every decision log entry after it commits to the
// authoritative store. Sinks are best effort: a sink error is logged and
// never fails or retries the audit write itself.
type Sink interface {
	Mirror(ctx context.Context, entry types.DecisionLogEntry) error
	Close() error
}
