package decision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guestledger/dupguard/internal/config"
	"github.com/guestledger/dupguard/internal/logger"
	"github.com/guestledger/dupguard/internal/types"
)

type fakeChecker struct {
	set types.CandidateSet
	err error
}

func (f *fakeChecker) Check(ctx context.Context, q types.DuplicateQuery) (types.CandidateSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.set, nil
}

type cleanupCall struct {
	newFileURL string
	existing   []string
}

type fakeCleaner struct {
	mu      sync.Mutex
	calls   []cleanupCall
	deleted bool
	err     error
}

func (f *fakeCleaner) Cleanup(ctx context.Context, newFileURL string, existing []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cleanupCall{newFileURL: newFileURL, existing: existing})
	return f.deleted, f.err
}

func (f *fakeCleaner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []types.DecisionLogEntry
	err     error
}

func (f *fakeAuditor) Log(ctx context.Context, entry *types.DecisionLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAuditor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type obsSample struct {
	op      string
	success bool
}

type recordingObserver struct {
	mu      sync.Mutex
	samples []obsSample
}

func (r *recordingObserver) Observe(op string, d time.Duration, success, cacheHit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, obsSample{op: op, success: success})
}

func (r *recordingObserver) byOp(op string) []obsSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []obsSample
	for _, s := range r.samples {
		if s.op == op {
			out = append(out, s)
		}
	}
	return out
}

type fixture struct {
	p       *Processor
	checker *fakeChecker
	cleaner *fakeCleaner
	auditor *fakeAuditor
	obs     *recordingObserver
}

func newFixture(set types.CandidateSet, checkErr error) *fixture {
	f := &fixture{
		checker: &fakeChecker{set: set, err: checkErr},
		cleaner: &fakeCleaner{deleted: true},
		auditor: &fakeAuditor{},
		obs:     &recordingObserver{},
	}
	cfg := config.DecisionConfig{Timeout: time.Minute}
	f.p = New(f.checker, f.cleaner, f.auditor, cfg, logger.Nop())
	f.p.SetObserver(f.obs)
	return f
}

func testInput() Input {
	return Input{
		Query: types.DuplicateQuery{
			ReferenceNumber: "Booking.com",
			TransactionDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			Amount:          121.00,
		},
		NewFileURL: "gs://receipts/new.pdf",
		SessionID:  "sess-1",
	}
}

func candidate42() types.CandidateSet {
	return types.CandidateSet{{
		ID:              42,
		ReferenceNumber: "Booking.com",
		TransactionDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:          121.00,
		FileURL:         "gs://receipts/existing.pdf",
	}}
}

func TestRunNoCandidates(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	inst, err := f.p.Run(ctx, testInput())
	require.NoError(t, err)
	assert.Equal(t, StateDone, inst.State())

	// Nothing was decided, so nothing is logged.
	d, err := inst.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionContinue, d)
	assert.Zero(t, f.auditor.count())
	assert.Zero(t, f.cleaner.callCount())
}

func TestRunStoreUnavailableFailsOpen(t *testing.T) {
	f := newFixture(nil, fmt.Errorf("%w: connection refused", types.ErrStoreUnavailable))
	ctx := context.Background()

	inst, err := f.p.Run(ctx, testInput())
	require.NoError(t, err, "unavailability must not block the import")
	assert.Equal(t, StateDone, inst.State())
	assert.Zero(t, f.auditor.count())
}

func TestRunSurfacesInvalidInput(t *testing.T) {
	f := newFixture(nil, errors.New("reference_number is required"))

	_, err := f.p.Run(context.Background(), testInput())
	require.Error(t, err)
}

func TestContinueDecision(t *testing.T) {
	f := newFixture(candidate42(), nil)
	ctx := context.Background()

	inst, err := f.p.Run(ctx, testInput())
	require.NoError(t, err)
	require.Equal(t, StateAwaitingDecision, inst.State())
	require.NoError(t, inst.Resolve(types.DecisionContinue, "alice"))

	d, err := inst.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionContinue, d)
	assert.Equal(t, StateDone, inst.State())

	// Continue never touches files.
	assert.Zero(t, f.cleaner.callCount())

	require.Equal(t, 1, f.auditor.count())
	entry := f.auditor.entries[0]
	assert.Equal(t, types.DecisionContinue, entry.Decision)
	require.NotNil(t, entry.ExistingTransactionID)
	assert.Equal(t, int64(42), *entry.ExistingTransactionID)
	assert.Equal(t, "alice", entry.UserID)
	assert.Equal(t, "sess-1", entry.SessionID)
	assert.Equal(t, inst.OperationID, entry.OperationID)
	assert.Equal(t, "gs://receipts/new.pdf", entry.NewFileURL)
}

func TestCancelDecision(t *testing.T) {
	f := newFixture(candidate42(), nil)
	ctx := context.Background()

	inst, err := f.p.Run(ctx, testInput())
	require.NoError(t, err)
	require.NoError(t, inst.Resolve(types.DecisionCancel, "bob"))

	d, err := inst.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionCancel, d)
	assert.Equal(t, StateDone, inst.State())

	require.Equal(t, 1, f.cleaner.callCount())
	call := f.cleaner.calls[0]
	assert.Equal(t, "gs://receipts/new.pdf", call.newFileURL)
	assert.Equal(t, []string{"gs://receipts/existing.pdf"}, call.existing)

	require.Equal(t, 1, f.auditor.count())
	entry := f.auditor.entries[0]
	assert.Equal(t, types.DecisionCancel, entry.Decision)
	require.NotNil(t, entry.ExistingTransactionID)
	assert.Equal(t, int64(42), *entry.ExistingTransactionID)
	assert.Equal(t, "bob", entry.UserID)
	assert.False(t, entry.IsSystemDecision())
}

func TestCleanupFailureNeverSuppressesAudit(t *testing.T) {
	f := newFixture(candidate42(), nil)
	f.cleaner.err = fmt.Errorf("%w: permission denied", types.ErrCleanupFailed)
	ctx := context.Background()

	inst, err := f.p.Run(ctx, testInput())
	require.NoError(t, err)
	require.NoError(t, inst.Resolve(types.DecisionCancel, "bob"))

	d, err := inst.Await(ctx)
	require.NoError(t, err, "cleanup failure is non-fatal")
	assert.Equal(t, types.DecisionCancel, d)
	assert.Equal(t, StateDone, inst.State())
	assert.Equal(t, 1, f.auditor.count(), "audit write must still happen")

	cleanups := f.obs.byOp(OpFileCleanup)
	require.Len(t, cleanups, 1)
	assert.False(t, cleanups[0].success)
	applies := f.obs.byOp(OpDecisionApply)
	require.Len(t, applies, 1)
	assert.True(t, applies[0].success)
}

func TestTimeoutAppliesSystemCancel(t *testing.T) {
	f := newFixture(candidate42(), nil)
	f.p.cfg.Timeout = 50 * time.Millisecond
	ctx := context.Background()

	inst, err := f.p.Run(ctx, testInput())
	require.NoError(t, err)

	d, err := inst.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionCancel, d)
	assert.Equal(t, StateDone, inst.State())

	// The orphaned upload is cleaned up, and the entry carries the
	// system marker.
	assert.Equal(t, 1, f.cleaner.callCount())
	require.Equal(t, 1, f.auditor.count())
	entry := f.auditor.entries[0]
	assert.Equal(t, types.DecisionCancel, entry.Decision)
	assert.Empty(t, entry.UserID)
	assert.True(t, entry.IsSystemDecision())
}

func TestAbandonedWaitCancels(t *testing.T) {
	f := newFixture(candidate42(), nil)
	inst, err := f.p.Run(context.Background(), testInput())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := inst.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionCancel, d)
	// Cleanup and the audit write finish despite the dead context.
	assert.Equal(t, 1, f.cleaner.callCount())
	assert.Equal(t, 1, f.auditor.count())
	assert.True(t, f.auditor.entries[0].IsSystemDecision())
}

func TestResolveGuards(t *testing.T) {
	t.Run("NotAwaiting", func(t *testing.T) {
		f := newFixture(nil, nil)
		inst, err := f.p.Run(context.Background(), testInput())
		require.NoError(t, err)
		require.Error(t, inst.Resolve(types.DecisionContinue, "alice"))
	})

	t.Run("InvalidDecision", func(t *testing.T) {
		f := newFixture(candidate42(), nil)
		inst, err := f.p.Run(context.Background(), testInput())
		require.NoError(t, err)
		require.Error(t, inst.Resolve("maybe", "alice"))
	})

	t.Run("SecondResolveLoses", func(t *testing.T) {
		f := newFixture(candidate42(), nil)
		inst, err := f.p.Run(context.Background(), testInput())
		require.NoError(t, err)
		require.NoError(t, inst.Resolve(types.DecisionContinue, "alice"))
		require.Error(t, inst.Resolve(types.DecisionCancel, "bob"))

		_, err = inst.Await(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, f.auditor.count())
		assert.Equal(t, types.DecisionContinue, f.auditor.entries[0].Decision)
	})
}

func TestExactlyOneEntryPerInstance(t *testing.T) {
	f := newFixture(candidate42(), nil)
	ctx := context.Background()

	inst, err := f.p.Run(ctx, testInput())
	require.NoError(t, err)
	require.NoError(t, inst.Resolve(types.DecisionContinue, "alice"))
	_, err = inst.Await(ctx)
	require.NoError(t, err)

	// A second wait on a finished instance must not log again.
	_, err = inst.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.auditor.count())
}

func TestAuditRejectionSurfaces(t *testing.T) {
	f := newFixture(candidate42(), nil)
	f.auditor.err = fmt.Errorf("%w: operation_id is required", types.ErrAuditWriteFailed)
	ctx := context.Background()

	inst, err := f.p.Run(ctx, testInput())
	require.NoError(t, err)
	require.NoError(t, inst.Resolve(types.DecisionContinue, "alice"))

	_, err = inst.Await(ctx)
	require.ErrorIs(t, err, types.ErrAuditWriteFailed)
	assert.Equal(t, StateContinuing, inst.State(), "instance must not reach done without its entry")

	applies := f.obs.byOp(OpDecisionApply)
	require.Len(t, applies, 1)
	assert.False(t, applies[0].success)
}

func TestOperationIDsAreUnique(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	a, err := f.p.Run(ctx, testInput())
	require.NoError(t, err)
	b, err := f.p.Run(ctx, testInput())
	require.NoError(t, err)
	assert.NotEmpty(t, a.OperationID)
	assert.NotEqual(t, a.OperationID, b.OperationID)
}
