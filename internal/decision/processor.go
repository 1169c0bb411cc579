// Package decision drives a duplicate warning from check to audit entry.
// Each check runs as one instance of a small state machine: candidates park
// the instance at awaiting_decision until an operator resolves it or the
// timeout applies an implicit cancel attributed to the system. Exactly one
// decision log entry is written per resolved instance, as the last step
// before done; an instance with no candidates finishes without one.
package decision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/guestledger/dupguard/internal/config"
	"github.com/guestledger/dupguard/internal/logger"
	"github.com/guestledger/dupguard/internal/types"
)

// Operation types recorded by the processor
const (
	OpDecisionApply = "decision_apply"
	OpFileCleanup   = "file_cleanup"
)

// Checker runs the duplicate lookup
type Checker interface {
	Check(ctx context.Context, q types.DuplicateQuery) (types.CandidateSet, error)
}

// Cleaner removes a cancelled upload when it is safe to do so
type Cleaner interface {
	Cleanup(ctx context.Context, newFileURL string, existingFileURLs []string) (bool, error)
}

// Auditor accepts the decision log entry
type Auditor interface {
	Log(ctx context.Context, entry *types.DecisionLogEntry) error
}

// Observer receives one sample per recorded operation
type Observer interface {
	Observe(operation string, d time.Duration, success, cacheHit bool)
}

// Input carries one incoming import's fields through the check
type Input struct {
	Query      types.DuplicateQuery
	NewFileURL string
	SessionID  string
}

// resolution pairs a decision with the acting user ("" for the system)
type resolution struct {
	decision types.Decision
	userID   string
}

// Processor builds decision instances wired to the detector, the file
// cleaner, and the audit log.
type Processor struct {
	checker  Checker
	cleaner  Cleaner
	auditor  Auditor
	cfg      config.DecisionConfig
	log      zerolog.Logger
	observer Observer
}

// New creates a decision processor
func New(checker Checker, cleaner Cleaner, auditor Auditor, cfg config.DecisionConfig, log zerolog.Logger) *Processor {
	return &Processor{
		checker: checker,
		cleaner: cleaner,
		auditor: auditor,
		cfg:     cfg,
		log:     log.With().Str("component", "decision").Logger(),
	}
}

// SetObserver installs the performance observer. Call during startup,
// before instances run.
func (p *Processor) SetObserver(o Observer) {
	p.observer = o
}

// Instance is one duplicate check working its way to a decision
type Instance struct {
	p *Processor

	OperationID string
	Input       Input
	Candidates  types.CandidateSet

	mu       sync.Mutex
	state    State
	resolved bool
	ch       chan resolution
	log      zerolog.Logger
}

// Run performs the duplicate check and returns the instance. With
// candidates the instance parks at awaiting_decision; without candidates,
// or with the store unavailable (which fails open), it is already done and
// nothing will be logged. Errors are limited to invalid input.
func (p *Processor) Run(ctx context.Context, input Input) (*Instance, error) {
	inst := &Instance{
		p:           p,
		OperationID: uuid.NewString(),
		Input:       input,
		state:       StateChecking,
		ch:          make(chan resolution, 1),
	}
	inst.log = logger.WithOperation(p.log, inst.OperationID)
	inst.log.Info().
		Str("reference", input.Query.ReferenceNumber).
		Str("date", input.Query.TransactionDate.Format(time.DateOnly)).
		Float64("amount", input.Query.Amount).
		Msg("duplicate check started")

	candidates, err := p.checker.Check(ctx, input.Query)
	if err != nil {
		if !types.IsUnavailable(err) {
			return nil, err
		}
		// Fail open: cannot confirm duplicates, the import proceeds.
		inst.log.Warn().Err(err).Msg("store unavailable, proceeding without candidates")
		candidates = nil
	}

	inst.Candidates = candidates
	if candidates.Empty() {
		if terr := inst.transition(StateDone); terr != nil {
			return nil, terr
		}
		inst.log.Info().Msg("no duplicate candidates")
		return inst, nil
	}

	if terr := inst.transition(StateAwaitingDecision); terr != nil {
		return nil, terr
	}
	inst.log.Info().Int("candidates", len(candidates)).Msg("duplicates found, awaiting decision")
	return inst, nil
}

// State returns the instance's current state
func (inst *Instance) State() State {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.state
}

// Resolve delivers an operator decision to a waiting instance. The first
// resolution wins; the timeout and any later call lose.
func (inst *Instance) Resolve(decision types.Decision, userID string) error {
	if !decision.IsValid() {
		return fmt.Errorf("invalid decision: %s", decision)
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state != StateAwaitingDecision {
		return fmt.Errorf("instance %s is not awaiting a decision (state=%s)", inst.OperationID, inst.state)
	}
	if inst.resolved {
		return fmt.Errorf("instance %s is already resolved", inst.OperationID)
	}
	inst.resolved = true
	inst.ch <- resolution{decision: decision, userID: userID}
	return nil
}

// Await blocks until the instance is resolved or the decision timeout
// elapses, then drives cleanup and the audit write. Timeout, like a caller
// abandoning the wait, applies an implicit cancel attributed to the
// system. An instance that already finished at Run yields continue with
// nothing logged. The returned error reports audit acceptance only;
// cleanup failures are non-fatal by contract.
func (inst *Instance) Await(ctx context.Context) (types.Decision, error) {
	if inst.State() == StateDone {
		return types.DecisionContinue, nil
	}

	timer := time.NewTimer(inst.p.cfg.Timeout)
	defer timer.Stop()

	select {
	case res := <-inst.ch:
		return res.decision, inst.apply(ctx, res)
	case <-timer.C:
		return inst.systemCancel(ctx, "decision timeout")
	case <-ctx.Done():
		return inst.systemCancel(ctx, "caller gone")
	}
}

// systemCancel resolves an abandoned instance as an implicit cancel,
// unless an operator decision slipped in first.
func (inst *Instance) systemCancel(ctx context.Context, reason string) (types.Decision, error) {
	inst.mu.Lock()
	if inst.resolved {
		inst.mu.Unlock()
		// Resolve won the race; its decision is already buffered.
		res := <-inst.ch
		return res.decision, inst.apply(ctx, res)
	}
	inst.resolved = true
	inst.mu.Unlock()

	inst.log.Warn().Str("reason", reason).Dur("timeout", inst.p.cfg.Timeout).
		Msg("no decision received, cancelling")
	return types.DecisionCancel, inst.apply(ctx, resolution{decision: types.DecisionCancel})
}

// apply drives the resolved decision through cleanup and the audit write.
// Cleanup failure never suppresses the write; the entry is the last step
// before done.
func (inst *Instance) apply(ctx context.Context, res resolution) error {
	// The decision is final: a dying request must not abort cleanup or
	// the audit write.
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	var applyErr error
	defer func() {
		inst.p.observe(OpDecisionApply, start, applyErr == nil)
	}()

	switch res.decision {
	case types.DecisionContinue:
		if applyErr = inst.transition(StateContinuing); applyErr != nil {
			return applyErr
		}
		inst.log.Info().Str("user", res.userID).Msg("continuing with import")
	case types.DecisionCancel:
		if applyErr = inst.transition(StateCancelling); applyErr != nil {
			return applyErr
		}
		inst.log.Info().Str("user", res.userID).Bool("system", res.userID == "").
			Msg("cancelling import")
		inst.cleanup(ctx)
	}

	if applyErr = inst.p.auditor.Log(ctx, inst.entry(res)); applyErr != nil {
		inst.log.Error().Err(applyErr).Msg("audit write rejected")
		return applyErr
	}
	if applyErr = inst.transition(StateLogged); applyErr != nil {
		return applyErr
	}
	if applyErr = inst.transition(StateDone); applyErr != nil {
		return applyErr
	}
	inst.log.Info().Str("decision", string(res.decision)).Msg("decision applied")
	return nil
}

// cleanup removes the cancelled upload. Failures are logged and sampled,
// never propagated.
func (inst *Instance) cleanup(ctx context.Context) {
	start := time.Now()
	deleted, err := inst.p.cleaner.Cleanup(ctx, inst.Input.NewFileURL, inst.Candidates.FileURLs())
	inst.p.observe(OpFileCleanup, start, err == nil)
	if err != nil {
		inst.log.Warn().Err(err).Msg("file cleanup failed, audit write proceeds")
		return
	}
	inst.log.Debug().Bool("deleted", deleted).Msg("file cleanup finished")
}

// entry builds the single audit row for the resolved instance. Both
// decisions reference the top candidate; its id names the record the
// operator judged against.
func (inst *Instance) entry(res resolution) *types.DecisionLogEntry {
	e := &types.DecisionLogEntry{
		ReferenceNumber:   inst.Input.Query.ReferenceNumber,
		TransactionDate:   inst.Input.Query.TransactionDate,
		TransactionAmount: inst.Input.Query.Amount,
		Decision:          res.decision,
		NewFileURL:        inst.Input.NewFileURL,
		UserID:            res.userID,
		SessionID:         inst.Input.SessionID,
		OperationID:       inst.OperationID,
	}
	if !inst.Candidates.Empty() {
		id := inst.Candidates[0].ID
		e.ExistingTransactionID = &id
	}
	return e
}

// transition moves the instance to next, rejecting illegal moves
func (inst *Instance) transition(next State) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if !inst.state.CanTransitionTo(next) {
		return fmt.Errorf("invalid state transition: %s → %s", inst.state, next)
	}
	inst.log.Debug().Str("from", string(inst.state)).Str("to", string(next)).
		Msg("state transition")
	inst.state = next
	return nil
}

func (p *Processor) observe(op string, start time.Time, success bool) {
	if p.observer != nil {
		p.observer.Observe(op, time.Since(start), success, false)
	}
}
