// Package engine implements the workflow state transition core: the
// compare-and-swap transition executor, the idempotency replay ledger,
// and the stage-event orchestrator built on top of them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/log/logkeys"
	"github.com/intentops/intentengine/subsystem/audit"
	"github.com/intentops/intentengine/utils/uuid"
	"github.com/intentops/intentengine/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// Outcome classifies the result of a transition attempt.
type Outcome int

const (
	// OutcomeError means the attempt could not be evaluated.
	OutcomeError Outcome = iota

	// OutcomeApplied means the state was swapped (or the attempt was a
	// ledger replay of an earlier applied swap).
	OutcomeApplied

	// OutcomeConflict means another writer moved the workflow first.
	OutcomeConflict

	// OutcomeInvalid means the requested edge is not in the legal
	// transition matrix. Nothing was read or written for it.
	OutcomeInvalid

	// OutcomeNotFound means the workflow does not exist for the org.
	OutcomeNotFound

	// OutcomeNoop means the request was already satisfied; repeating a
	// cancel on a cancelled workflow, for example.
	OutcomeNoop
)

// Code returns the stable machine-readable form of the outcome.
// Clients switch on these; they never change meaning.
func (o Outcome) Code() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeConflict:
		return "conflict"
	case OutcomeInvalid:
		return "invalid_transition"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeNoop:
		return "noop"
	}
	return "error"
}

// MarshalJSON marshals the outcome code.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return []byte(`"` + o.Code() + `"`), nil
}

// TransitionResult reports one transition attempt. Replayed attempts
// rebuild the result from the ledger so a retried request reads
// exactly what the original did.
type TransitionResult struct {
	Outcome Outcome `json:"outcome"`

	FromState string `json:"from_state,omitempty"`
	ToState   string `json:"to_state,omitempty"`

	// CurrentState reports where the workflow actually is when the
	// attempt did not apply.
	CurrentState string `json:"current_state,omitempty"`

	AppliedAt time.Time `json:"applied_at,omitempty"`

	// replayed marks results rebuilt from the ledger. Not serialized:
	// a replayed response reads exactly like the original.
	replayed bool
}

// Engine executes workflow state transitions.
type Engine struct {
	store   storage.AllStorage
	auditor audit.Recorder
	logger  log.Logger
	ider    uuid.IDer
	nowFn   func() time.Time
}

type Option func(*Engine)

func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithAuditor(a audit.Recorder) Option {
	return func(e *Engine) {
		e.auditor = a
	}
}

func WithIDer(ider uuid.IDer) Option {
	return func(e *Engine) {
		e.ider = ider
	}
}

// New creates a new workflow engine on top of store.
func New(store storage.AllStorage, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: log.NopLogger,
		ider:   uuid.NewUUID(),
		nowFn:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("service", "engine")
	return e
}

// CreateWorkflow creates a new workflow in the initial pipeline state
// and returns its record.
func (e *Engine) CreateWorkflow(ctx context.Context, orgID, name string) (*storage.WorkflowRecord, error) {
	now := e.nowFn()
	r := &storage.WorkflowRecord{
		ID:        e.ider.ID(),
		OrgID:     orgID,
		Name:      name,
		State:     workflow.InitialState,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateWorkflow(ctx, r); err != nil {
		return nil, fmt.Errorf("creating workflow: %w", err)
	}
	ctxlog.Logger(ctx, e.logger).Info(
		logkeys.Message, "created workflow",
		logkeys.OrgID, orgID,
		logkeys.WorkflowID, r.ID,
		logkeys.WorkflowName, name,
	)
	e.audit(ctx, audit.Entry{
		OrgID:      orgID,
		WorkflowID: r.ID,
		EntityType: audit.EntityWorkflow,
		Action:     audit.ActionCreate,
		Details:    workflow.InitialState.String(),
	})
	return r, nil
}

// RetrieveWorkflow returns the workflow record for (orgID, workflowID).
func (e *Engine) RetrieveWorkflow(ctx context.Context, orgID, workflowID string) (*storage.WorkflowRecord, error) {
	return e.store.RetrieveWorkflow(ctx, orgID, workflowID)
}

// AttemptTransition tries to move a workflow along the (from, to) edge
// under idemKey. Exactly one of N concurrent attempts for the same
// edge applies; the others observe a conflict. Retrying an applied
// attempt with the same key replays its recorded result without
// touching workflow state again.
//
// A non-nil error means the attempt could not be evaluated. Conflict,
// invalid and not-found are results, not errors.
func (e *Engine) AttemptTransition(ctx context.Context, orgID, workflowID string, from, to workflow.State, idemKey string) (*TransitionResult, error) {
	if idemKey == "" {
		return nil, storage.ErrMissingIdemKey
	}
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.OrgID, orgID,
		logkeys.WorkflowID, workflowID,
		logkeys.FromState, from.String(),
		logkeys.ToState, to.String(),
		logkeys.IdempotencyKey, idemKey,
	)

	// replay before anything else: a retried request must see its
	// original result even if the workflow has since moved on
	prior, found, err := e.store.RetrieveTransition(ctx, orgID, workflowID, idemKey)
	if err != nil {
		return nil, fmt.Errorf("checking ledger: %w", err)
	}
	if found {
		logger.Debug(logkeys.Message, "replayed transition", logkeys.Outcome, OutcomeApplied.Code())
		return &TransitionResult{
			Outcome:   OutcomeApplied,
			FromState: prior.FromState,
			ToState:   prior.ToState,
			AppliedAt: prior.At,
			replayed:  true,
		}, nil
	}

	result := &TransitionResult{FromState: from.String(), ToState: to.String()}
	if !workflow.IsLegalTransition(from, to) {
		result.Outcome = OutcomeInvalid
		logger.Info(logkeys.Message, "attempted transition", logkeys.Outcome, result.Outcome.Code())
		return result, nil
	}

	ok, err := e.store.CompareAndSwapState(ctx, orgID, workflowID, from, to, nil)
	if errors.Is(err, storage.ErrNotFound) {
		result.Outcome = OutcomeNotFound
		logger.Info(logkeys.Message, "attempted transition", logkeys.Outcome, result.Outcome.Code())
		return result, nil
	} else if err != nil {
		return nil, fmt.Errorf("swapping state: %w", err)
	}
	if !ok {
		result.Outcome = OutcomeConflict
		if wf, err := e.store.RetrieveWorkflow(ctx, orgID, workflowID); err == nil {
			result.CurrentState = wf.State.String()
		}
		logger.Info(logkeys.Message, "attempted transition", logkeys.Outcome, result.Outcome.Code())
		return result, nil
	}

	result.Outcome = OutcomeApplied
	result.AppliedAt = e.nowFn()
	// the swap already happened; ledger and audit failures are logged
	// and do not undo it
	err = e.store.StoreTransition(ctx, orgID, workflowID, &storage.TransitionRecord{
		Key:  idemKey,
		From: from,
		To:   to,
		At:   result.AppliedAt,
	})
	if err != nil {
		logger.Info(logkeys.Message, "recording transition", logkeys.Error, err)
	}
	logger.Debug(logkeys.Message, "applied transition", logkeys.Outcome, result.Outcome.Code())
	e.audit(ctx, audit.Entry{
		OrgID:      orgID,
		WorkflowID: workflowID,
		EntityType: audit.EntityWorkflow,
		Action:     audit.ActionTransition,
		Details:    from.String() + " > " + to.String(),
	})
	return result, nil
}

// cancelAttempts bounds the CAS retry loop in Cancel. Cancellation
// races only with single state advances, so contention is shallow.
const cancelAttempts = 3

// Cancel abandons a workflow from whatever non-terminal state it is
// in. Cancelling an already-cancelled workflow is a no-op with no new
// audit record. A completed workflow cannot be cancelled.
func (e *Engine) Cancel(ctx context.Context, orgID, workflowID, actor, reason string) (*TransitionResult, error) {
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.OrgID, orgID,
		logkeys.WorkflowID, workflowID,
		logkeys.ActorID, actor,
	)
	result := &TransitionResult{ToState: workflow.StateCancelled.String()}
	for attempt := 0; attempt < cancelAttempts; attempt++ {
		wf, err := e.store.RetrieveWorkflow(ctx, orgID, workflowID)
		if errors.Is(err, storage.ErrNotFound) {
			result.Outcome = OutcomeNotFound
			return result, nil
		} else if err != nil {
			return nil, fmt.Errorf("retrieving workflow: %w", err)
		}
		result.CurrentState = wf.State.String()

		if wf.State == workflow.StateCancelled {
			result.Outcome = OutcomeNoop
			logger.Debug(logkeys.Message, "cancel workflow", logkeys.Outcome, result.Outcome.Code())
			return result, nil
		}
		if !workflow.IsLegalTransition(wf.State, workflow.StateCancelled) {
			result.Outcome = OutcomeInvalid
			logger.Info(logkeys.Message, "cancel workflow", logkeys.Outcome, result.Outcome.Code())
			return result, nil
		}

		ok, err := e.store.CompareAndSwapState(ctx, orgID, workflowID, wf.State, workflow.StateCancelled, &storage.Cancellation{
			Actor:  actor,
			Reason: reason,
			At:     e.nowFn(),
		})
		if err != nil {
			return nil, fmt.Errorf("swapping state: %w", err)
		}
		if !ok {
			// someone advanced (or cancelled) underneath us; re-read
			continue
		}

		result.Outcome = OutcomeApplied
		result.FromState = wf.State.String()
		result.CurrentState = workflow.StateCancelled.String()
		result.AppliedAt = e.nowFn()
		logger.Info(logkeys.Message, "cancelled workflow", logkeys.FromState, result.FromState)
		e.audit(ctx, audit.Entry{
			OrgID:      orgID,
			WorkflowID: workflowID,
			EntityType: audit.EntityWorkflow,
			ActorID:    actor,
			Action:     audit.ActionCancel,
			Details:    reason,
		})
		return result, nil
	}
	result.Outcome = OutcomeConflict
	logger.Info(logkeys.Message, "cancel workflow", logkeys.Outcome, result.Outcome.Code())
	return result, nil
}

// BlockingCondition resolves what a workflow is currently waiting on.
// Terminal workflows wait on nothing and resolve to nil.
func (e *Engine) BlockingCondition(ctx context.Context, orgID, workflowID string) (*workflow.Blocking, error) {
	wf, err := e.store.RetrieveWorkflow(ctx, orgID, workflowID)
	if err != nil {
		return nil, err
	}
	return workflow.BlockingCondition(wf.State), nil
}

func (e *Engine) audit(ctx context.Context, entry audit.Entry) {
	if e.auditor != nil {
		e.auditor.Record(ctx, entry)
	}
}
