// Package storage defines types and primitives for workflow engine storage backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/intentops/intentengine/workflow"
)

var (
	// ErrNotFound is returned when a workflow does not exist for the
	// requesting org. Backends must not distinguish "wrong tenant"
	// from "does not exist".
	ErrNotFound = errors.New("workflow not found")

	// ErrAlreadyExists is returned when creating a duplicate workflow ID.
	ErrAlreadyExists = errors.New("workflow already exists")

	ErrEmptyWorkflow  = errors.New("empty workflow record")
	ErrMissingID      = errors.New("missing workflow id")
	ErrMissingOrgID   = errors.New("missing org id")
	ErrInvalidState   = errors.New("invalid workflow state")
	ErrMissingIdemKey = errors.New("missing idempotency key")
)

// Cancellation records who abandoned a workflow, why, and when.
type Cancellation struct {
	Actor  string    `json:"actor"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// WorkflowRecord is the persisted form of one orchestrated workflow.
// State is mutated exclusively through CompareAndSwapState.
type WorkflowRecord struct {
	ID           string
	OrgID        string
	Name         string
	State        workflow.State
	Cancellation *Cancellation
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks for missing values.
func (r *WorkflowRecord) Validate() error {
	if r == nil {
		return ErrEmptyWorkflow
	}
	if r.ID == "" {
		return ErrMissingID
	}
	if r.OrgID == "" {
		return ErrMissingOrgID
	}
	if !r.State.Valid() {
		return ErrInvalidState
	}
	return nil
}

// TransitionRecord is the ledger entry for one applied transition,
// stored under its caller-supplied idempotency key so that a retried
// request replays the prior outcome instead of re-executing.
type TransitionRecord struct {
	Key  string         `json:"key"`
	From workflow.State `json:"-"`
	To   workflow.State `json:"-"`
	At   time.Time      `json:"at"`

	// canonical string forms; what backends actually persist
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
}

// Validate checks for missing values.
func (r *TransitionRecord) Validate() error {
	if r == nil {
		return errors.New("empty transition record")
	}
	if r.Key == "" {
		return ErrMissingIdemKey
	}
	return nil
}

// WorkflowStore persists workflow records. Every method is scoped by
// orgID; row-level tenant isolation is mandatory, not advisory.
type WorkflowStore interface {
	// CreateWorkflow stores a new workflow record.
	// ErrAlreadyExists is returned for a duplicate (org, id) pair.
	CreateWorkflow(ctx context.Context, r *WorkflowRecord) error

	// RetrieveWorkflow returns the workflow for (orgID, workflowID).
	// ErrNotFound is returned when it does not exist for that org.
	RetrieveWorkflow(ctx context.Context, orgID, workflowID string) (*WorkflowRecord, error)

	// CompareAndSwapState sets the workflow's state to new only if its
	// persisted state still equals expected. The swap must be atomic
	// with respect to concurrent calls for the same workflow. A false
	// return with nil error means the predicate did not match; that is
	// an expected outcome under concurrency, not a fault. cancellation
	// is persisted alongside the state when non-nil (cancel edges).
	CompareAndSwapState(ctx context.Context, orgID, workflowID string, expected, new workflow.State, cancellation *Cancellation) (bool, error)
}

// IdempotencyStore is the append-only replay ledger for transitions.
type IdempotencyStore interface {
	// StoreTransition records an applied transition under its key.
	// Keys are written once; a later write for the same
	// (org, workflow, key) may be ignored by the backend.
	StoreTransition(ctx context.Context, orgID, workflowID string, r *TransitionRecord) error

	// RetrieveTransition returns the prior outcome for key, if any.
	RetrieveTransition(ctx context.Context, orgID, workflowID, key string) (*TransitionRecord, bool, error)
}

// AllStorage is the full engine storage backend contract.
type AllStorage interface {
	WorkflowStore
	IdempotencyStore
}
