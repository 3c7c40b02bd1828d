// Package gate answers whether a pipeline stage may start for a
// workflow. Gates fail open on infrastructure faults and fail closed
// on unmet preconditions: a broken store must not wedge the pipeline,
// but a workflow that has not earned a stage never enters it.
package gate

import (
	"context"
	"errors"
	"fmt"

	engstorage "github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/log/logkeys"
	"github.com/intentops/intentengine/subsystem/audit"
	"github.com/intentops/intentengine/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// ErrUnknownGate is returned for a gate name outside the registry.
var ErrUnknownGate = errors.New("unknown gate")

// Decision is a gate verdict.
type Decision int

const (
	// DecisionBlocked means the precondition was checked and is unmet.
	DecisionBlocked Decision = iota

	// DecisionAllowed means the precondition was checked and holds.
	DecisionAllowed

	// DecisionIndeterminate means the precondition could not be
	// checked. Indeterminate gates allow: availability faults are not
	// the workflow's fault.
	DecisionIndeterminate
)

func (d Decision) String() string {
	switch d {
	case DecisionBlocked:
		return "blocked"
	case DecisionAllowed:
		return "allowed"
	case DecisionIndeterminate:
		return "indeterminate"
	}
	return "invalid"
}

// MarshalJSON marshals the decision string form.
func (d Decision) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// Result is the outcome of one gate check.
type Result struct {
	Gate     string   `json:"gate"`
	Decision Decision `json:"decision"`

	// Allowed is the operational answer: may the stage start.
	// True for both Allowed and Indeterminate decisions.
	Allowed bool `json:"allowed"`

	// State is the workflow state the check observed.
	State string `json:"state,omitempty"`

	// Cause explains Blocked and Indeterminate decisions.
	Cause string `json:"cause,omitempty"`

	// Blocking carries the remedial action for a Blocked decision.
	Blocking *workflow.Blocking `json:"blocking,omitempty"`
}

// Validator checks stage gates against workflow state.
type Validator struct {
	workflows engstorage.WorkflowStore
	auditor   audit.Recorder
	logger    log.Logger
}

type Option func(*Validator)

func WithLogger(logger log.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

func WithAuditor(a audit.Recorder) Option {
	return func(v *Validator) {
		v.auditor = a
	}
}

// New creates a new gate validator reading workflow state from workflows.
func New(workflows engstorage.WorkflowStore, opts ...Option) *Validator {
	v := &Validator{
		workflows: workflows,
		logger:    log.NopLogger,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With("service", "gate")
	return v
}

// Names returns the gate registry.
func (v *Validator) Names() []string {
	return workflow.GateNames
}

// Validate checks gate for (orgID, workflowID) and returns its result.
// An unknown workflow is an error, not a decision: the caller asked
// about something that does not exist. A store read fault yields an
// Indeterminate (allowing) result and a nil error.
func (v *Validator) Validate(ctx context.Context, orgID, workflowID, gate string) (*Result, error) {
	prereq, ok := workflow.GatePrerequisite(gate)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGate, gate)
	}
	result := &Result{Gate: gate}

	wf, err := v.workflows.RetrieveWorkflow(ctx, orgID, workflowID)
	switch {
	case errors.Is(err, engstorage.ErrNotFound):
		return nil, err
	case err != nil:
		result.Decision = DecisionIndeterminate
		result.Allowed = true
		result.Cause = fmt.Sprintf("state unavailable: %v", err)
	case wf.State == workflow.StateCancelled:
		result.Decision = DecisionBlocked
		result.State = wf.State.String()
		result.Cause = "workflow is cancelled"
	case !wf.State.Reached(prereq):
		result.Decision = DecisionBlocked
		result.State = wf.State.String()
		result.Cause = fmt.Sprintf("requires %s; workflow is at %s", prereq, wf.State)
		result.Blocking = workflow.BlockingCondition(wf.State)
	default:
		result.Decision = DecisionAllowed
		result.Allowed = true
		result.State = wf.State.String()
	}

	ctxlog.Logger(ctx, v.logger).Debug(
		logkeys.Message, "gate checked",
		logkeys.OrgID, orgID,
		logkeys.WorkflowID, workflowID,
		logkeys.Gate, gate,
		"decision", result.Decision.String(),
	)
	if v.auditor != nil {
		v.auditor.Record(ctx, audit.Entry{
			OrgID:      orgID,
			WorkflowID: workflowID,
			EntityType: audit.EntityGate,
			EntityID:   gate,
			Action:     audit.ActionGateCheck,
			Details:    result.Decision.String(),
		})
	}
	return result, nil
}
