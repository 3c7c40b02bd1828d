// Package audit records who did what to which workflow. The trail is
// advisory: a failed append is logged and dropped so that it never
// blocks the operation it describes.
package audit

import (
	"context"
	"time"

	"github.com/intentops/intentengine/log/logkeys"
	"github.com/intentops/intentengine/subsystem/audit/storage"
	"github.com/intentops/intentengine/utils/uuid"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// Entity types recorded on the trail.
const (
	EntityWorkflow = "workflow"
	EntityApproval = "approval"
	EntityGate     = "gate"
)

// Actions recorded on the trail.
const (
	ActionCreate     = "workflow.create"
	ActionTransition = "state.transition"
	ActionCancel     = "workflow.cancel"
	ActionApproval   = "approval.record"
	ActionGateCheck  = "gate.check"
	ActionDispatch   = "stage.dispatch"
)

// ActorSystem is recorded when no human initiated the action.
const ActorSystem = "system"

// Entry describes an auditable action. The record ID and timestamp
// are assigned at append time.
type Entry struct {
	OrgID      string
	WorkflowID string
	EntityType string
	EntityID   string
	ActorID    string
	Action     string
	Details    string
	SourceAddr string
}

// Recorder records audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Auditor appends entries to the audit trail.
type Auditor struct {
	store  storage.Appender
	logger log.Logger
	ider   uuid.IDer
	nowFn  func() time.Time
}

type Option func(*Auditor)

func WithLogger(logger log.Logger) Option {
	return func(a *Auditor) {
		a.logger = logger
	}
}

func WithIDer(ider uuid.IDer) Option {
	return func(a *Auditor) {
		a.ider = ider
	}
}

// New creates a new auditor appending to store.
func New(store storage.Appender, opts ...Option) *Auditor {
	a := &Auditor{
		store:  store,
		logger: log.NopLogger,
		ider:   uuid.NewUUID(),
		nowFn:  time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("service", "audit")
	return a
}

// Record appends e to the trail. Nothing is returned: append failures
// are logged and the caller proceeds regardless.
func (a *Auditor) Record(ctx context.Context, e Entry) {
	r := &storage.Record{
		ID:         a.ider.ID(),
		OrgID:      e.OrgID,
		WorkflowID: e.WorkflowID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Action:     e.Action,
		Details:    e.Details,
		SourceAddr: e.SourceAddr,
		At:         a.nowFn(),
	}
	if r.ActorID == "" {
		r.ActorID = ActorSystem
	}
	if err := a.store.AppendRecord(ctx, r); err != nil {
		ctxlog.Logger(ctx, a.logger).Info(
			logkeys.Message, "append audit record",
			logkeys.OrgID, e.OrgID,
			logkeys.WorkflowID, e.WorkflowID,
			"action", e.Action,
			logkeys.Error, err,
		)
	}
}
