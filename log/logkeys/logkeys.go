// Package logkeys defines some static logging keys for consistent structured logging output.
// Mostly exists as a mental aid when drafting log messages.
package logkeys

const (
	Message = "msg"
	Error   = "err"

	// tenant boundary; present on nearly every operation
	OrgID = "org_id"

	WorkflowID   = "workflow_id"
	WorkflowName = "workflow_name"

	FromState = "from_state"
	ToState   = "to_state"
	State     = "state"

	IdempotencyKey = "idempotency_key"
	Outcome        = "outcome"

	Gate         = "gate"
	ApprovalType = "approval_type"
	ActorID      = "actor_id"

	Event      = "event"
	Trigger    = "trigger"
	DispatchID = "dispatch_id"

	// a context-dependent numerical count/length of something
	GenericCount = "count"
)
