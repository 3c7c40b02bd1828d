package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/intentops/intentengine/dispatch"
	"github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/log/logkeys"
	"github.com/intentops/intentengine/subsystem/approval"
	apprstorage "github.com/intentops/intentengine/subsystem/approval/storage"
	"github.com/intentops/intentengine/subsystem/audit"
	"github.com/intentops/intentengine/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	// ErrUnknownEvent is returned for an event outside the stage
	// event vocabulary.
	ErrUnknownEvent = errors.New("unknown stage event")

	// ErrNoDecision is returned when a resume is requested for a
	// review boundary with no recorded decision.
	ErrNoDecision = errors.New("no approval decision recorded")
)

// eventEdge is the transition a stage event reports.
type eventEdge struct {
	from, to workflow.State
}

// eventEdges maps each stage event to its transition. Completion moves
// processing to completed; failure moves processing to failed.
var eventEdges = map[workflow.StageEvent]eventEdge{
	workflow.EventAudienceCompleted:   {workflow.StateAudienceProcessing, workflow.StateAudienceCompleted},
	workflow.EventAudienceFailed:      {workflow.StateAudienceProcessing, workflow.StateAudienceFailed},
	workflow.EventCompetitorCompleted: {workflow.StateCompetitorProcessing, workflow.StateCompetitorCompleted},
	workflow.EventCompetitorFailed:    {workflow.StateCompetitorProcessing, workflow.StateCompetitorFailed},
	workflow.EventSeedCompleted:       {workflow.StateSeedProcessing, workflow.StateSeedCompleted},
	workflow.EventSeedFailed:          {workflow.StateSeedProcessing, workflow.StateSeedFailed},
	workflow.EventLongtailCompleted:   {workflow.StateLongtailProcessing, workflow.StateLongtailCompleted},
	workflow.EventLongtailFailed:      {workflow.StateLongtailProcessing, workflow.StateLongtailFailed},
	workflow.EventFilterCompleted:     {workflow.StateFilterProcessing, workflow.StateFilterCompleted},
	workflow.EventFilterFailed:        {workflow.StateFilterProcessing, workflow.StateFilterFailed},
	workflow.EventClusterCompleted:    {workflow.StateClusterProcessing, workflow.StateClusterCompleted},
	workflow.EventClusterFailed:       {workflow.StateClusterProcessing, workflow.StateClusterFailed},
	workflow.EventSubtopicCompleted:   {workflow.StateSubtopicProcessing, workflow.StateSubtopicCompleted},
	workflow.EventSubtopicFailed:      {workflow.StateSubtopicProcessing, workflow.StateSubtopicFailed},
	workflow.EventQueueCompleted:      {workflow.StateQueueProcessing, workflow.StateCompleted},
	workflow.EventQueueFailed:         {workflow.StateQueueProcessing, workflow.StateQueueFailed},
}

// continuation describes what happens after a stage completes: where
// the workflow goes next and, when the next stage starts without a
// human, which trigger to dispatch. A zero trigger is a human review
// boundary; the workflow parks there until an explicit resume.
type continuation struct {
	next    workflow.State
	trigger workflow.Trigger
}

// continuations holds the automation chain. The two review boundaries
// are the only completed states that advance without dispatching.
var continuations = map[workflow.State]continuation{
	workflow.StateAudienceCompleted:   {workflow.StateCompetitorPending, workflow.TriggerCompetitor},
	workflow.StateCompetitorCompleted: {workflow.StateSeedPending, workflow.TriggerSeed},
	workflow.StateSeedCompleted:       {workflow.StateLongtailPending, workflow.TriggerLongtail},
	workflow.StateLongtailCompleted:   {workflow.StateFilterPending, workflow.TriggerFilter},
	workflow.StateFilterCompleted:     {workflow.StateClusterPending, workflow.TriggerCluster},
	workflow.StateClusterCompleted:    {workflow.StateAwaitingClusterApproval, ""},
	workflow.StateSubtopicCompleted:   {workflow.StateAwaitingSubtopicApproval, ""},
}

// resumptions maps each review boundary to where an approval sends the
// workflow, and where a rejection sends it back to.
var resumptions = map[apprstorage.Type]struct {
	approved continuation
	rejected continuation
}{
	apprstorage.TypeCluster: {
		approved: continuation{workflow.StateSubtopicPending, workflow.TriggerSubtopic},
		rejected: continuation{workflow.StateClusterPending, workflow.TriggerCluster},
	},
	apprstorage.TypeSubtopic: {
		approved: continuation{workflow.StateQueuePending, workflow.TriggerQueue},
		rejected: continuation{workflow.StateSubtopicPending, workflow.TriggerSubtopic},
	},
}

// Orchestrator drives workflows through the pipeline: it applies stage
// events through the engine and performs the automation chain between
// stages, stopping at the human review boundaries.
type Orchestrator struct {
	engine     *Engine
	approvals  *approval.Service
	dispatcher dispatch.Dispatcher
	logger     log.Logger
}

type OrchestratorOption func(*Orchestrator)

func WithOrchestratorLogger(logger log.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an orchestrator over engine. Stage triggers
// go out through dispatcher; resume decisions are read from approvals.
func NewOrchestrator(engine *Engine, approvals *approval.Service, dispatcher dispatch.Dispatcher, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		engine:     engine,
		approvals:  approvals,
		dispatcher: dispatcher,
		logger:     log.NopLogger,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("service", "orchestrator")
	return o
}

// StartWorkflow creates a workflow and dispatches the first stage.
func (o *Orchestrator) StartWorkflow(ctx context.Context, orgID, name string) (*storage.WorkflowRecord, error) {
	wf, err := o.engine.CreateWorkflow(ctx, orgID, name)
	if err != nil {
		return nil, err
	}
	o.dispatch(ctx, workflow.TriggerAudience, orgID, wf.ID)
	return wf, nil
}

// HandleStageEvent applies a worker's terminal callback and, when the
// callback completes a stage, performs the automation chain: advance
// to the next pending state and dispatch its trigger, or park at a
// review boundary. The idempotency key covers the event's transition;
// a replayed event does not advance or dispatch again, and of N
// concurrent deliveries only the one whose advance swap wins
// dispatches the next stage.
func (o *Orchestrator) HandleStageEvent(ctx context.Context, orgID, workflowID string, event workflow.StageEvent, idemKey string) (*TransitionResult, error) {
	edge, ok := eventEdges[event]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	result, err := o.engine.AttemptTransition(ctx, orgID, workflowID, edge.from, edge.to, idemKey)
	if err != nil {
		return nil, fmt.Errorf("applying event transition: %w", err)
	}
	if result.Outcome != OutcomeApplied || result.replayed {
		// conflicts, invalids and replays never advance
		return result, nil
	}

	cont, ok := continuations[edge.to]
	if !ok {
		return result, nil
	}
	o.advance(ctx, orgID, workflowID, edge.to, cont)
	return result, nil
}

// advance performs one automation chain step with a bare conditional
// swap. The completed state is consumed by the swap, so concurrent
// deliveries of the same completion elect exactly one dispatcher.
func (o *Orchestrator) advance(ctx context.Context, orgID, workflowID string, from workflow.State, cont continuation) {
	logger := ctxlog.Logger(ctx, o.logger).With(
		logkeys.OrgID, orgID,
		logkeys.WorkflowID, workflowID,
		logkeys.FromState, from.String(),
		logkeys.ToState, cont.next.String(),
	)
	ok, err := o.engine.store.CompareAndSwapState(ctx, orgID, workflowID, from, cont.next, nil)
	if err != nil {
		logger.Info(logkeys.Message, "advancing workflow", logkeys.Error, err)
		return
	}
	if !ok {
		logger.Debug(logkeys.Message, "advance already performed")
		return
	}
	logger.Debug(logkeys.Message, "advanced workflow")
	o.engine.audit(ctx, audit.Entry{
		OrgID:      orgID,
		WorkflowID: workflowID,
		EntityType: audit.EntityWorkflow,
		Action:     audit.ActionTransition,
		Details:    from.String() + " > " + cont.next.String(),
	})
	if cont.trigger != "" {
		o.dispatch(ctx, cont.trigger, orgID, workflowID)
	}
}

// retries maps each failed state back to its own stage's processing
// state and the trigger that re-runs the work. A failed stage re-enters
// processing directly; the re-dispatched worker reports its terminal
// event as usual.
var retries = map[workflow.State]continuation{
	workflow.StateAudienceFailed:   {workflow.StateAudienceProcessing, workflow.TriggerAudience},
	workflow.StateCompetitorFailed: {workflow.StateCompetitorProcessing, workflow.TriggerCompetitor},
	workflow.StateSeedFailed:       {workflow.StateSeedProcessing, workflow.TriggerSeed},
	workflow.StateLongtailFailed:   {workflow.StateLongtailProcessing, workflow.TriggerLongtail},
	workflow.StateFilterFailed:     {workflow.StateFilterProcessing, workflow.TriggerFilter},
	workflow.StateClusterFailed:    {workflow.StateClusterProcessing, workflow.TriggerCluster},
	workflow.StateSubtopicFailed:   {workflow.StateSubtopicProcessing, workflow.TriggerSubtopic},
	workflow.StateQueueFailed:      {workflow.StateQueueProcessing, workflow.TriggerQueue},
}

// ErrNotFailed is returned when a retry is requested for a workflow
// that is not in a failed state.
var ErrNotFailed = errors.New("workflow is not in a failed state")

// RetryStage re-enters a failed stage's processing state and
// dispatches its trigger again. The idempotency key covers the retry
// transition, so a retried retry neither moves the workflow nor
// dispatches twice.
func (o *Orchestrator) RetryStage(ctx context.Context, orgID, workflowID, idemKey string) (*TransitionResult, error) {
	wf, err := o.engine.RetrieveWorkflow(ctx, orgID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("retrieving workflow: %w", err)
	}
	cont, ok := retries[wf.State]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFailed, wf.State)
	}
	result, err := o.engine.AttemptTransition(ctx, orgID, workflowID, wf.State, cont.next, idemKey)
	if err != nil {
		return nil, err
	}
	if result.Outcome == OutcomeApplied && !result.replayed {
		o.dispatch(ctx, cont.trigger, orgID, workflowID)
	}
	return result, nil
}

// ResumeFromApproval continues a workflow parked at a review boundary
// according to the recorded decision: approvals move it forward,
// rejections send the stage back for another pass. The boundary state
// is consumed by the swap, so a repeated resume is a conflict, not a
// second dispatch.
func (o *Orchestrator) ResumeFromApproval(ctx context.Context, orgID, workflowID string, t apprstorage.Type) (*TransitionResult, error) {
	res, ok := resumptions[t]
	if !ok {
		return nil, apprstorage.ErrInvalidType
	}
	awaiting, _ := approval.AwaitingState(t)

	decision, err := o.approvals.RetrieveApproval(ctx, orgID, workflowID, t)
	if errors.Is(err, apprstorage.ErrNotFound) {
		return nil, ErrNoDecision
	} else if err != nil {
		return nil, fmt.Errorf("retrieving decision: %w", err)
	}
	cont := res.rejected
	if decision.Decision == apprstorage.DecisionApproved {
		cont = res.approved
	}

	result := &TransitionResult{
		FromState: awaiting.String(),
		ToState:   cont.next.String(),
	}
	ok, err = o.engine.store.CompareAndSwapState(ctx, orgID, workflowID, awaiting, cont.next, nil)
	if errors.Is(err, storage.ErrNotFound) {
		result.Outcome = OutcomeNotFound
		return result, nil
	} else if err != nil {
		return nil, fmt.Errorf("swapping state: %w", err)
	}
	if !ok {
		result.Outcome = OutcomeConflict
		if wf, err := o.engine.store.RetrieveWorkflow(ctx, orgID, workflowID); err == nil {
			result.CurrentState = wf.State.String()
		}
		return result, nil
	}

	result.Outcome = OutcomeApplied
	result.AppliedAt = o.engine.nowFn()
	ctxlog.Logger(ctx, o.logger).Info(
		logkeys.Message, "resumed workflow",
		logkeys.OrgID, orgID,
		logkeys.WorkflowID, workflowID,
		logkeys.ApprovalType, string(t),
		logkeys.ToState, cont.next.String(),
	)
	o.engine.audit(ctx, audit.Entry{
		OrgID:      orgID,
		WorkflowID: workflowID,
		EntityType: audit.EntityWorkflow,
		ActorID:    decision.ApproverID,
		Action:     audit.ActionTransition,
		Details:    awaiting.String() + " > " + cont.next.String(),
	})
	o.dispatch(ctx, cont.trigger, orgID, workflowID)
	return result, nil
}

// dispatch hands a trigger to the dispatcher. Dispatch failures are
// logged, not returned: the state swap already decided the workflow's
// position, and delivery is at-least-once by contract.
func (o *Orchestrator) dispatch(ctx context.Context, trigger workflow.Trigger, orgID, workflowID string) {
	logger := ctxlog.Logger(ctx, o.logger).With(
		logkeys.OrgID, orgID,
		logkeys.WorkflowID, workflowID,
		logkeys.Trigger, string(trigger),
	)
	dispatchID, err := o.dispatcher.Dispatch(ctx, trigger, orgID, workflowID)
	if err != nil {
		logger.Info(logkeys.Message, "dispatching trigger", logkeys.Error, err)
		return
	}
	logger.Debug(logkeys.Message, "dispatched trigger", logkeys.DispatchID, dispatchID)
	o.engine.audit(ctx, audit.Entry{
		OrgID:      orgID,
		WorkflowID: workflowID,
		EntityType: audit.EntityWorkflow,
		EntityID:   dispatchID,
		Action:     audit.ActionDispatch,
		Details:    string(trigger),
	})
}
