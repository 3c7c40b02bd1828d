package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/engine/storage/inmem"
	"github.com/intentops/intentengine/subsystem/approval"
	apprstorage "github.com/intentops/intentengine/subsystem/approval/storage"
	apprinmem "github.com/intentops/intentengine/subsystem/approval/storage/inmem"
	"github.com/intentops/intentengine/utils/uuid"
	"github.com/intentops/intentengine/workflow"
)

// fakeDispatcher records dispatched triggers.
type fakeDispatcher struct {
	mu        sync.Mutex
	triggers  []workflow.Trigger
	nextID    int
	returnErr error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, trigger workflow.Trigger, _, _ string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.returnErr != nil {
		return "", d.returnErr
	}
	d.triggers = append(d.triggers, trigger)
	d.nextID++
	return fmt.Sprintf("d%d", d.nextID), nil
}

func (d *fakeDispatcher) count(trigger workflow.Trigger) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, tr := range d.triggers {
		if tr == trigger {
			n++
		}
	}
	return n
}

type orchEnv struct {
	store      *inmem.InMem
	engine     *Engine
	orch       *Orchestrator
	approvals  *approval.Service
	dispatcher *fakeDispatcher
	auditor    *countingAuditor
}

func newOrchEnv(t *testing.T) *orchEnv {
	t.Helper()
	env := &orchEnv{
		store:      inmem.New(),
		dispatcher: new(fakeDispatcher),
		auditor:    new(countingAuditor),
	}
	env.engine = New(env.store,
		WithAuditor(env.auditor),
		WithIDer(uuid.NewStaticIDs("wf1", "wf2")),
	)
	env.approvals = approval.New(apprinmem.New(), env.store)
	env.orch = NewOrchestrator(env.engine, env.approvals, env.dispatcher)
	return env
}

// step simulates one worker cycle: pick up the pending stage and
// report its terminal event.
func (env *orchEnv) step(t *testing.T, pending, processing workflow.State, event workflow.StageEvent, key string) {
	t.Helper()
	ctx := context.Background()
	r, err := env.engine.AttemptTransition(ctx, "o1", "wf1", pending, processing, key+"-pickup")
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeApplied {
		t.Fatalf("pickup %s: expected applied; got %s", pending, r.Outcome.Code())
	}
	r, err = env.orch.HandleStageEvent(ctx, "o1", "wf1", event, key)
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeApplied {
		t.Fatalf("event %s: expected applied; got %s", event, r.Outcome.Code())
	}
}

func (env *orchEnv) approve(t *testing.T, typ apprstorage.Type) {
	t.Helper()
	ctx := context.Background()
	if _, err := env.approvals.RecordApproval(ctx, "o1", "wf1", typ, approval.Request{
		Decision:   apprstorage.DecisionApproved,
		ApproverID: "reviewer-1",
	}); err != nil {
		t.Fatal(err)
	}
	r, err := env.orch.ResumeFromApproval(ctx, "o1", "wf1", typ)
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeApplied {
		t.Fatalf("resume %s: expected applied; got %s", typ, r.Outcome.Code())
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newOrchEnv(t)

	wf, err := env.orch.StartWorkflow(ctx, "o1", "spring launch")
	if err != nil {
		t.Fatal(err)
	}
	if wf.ID != "wf1" || wf.State != workflow.InitialState {
		t.Fatalf("unexpected workflow: %+v", wf)
	}
	if env.dispatcher.count(workflow.TriggerAudience) != 1 {
		t.Fatal("expected audience trigger on start")
	}

	env.step(t, workflow.StateAudiencePending, workflow.StateAudienceProcessing, workflow.EventAudienceCompleted, "e1")
	mustState(t, env.store, "o1", "wf1", workflow.StateCompetitorPending)
	if env.dispatcher.count(workflow.TriggerCompetitor) != 1 {
		t.Fatal("expected competitor trigger after audience completion")
	}

	env.step(t, workflow.StateCompetitorPending, workflow.StateCompetitorProcessing, workflow.EventCompetitorCompleted, "e2")
	env.step(t, workflow.StateSeedPending, workflow.StateSeedProcessing, workflow.EventSeedCompleted, "e3")
	env.step(t, workflow.StateLongtailPending, workflow.StateLongtailProcessing, workflow.EventLongtailCompleted, "e4")
	env.step(t, workflow.StateFilterPending, workflow.StateFilterProcessing, workflow.EventFilterCompleted, "e5")
	mustState(t, env.store, "o1", "wf1", workflow.StateClusterPending)

	// clustering completes into the first review boundary; the
	// automation chain parks and dispatches nothing
	env.step(t, workflow.StateClusterPending, workflow.StateClusterProcessing, workflow.EventClusterCompleted, "e6")
	mustState(t, env.store, "o1", "wf1", workflow.StateAwaitingClusterApproval)
	if env.dispatcher.count(workflow.TriggerSubtopic) != 0 {
		t.Fatal("expected no dispatch while awaiting cluster review")
	}

	env.approve(t, apprstorage.TypeCluster)
	mustState(t, env.store, "o1", "wf1", workflow.StateSubtopicPending)
	if env.dispatcher.count(workflow.TriggerSubtopic) != 1 {
		t.Fatal("expected subtopic trigger after cluster approval")
	}

	env.step(t, workflow.StateSubtopicPending, workflow.StateSubtopicProcessing, workflow.EventSubtopicCompleted, "e7")
	mustState(t, env.store, "o1", "wf1", workflow.StateAwaitingSubtopicApproval)

	env.approve(t, apprstorage.TypeSubtopic)
	mustState(t, env.store, "o1", "wf1", workflow.StateQueuePending)
	if env.dispatcher.count(workflow.TriggerQueue) != 1 {
		t.Fatal("expected queue trigger after subtopic approval")
	}

	env.step(t, workflow.StateQueuePending, workflow.StateQueueProcessing, workflow.EventQueueCompleted, "e8")
	mustState(t, env.store, "o1", "wf1", workflow.StateCompleted)
}

func TestHandleStageEventConcurrentDelivery(t *testing.T) {
	// at-least-once delivery: N copies of the same completion with
	// distinct keys produce one advance and one dispatch
	ctx := context.Background()
	env := newOrchEnv(t)
	err := env.store.CreateWorkflow(ctx, &storage.WorkflowRecord{
		ID:    "wf1",
		OrgID: "o1",
		State: workflow.StateAudienceProcessing,
	})
	if err != nil {
		t.Fatal(err)
	}

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := env.orch.HandleStageEvent(ctx, "o1", "wf1",
				workflow.EventAudienceCompleted, fmt.Sprintf("dup-%d", i))
			if err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	mustState(t, env.store, "o1", "wf1", workflow.StateCompetitorPending)
	if ct := env.dispatcher.count(workflow.TriggerCompetitor); ct != 1 {
		t.Errorf("expected exactly 1 competitor dispatch; got %d", ct)
	}
}

func TestHandleStageEventReplay(t *testing.T) {
	ctx := context.Background()
	env := newOrchEnv(t)
	err := env.store.CreateWorkflow(ctx, &storage.WorkflowRecord{
		ID:    "wf1",
		OrgID: "o1",
		State: workflow.StateSeedProcessing,
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		r, err := env.orch.HandleStageEvent(ctx, "o1", "wf1", workflow.EventSeedCompleted, "same-key")
		if err != nil {
			t.Fatal(err)
		}
		if r.Outcome != OutcomeApplied {
			t.Fatalf("attempt %d: expected applied; got %s", i, r.Outcome.Code())
		}
	}
	mustState(t, env.store, "o1", "wf1", workflow.StateLongtailPending)
	if ct := env.dispatcher.count(workflow.TriggerLongtail); ct != 1 {
		t.Errorf("expected exactly 1 longtail dispatch; got %d", ct)
	}
}

func TestHandleStageEventFailure(t *testing.T) {
	// a failure event records the failed state and chains nothing
	ctx := context.Background()
	env := newOrchEnv(t)
	err := env.store.CreateWorkflow(ctx, &storage.WorkflowRecord{
		ID:    "wf1",
		OrgID: "o1",
		State: workflow.StateFilterProcessing,
	})
	if err != nil {
		t.Fatal(err)
	}

	r, err := env.orch.HandleStageEvent(ctx, "o1", "wf1", workflow.EventFilterFailed, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeApplied {
		t.Fatalf("expected applied; got %s", r.Outcome.Code())
	}
	mustState(t, env.store, "o1", "wf1", workflow.StateFilterFailed)
	if len(env.dispatcher.triggers) != 0 {
		t.Errorf("expected no dispatches after failure; got %v", env.dispatcher.triggers)
	}
}

func TestHandleStageEventUnknown(t *testing.T) {
	env := newOrchEnv(t)
	if _, err := env.orch.HandleStageEvent(context.Background(), "o1", "wf1", workflow.StageEvent(99), "k1"); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent; got %v", err)
	}
}

func TestRetryStage(t *testing.T) {
	ctx := context.Background()
	env := newOrchEnv(t)
	err := env.store.CreateWorkflow(ctx, &storage.WorkflowRecord{
		ID:    "wf1",
		OrgID: "o1",
		State: workflow.StateClusterFailed,
	})
	if err != nil {
		t.Fatal(err)
	}

	r, err := env.orch.RetryStage(ctx, "o1", "wf1", "retry-1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeApplied {
		t.Fatalf("expected applied; got %s", r.Outcome.Code())
	}
	mustState(t, env.store, "o1", "wf1", workflow.StateClusterProcessing)
	if env.dispatcher.count(workflow.TriggerCluster) != 1 {
		t.Fatal("expected cluster trigger on retry")
	}

	// retry is no longer possible once the stage is processing again
	if _, err = env.orch.RetryStage(ctx, "o1", "wf1", "retry-2"); !errors.Is(err, ErrNotFailed) {
		t.Errorf("expected ErrNotFailed; got %v", err)
	}
}

func TestResumeRejectedSendsStageBack(t *testing.T) {
	ctx := context.Background()
	env := newOrchEnv(t)
	err := env.store.CreateWorkflow(ctx, &storage.WorkflowRecord{
		ID:    "wf1",
		OrgID: "o1",
		State: workflow.StateAwaitingClusterApproval,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err = env.approvals.RecordApproval(ctx, "o1", "wf1", apprstorage.TypeCluster, approval.Request{
		Decision:   apprstorage.DecisionRejected,
		ApproverID: "reviewer-1",
		Comment:    "clusters too broad",
	}); err != nil {
		t.Fatal(err)
	}

	r, err := env.orch.ResumeFromApproval(ctx, "o1", "wf1", apprstorage.TypeCluster)
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeApplied {
		t.Fatalf("expected applied; got %s", r.Outcome.Code())
	}
	mustState(t, env.store, "o1", "wf1", workflow.StateClusterPending)
	if env.dispatcher.count(workflow.TriggerCluster) != 1 {
		t.Fatal("expected cluster redo trigger")
	}
}

func TestResumeWithoutDecision(t *testing.T) {
	ctx := context.Background()
	env := newOrchEnv(t)
	err := env.store.CreateWorkflow(ctx, &storage.WorkflowRecord{
		ID:    "wf1",
		OrgID: "o1",
		State: workflow.StateAwaitingSubtopicApproval,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err = env.orch.ResumeFromApproval(ctx, "o1", "wf1", apprstorage.TypeSubtopic); !errors.Is(err, ErrNoDecision) {
		t.Errorf("expected ErrNoDecision; got %v", err)
	}
}

func TestResumeRepeatedIsConflict(t *testing.T) {
	ctx := context.Background()
	env := newOrchEnv(t)
	err := env.store.CreateWorkflow(ctx, &storage.WorkflowRecord{
		ID:    "wf1",
		OrgID: "o1",
		State: workflow.StateAwaitingSubtopicApproval,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err = env.approvals.RecordApproval(ctx, "o1", "wf1", apprstorage.TypeSubtopic, approval.Request{
		Decision:   apprstorage.DecisionApproved,
		ApproverID: "reviewer-1",
	}); err != nil {
		t.Fatal(err)
	}

	first, err := env.orch.ResumeFromApproval(ctx, "o1", "wf1", apprstorage.TypeSubtopic)
	if err != nil {
		t.Fatal(err)
	}
	if first.Outcome != OutcomeApplied {
		t.Fatalf("expected applied; got %s", first.Outcome.Code())
	}

	second, err := env.orch.ResumeFromApproval(ctx, "o1", "wf1", apprstorage.TypeSubtopic)
	if err != nil {
		t.Fatal(err)
	}
	if second.Outcome != OutcomeConflict {
		t.Errorf("expected conflict on repeated resume; got %s", second.Outcome.Code())
	}
	if ct := env.dispatcher.count(workflow.TriggerQueue); ct != 1 {
		t.Errorf("expected exactly 1 queue dispatch; got %d", ct)
	}
}

func TestDispatchFailureLeavesStagePending(t *testing.T) {
	ctx := context.Background()
	env := newOrchEnv(t)
	env.dispatcher.returnErr = errors.New("workers unreachable")
	err := env.store.CreateWorkflow(ctx, &storage.WorkflowRecord{
		ID:    "wf1",
		OrgID: "o1",
		State: workflow.StateAudienceProcessing,
	})
	if err != nil {
		t.Fatal(err)
	}

	r, err := env.orch.HandleStageEvent(ctx, "o1", "wf1", workflow.EventAudienceCompleted, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeApplied {
		t.Fatalf("expected applied; got %s", r.Outcome.Code())
	}
	// the advance stands; delivery can be retried out of band
	mustState(t, env.store, "o1", "wf1", workflow.StateCompetitorPending)
}
