package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/engine/storage/inmem"
	"github.com/intentops/intentengine/subsystem/audit"
	auditstorage "github.com/intentops/intentengine/subsystem/audit/storage"
	"github.com/intentops/intentengine/workflow"
)

// countingAuditor captures audit entries for assertions.
type countingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *countingAuditor) Record(_ context.Context, e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *countingAuditor) count(action string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

func newTestEngine(t *testing.T, state workflow.State) (*Engine, *inmem.InMem, *countingAuditor) {
	t.Helper()
	store := inmem.New()
	err := store.CreateWorkflow(context.Background(), &storage.WorkflowRecord{
		ID:    "wf1",
		OrgID: "o1",
		State: state,
	})
	if err != nil {
		t.Fatal(err)
	}
	auditor := new(countingAuditor)
	return New(store, WithAuditor(auditor)), store, auditor
}

func mustState(t *testing.T, store storage.WorkflowStore, orgID, workflowID string, want workflow.State) {
	t.Helper()
	wf, err := store.RetrieveWorkflow(context.Background(), orgID, workflowID)
	if err != nil {
		t.Fatal(err)
	}
	if wf.State != want {
		t.Errorf("expected state %s; got %s", want, wf.State)
	}
}

func TestAttemptTransitionConcurrent(t *testing.T) {
	// N racing attempts for the same edge with distinct keys:
	// exactly one applies, the rest observe the conflict
	ctx := context.Background()
	eng, store, auditor := newTestEngine(t, workflow.StateAudienceProcessing)

	const n = 16
	outcomes := make([]Outcome, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			r, err := eng.AttemptTransition(ctx, "o1", "wf1",
				workflow.StateAudienceProcessing, workflow.StateAudienceCompleted,
				fmt.Sprintf("key-%d", i))
			if err != nil {
				t.Error(err)
				return
			}
			outcomes[i] = r.Outcome
		}(i)
	}
	wg.Wait()

	applied, conflicts := 0, 0
	for _, o := range outcomes {
		switch o {
		case OutcomeApplied:
			applied++
		case OutcomeConflict:
			conflicts++
		}
	}
	if applied != 1 {
		t.Errorf("expected exactly 1 applied; got %d", applied)
	}
	if conflicts != n-1 {
		t.Errorf("expected %d conflicts; got %d", n-1, conflicts)
	}
	mustState(t, store, "o1", "wf1", workflow.StateAudienceCompleted)
	if ct := auditor.count(audit.ActionTransition); ct != 1 {
		t.Errorf("expected 1 transition audit record; got %d", ct)
	}
}

func TestAttemptTransitionReplay(t *testing.T) {
	ctx := context.Background()
	eng, store, auditor := newTestEngine(t, workflow.StateSeedProcessing)

	first, err := eng.AttemptTransition(ctx, "o1", "wf1",
		workflow.StateSeedProcessing, workflow.StateSeedCompleted, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if first.Outcome != OutcomeApplied {
		t.Fatalf("expected applied; got %s", first.Outcome.Code())
	}

	second, err := eng.AttemptTransition(ctx, "o1", "wf1",
		workflow.StateSeedProcessing, workflow.StateSeedCompleted, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if !second.replayed {
		t.Error("expected second attempt to be a ledger replay")
	}

	// the retried request reads exactly what the original did
	a, err := json.Marshal(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("expected identical responses:\n%s\n%s", a, b)
	}

	mustState(t, store, "o1", "wf1", workflow.StateSeedCompleted)
	if ct := auditor.count(audit.ActionTransition); ct != 1 {
		t.Errorf("expected replay to add no audit record; got %d", ct)
	}

	// a replay wins even after the workflow has moved on
	ok, err := store.CompareAndSwapState(ctx, "o1", "wf1",
		workflow.StateSeedCompleted, workflow.StateLongtailPending, nil)
	if err != nil || !ok {
		t.Fatalf("swap: %v %v", ok, err)
	}
	third, err := eng.AttemptTransition(ctx, "o1", "wf1",
		workflow.StateSeedProcessing, workflow.StateSeedCompleted, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if third.Outcome != OutcomeApplied || !third.replayed {
		t.Errorf("expected replay after advance; got %+v", third)
	}
	mustState(t, store, "o1", "wf1", workflow.StateLongtailPending)
}

func TestAttemptTransitionInvalid(t *testing.T) {
	ctx := context.Background()
	eng, store, auditor := newTestEngine(t, workflow.StateAudiencePending)

	r, err := eng.AttemptTransition(ctx, "o1", "wf1",
		workflow.StateAudiencePending, workflow.StateClusterCompleted, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeInvalid {
		t.Errorf("expected invalid; got %s", r.Outcome.Code())
	}

	// nothing written: state, ledger and audit are untouched
	mustState(t, store, "o1", "wf1", workflow.StateAudiencePending)
	if _, found, _ := store.RetrieveTransition(ctx, "o1", "wf1", "k1"); found {
		t.Error("expected no ledger entry for an invalid attempt")
	}
	if ct := auditor.count(audit.ActionTransition); ct != 0 {
		t.Errorf("expected no audit records; got %d", ct)
	}

	// an illegal edge is invalid even when the from state matches a
	// later legal source
	r, err = eng.AttemptTransition(ctx, "o1", "wf1",
		workflow.StateAudienceCompleted, workflow.StateAudiencePending, "k2")
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeInvalid {
		t.Errorf("expected invalid for backward edge; got %s", r.Outcome.Code())
	}
}

func TestAttemptTransitionNotFound(t *testing.T) {
	eng, _, _ := newTestEngine(t, workflow.StateAudiencePending)
	r, err := eng.AttemptTransition(context.Background(), "o1", "nope",
		workflow.StateAudiencePending, workflow.StateAudienceProcessing, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeNotFound {
		t.Errorf("expected not found; got %s", r.Outcome.Code())
	}
}

func TestAttemptTransitionMissingKey(t *testing.T) {
	eng, _, _ := newTestEngine(t, workflow.StateAudiencePending)
	if _, err := eng.AttemptTransition(context.Background(), "o1", "wf1",
		workflow.StateAudiencePending, workflow.StateAudienceProcessing, ""); err == nil {
		t.Error("expected error for missing idempotency key")
	}
}

func TestTerminalImmutability(t *testing.T) {
	ctx := context.Background()
	for _, terminal := range []workflow.State{workflow.StateCompleted, workflow.StateCancelled} {
		eng, store, _ := newTestEngine(t, terminal)
		r, err := eng.AttemptTransition(ctx, "o1", "wf1",
			terminal, workflow.StateAudiencePending, "k1")
		if err != nil {
			t.Fatal(err)
		}
		if r.Outcome != OutcomeInvalid {
			t.Errorf("%s: expected invalid; got %s", terminal, r.Outcome.Code())
		}
		mustState(t, store, "o1", "wf1", terminal)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	eng, store, auditor := newTestEngine(t, workflow.StateLongtailProcessing)

	r, err := eng.Cancel(ctx, "o1", "wf1", "user-1", "direction change")
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeApplied {
		t.Fatalf("expected applied; got %s", r.Outcome.Code())
	}
	wf, err := store.RetrieveWorkflow(ctx, "o1", "wf1")
	if err != nil {
		t.Fatal(err)
	}
	if wf.State != workflow.StateCancelled {
		t.Errorf("expected cancelled; got %s", wf.State)
	}
	if wf.Cancellation == nil || wf.Cancellation.Actor != "user-1" || wf.Cancellation.Reason != "direction change" {
		t.Errorf("expected cancellation metadata; got %+v", wf.Cancellation)
	}
	if ct := auditor.count(audit.ActionCancel); ct != 1 {
		t.Errorf("expected 1 cancel audit record; got %d", ct)
	}

	// cancelling again is a no-op, with no second audit record
	r, err = eng.Cancel(ctx, "o1", "wf1", "user-2", "again")
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeNoop {
		t.Errorf("expected noop; got %s", r.Outcome.Code())
	}
	wf, err = store.RetrieveWorkflow(ctx, "o1", "wf1")
	if err != nil {
		t.Fatal(err)
	}
	if wf.Cancellation.Actor != "user-1" {
		t.Errorf("expected original cancellation preserved; got %+v", wf.Cancellation)
	}
	if ct := auditor.count(audit.ActionCancel); ct != 1 {
		t.Errorf("expected no second cancel audit record; got %d", ct)
	}
}

func TestCancelCompleted(t *testing.T) {
	eng, store, _ := newTestEngine(t, workflow.StateCompleted)
	r, err := eng.Cancel(context.Background(), "o1", "wf1", "user-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeInvalid {
		t.Errorf("expected invalid; got %s", r.Outcome.Code())
	}
	mustState(t, store, "o1", "wf1", workflow.StateCompleted)
}

func TestCancelNotFound(t *testing.T) {
	eng, _, _ := newTestEngine(t, workflow.StateAudiencePending)
	r, err := eng.Cancel(context.Background(), "o1", "nope", "user-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeNotFound {
		t.Errorf("expected not found; got %s", r.Outcome.Code())
	}
}

func TestLedgerFailureDoesNotUndoSwap(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	err := store.CreateWorkflow(ctx, &storage.WorkflowRecord{
		ID:    "wf1",
		OrgID: "o1",
		State: workflow.StateFilterProcessing,
	})
	if err != nil {
		t.Fatal(err)
	}
	eng := New(&brokenLedger{store})

	r, err := eng.AttemptTransition(ctx, "o1", "wf1",
		workflow.StateFilterProcessing, workflow.StateFilterCompleted, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeApplied {
		t.Errorf("expected applied despite ledger failure; got %s", r.Outcome.Code())
	}
	mustState(t, store, "o1", "wf1", workflow.StateFilterCompleted)
}

// brokenLedger applies swaps but fails every ledger write.
type brokenLedger struct {
	storage.AllStorage
}

func (b *brokenLedger) StoreTransition(_ context.Context, _, _ string, _ *storage.TransitionRecord) error {
	return fmt.Errorf("ledger unavailable")
}

func TestAuditFailureDoesNotFailTransition(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	err := store.CreateWorkflow(ctx, &storage.WorkflowRecord{
		ID:    "wf1",
		OrgID: "o1",
		State: workflow.StateQueueProcessing,
	})
	if err != nil {
		t.Fatal(err)
	}
	eng := New(store, WithAuditor(audit.New(failingAppender{})))

	r, err := eng.AttemptTransition(ctx, "o1", "wf1",
		workflow.StateQueueProcessing, workflow.StateCompleted, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeApplied {
		t.Errorf("expected applied despite audit failure; got %s", r.Outcome.Code())
	}
	mustState(t, store, "o1", "wf1", workflow.StateCompleted)
}

type failingAppender struct{}

func (failingAppender) AppendRecord(_ context.Context, _ *auditstorage.Record) error {
	return fmt.Errorf("trail unavailable")
}
