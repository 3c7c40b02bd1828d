// Package test implements a conformance test suite for engine storage backends.
package test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/workflow"
)

// TestEngineStorage runs the storage conformance suite against the
// backend returned by newStorage.
func TestEngineStorage(t *testing.T, newStorage func() storage.AllStorage) {
	t.Run("workflow", func(t *testing.T) {
		testWorkflow(t, newStorage())
	})
	t.Run("tenant_isolation", func(t *testing.T) {
		testTenantIsolation(t, newStorage())
	})
	t.Run("cas", func(t *testing.T) {
		testCAS(t, newStorage())
	})
	t.Run("cas_race", func(t *testing.T) {
		testCASRace(t, newStorage())
	})
	t.Run("ledger", func(t *testing.T) {
		testLedger(t, newStorage())
	})
}

func testWorkflow(t *testing.T, s storage.AllStorage) {
	ctx := context.Background()
	const wfID = "wf-main"

	err := s.CreateWorkflow(ctx, &storage.WorkflowRecord{OrgID: "o1", State: workflow.InitialState})
	if err == nil {
		t.Error("expected error for missing workflow id")
	}

	r := &storage.WorkflowRecord{
		ID:    wfID,
		OrgID: "o1",
		Name:  "spring launch keywords",
		State: workflow.InitialState,
	}
	if err = s.CreateWorkflow(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err = s.CreateWorkflow(ctx, r); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("have %v, want ErrAlreadyExists", err)
	}

	r2, err := s.RetrieveWorkflow(ctx, "o1", wfID)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := r2.State, workflow.InitialState; have != want {
		t.Errorf("have %s, want %s", have, want)
	}
	if have, want := r2.Name, r.Name; have != want {
		t.Errorf("have %q, want %q", have, want)
	}
	if r2.Cancellation != nil {
		t.Error("unexpected cancellation metadata")
	}

	if _, err = s.RetrieveWorkflow(ctx, "o1", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("have %v, want ErrNotFound", err)
	}
}

func testTenantIsolation(t *testing.T, s storage.AllStorage) {
	ctx := context.Background()

	if err := s.CreateWorkflow(ctx, &storage.WorkflowRecord{
		ID:    "wf-iso",
		OrgID: "o1",
		State: workflow.InitialState,
	}); err != nil {
		t.Fatal(err)
	}

	// another org must not see, nor mutate, o1's workflow
	if _, err := s.RetrieveWorkflow(ctx, "o2", "wf-iso"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("have %v, want ErrNotFound", err)
	}
	if _, err := s.CompareAndSwapState(ctx, "o2", "wf-iso", workflow.InitialState, workflow.StateAudienceProcessing, nil); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("have %v, want ErrNotFound", err)
	}

	r, err := s.RetrieveWorkflow(ctx, "o1", "wf-iso")
	if err != nil {
		t.Fatal(err)
	}
	if have, want := r.State, workflow.InitialState; have != want {
		t.Errorf("state mutated across tenants: have %s, want %s", have, want)
	}
}

func testCAS(t *testing.T, s storage.AllStorage) {
	ctx := context.Background()

	if err := s.CreateWorkflow(ctx, &storage.WorkflowRecord{
		ID:    "wf-cas",
		OrgID: "o1",
		State: workflow.InitialState,
	}); err != nil {
		t.Fatal(err)
	}

	ok, err := s.CompareAndSwapState(ctx, "o1", "wf-cas", workflow.InitialState, workflow.StateAudienceProcessing, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected swap")
	}

	// stale predicate: expected state already consumed
	ok, err = s.CompareAndSwapState(ctx, "o1", "wf-cas", workflow.InitialState, workflow.StateAudienceProcessing, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected predicate mismatch")
	}

	r, err := s.RetrieveWorkflow(ctx, "o1", "wf-cas")
	if err != nil {
		t.Fatal(err)
	}
	if have, want := r.State, workflow.StateAudienceProcessing; have != want {
		t.Errorf("have %s, want %s", have, want)
	}

	// cancellation metadata rides along with the cancel edge
	cancel := &storage.Cancellation{Actor: "ops@example.com", Reason: "duplicate request", At: time.Now().UTC().Truncate(time.Second)}
	ok, err = s.CompareAndSwapState(ctx, "o1", "wf-cas", workflow.StateAudienceProcessing, workflow.StateCancelled, cancel)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected swap")
	}
	r, err = s.RetrieveWorkflow(ctx, "o1", "wf-cas")
	if err != nil {
		t.Fatal(err)
	}
	if r.Cancellation == nil {
		t.Fatal("missing cancellation metadata")
	}
	if have, want := r.Cancellation.Actor, cancel.Actor; have != want {
		t.Errorf("have %q, want %q", have, want)
	}
	if have, want := r.Cancellation.Reason, cancel.Reason; have != want {
		t.Errorf("have %q, want %q", have, want)
	}
}

// testCASRace asserts mutual exclusion: of N concurrent identical
// swaps exactly one wins.
func testCASRace(t *testing.T, s storage.AllStorage) {
	ctx := context.Background()

	if err := s.CreateWorkflow(ctx, &storage.WorkflowRecord{
		ID:    "wf-race",
		OrgID: "o1",
		State: workflow.StateCompetitorPending,
	}); err != nil {
		t.Fatal(err)
	}

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CompareAndSwapState(ctx, "o1", "wf-race", workflow.StateCompetitorPending, workflow.StateCompetitorProcessing, nil)
			if err != nil {
				t.Error(err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	var won int
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Errorf("have %d winners, want 1", won)
	}

	r, err := s.RetrieveWorkflow(ctx, "o1", "wf-race")
	if err != nil {
		t.Fatal(err)
	}
	if have, want := r.State, workflow.StateCompetitorProcessing; have != want {
		t.Errorf("have %s, want %s", have, want)
	}
}

func testLedger(t *testing.T, s storage.AllStorage) {
	ctx := context.Background()

	_, found, err := s.RetrieveTransition(ctx, "o1", "wf-ledger", "k1")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("unexpected ledger entry")
	}

	if _, _, err = s.RetrieveTransition(ctx, "o1", "wf-ledger", ""); err == nil {
		t.Error("expected error for empty key")
	}

	rec := &storage.TransitionRecord{
		Key:  "k1",
		From: workflow.StateAudiencePending,
		To:   workflow.StateAudienceProcessing,
		At:   time.Now().UTC().Truncate(time.Second),
	}
	if err = s.StoreTransition(ctx, "o1", "wf-ledger", rec); err != nil {
		t.Fatal(err)
	}

	// write-once: a conflicting second write for the key is ignored
	if err = s.StoreTransition(ctx, "o1", "wf-ledger", &storage.TransitionRecord{
		Key:  "k1",
		From: workflow.StateSeedPending,
		To:   workflow.StateSeedProcessing,
	}); err != nil {
		t.Fatal(err)
	}

	got, found, err := s.RetrieveTransition(ctx, "o1", "wf-ledger", "k1")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected ledger entry")
	}
	if have, want := got.From, rec.From; have != want {
		t.Errorf("have %s, want %s", have, want)
	}
	if have, want := got.To, rec.To; have != want {
		t.Errorf("have %s, want %s", have, want)
	}

	// key is scoped per workflow
	_, found, err = s.RetrieveTransition(ctx, "o1", "wf-ledger-2", "k1")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("ledger entry leaked across workflows")
	}
}
