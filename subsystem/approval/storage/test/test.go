// Package test implements a conformance test suite for approval storage backends.
package test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/intentops/intentengine/subsystem/approval/storage"
)

// TestApprovalStorage runs the approval storage conformance suite
// against the backend returned by newStorage.
func TestApprovalStorage(t *testing.T, newStorage func() storage.Storage) {
	t.Run("approval", func(t *testing.T) {
		testApproval(t, newStorage())
	})
	t.Run("candidates", func(t *testing.T) {
		testCandidates(t, newStorage())
	})
	t.Run("scoping", func(t *testing.T) {
		testScoping(t, newStorage())
	})
}

func testApproval(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	const wfID = "wf-appr"

	if _, err := s.RetrieveApproval(ctx, "o1", wfID, storage.TypeCluster); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound before recording; got %v", err)
	}

	if err := s.StoreApproval(ctx, &storage.Record{
		OrgID:      "o1",
		WorkflowID: wfID,
		Type:       storage.Type("bogus"),
		Decision:   storage.DecisionApproved,
		ApproverID: "user-1",
	}); err == nil {
		t.Error("expected error for invalid type")
	}
	if err := s.StoreApproval(ctx, &storage.Record{
		OrgID:      "o1",
		WorkflowID: wfID,
		Type:       storage.TypeCluster,
		Decision:   storage.DecisionApproved,
	}); err == nil {
		t.Error("expected error for missing approver")
	}

	r := &storage.Record{
		OrgID:      "o1",
		WorkflowID: wfID,
		Type:       storage.TypeCluster,
		Decision:   storage.DecisionApproved,
		ApproverID: "user-1",
		ItemIDs:    []string{"c1", "c2"},
		SetHash:    "h1",
		At:         time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := s.StoreApproval(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := s.RetrieveApproval(ctx, "o1", wfID, storage.TypeCluster)
	if err != nil {
		t.Fatal(err)
	}
	if got.Decision != storage.DecisionApproved || got.ApproverID != "user-1" {
		t.Errorf("unexpected approval: %+v", got)
	}
	if !reflect.DeepEqual(got.ItemIDs, []string{"c1", "c2"}) {
		t.Errorf("unexpected item ids: %v", got.ItemIDs)
	}

	// recording again for the same (org, workflow, type) replaces
	r.Decision = storage.DecisionRejected
	r.ApproverID = "user-2"
	r.ItemIDs = nil
	if err = s.StoreApproval(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, err = s.RetrieveApproval(ctx, "o1", wfID, storage.TypeCluster)
	if err != nil {
		t.Fatal(err)
	}
	if got.Decision != storage.DecisionRejected || got.ApproverID != "user-2" {
		t.Errorf("expected upsert to replace decision; got %+v", got)
	}

	// types are independent keys
	if _, err = s.RetrieveApproval(ctx, "o1", wfID, storage.TypeSubtopic); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other type; got %v", err)
	}
}

func testCandidates(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	const wfID = "wf-cand"

	if _, err := s.RetrieveCandidates(ctx, "o1", wfID, storage.TypeSubtopic); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound before storing; got %v", err)
	}

	if err := s.StoreCandidates(ctx, "o1", wfID, storage.TypeSubtopic, []string{"s1", "s2", "s3"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.RetrieveCandidates(ctx, "o1", wfID, storage.TypeSubtopic)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"s1", "s2", "s3"}) {
		t.Errorf("unexpected candidates: %v", got)
	}

	// a later worker write replaces the set
	if err = s.StoreCandidates(ctx, "o1", wfID, storage.TypeSubtopic, []string{"s4"}); err != nil {
		t.Fatal(err)
	}
	got, err = s.RetrieveCandidates(ctx, "o1", wfID, storage.TypeSubtopic)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"s4"}) {
		t.Errorf("expected replaced candidates; got %v", got)
	}
}

func testScoping(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	const wfID = "wf-appr-scope"

	err := s.StoreApproval(ctx, &storage.Record{
		OrgID:      "o1",
		WorkflowID: wfID,
		Type:       storage.TypeCluster,
		Decision:   storage.DecisionApproved,
		ApproverID: "user-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err = s.RetrieveApproval(ctx, "o2", wfID, storage.TypeCluster); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other org; got %v", err)
	}
}
