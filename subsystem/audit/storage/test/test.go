// Package test implements a conformance test suite for audit trail storage backends.
package test

import (
	"context"
	"testing"
	"time"

	"github.com/intentops/intentengine/subsystem/audit/storage"
)

// TestAuditStorage runs the audit storage conformance suite against
// the backend returned by newStorage.
func TestAuditStorage(t *testing.T, newStorage func() storage.Storage) {
	t.Run("append_retrieve", func(t *testing.T) {
		testAppendRetrieve(t, newStorage())
	})
	t.Run("validation", func(t *testing.T) {
		testValidation(t, newStorage())
	})
	t.Run("scoping", func(t *testing.T) {
		testScoping(t, newStorage())
	})
}

func testAppendRetrieve(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	const wfID = "wf-trail"

	records, err := s.RetrieveRecords(ctx, "o1", wfID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records for unknown workflow; got %d", len(records))
	}

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, action := range []string{"workflow.create", "state.transition", "workflow.cancel"} {
		err = s.AppendRecord(ctx, &storage.Record{
			ID:         "rec" + string(rune('1'+i)),
			OrgID:      "o1",
			WorkflowID: wfID,
			EntityType: "workflow",
			ActorID:    "system",
			Action:     action,
			At:         base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	records, err = s.RetrieveRecords(ctx, "o1", wfID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records; got %d", len(records))
	}
	// chronological
	want := []string{"workflow.create", "state.transition", "workflow.cancel"}
	for i, r := range records {
		if r.Action != want[i] {
			t.Errorf("record %d: expected action %s; got %s", i, want[i], r.Action)
		}
		if r.OrgID != "o1" || r.WorkflowID != wfID {
			t.Errorf("record %d: wrong scope: %s/%s", i, r.OrgID, r.WorkflowID)
		}
	}
}

func testValidation(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	if err := s.AppendRecord(ctx, nil); err == nil {
		t.Error("expected error for nil record")
	}
	if err := s.AppendRecord(ctx, &storage.Record{OrgID: "o1", Action: "x"}); err == nil {
		t.Error("expected error for missing record id")
	}
	if err := s.AppendRecord(ctx, &storage.Record{ID: "r1", Action: "x"}); err == nil {
		t.Error("expected error for missing org id")
	}
	if err := s.AppendRecord(ctx, &storage.Record{ID: "r1", OrgID: "o1"}); err == nil {
		t.Error("expected error for missing action")
	}
}

func testScoping(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	at := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	for _, scope := range []struct{ org, wf, id string }{
		{"o1", "wf-scope", "sr1"},
		{"o1", "wf-scope-2", "sr2"},
		{"o2", "wf-scope", "sr3"},
	} {
		err := s.AppendRecord(ctx, &storage.Record{
			ID:         scope.id,
			OrgID:      scope.org,
			WorkflowID: scope.wf,
			Action:     "state.transition",
			At:         at,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.RetrieveRecords(ctx, "o1", "wf-scope")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "sr1" {
		t.Errorf("expected only sr1 for o1/wf-scope; got %v", records)
	}

	// a different org never sees another tenant's trail
	records, err = s.RetrieveRecords(ctx, "o3", "wf-scope")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records for o3; got %d", len(records))
	}
}
