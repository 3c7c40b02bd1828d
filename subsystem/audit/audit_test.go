package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/intentops/intentengine/subsystem/audit/storage"
	"github.com/intentops/intentengine/utils/uuid"
)

type captureAppender struct {
	records []*storage.Record
	err     error
}

func (c *captureAppender) AppendRecord(_ context.Context, r *storage.Record) error {
	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, r)
	return nil
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	cap := new(captureAppender)
	a := New(cap, WithIDer(uuid.NewStaticIDs("a1", "a2")))

	a.Record(ctx, Entry{
		OrgID:      "o1",
		WorkflowID: "wf1",
		EntityType: EntityWorkflow,
		Action:     ActionTransition,
	})
	a.Record(ctx, Entry{
		OrgID:      "o1",
		WorkflowID: "wf1",
		EntityType: EntityApproval,
		ActorID:    "user-7",
		Action:     ActionApproval,
	})

	if len(cap.records) != 2 {
		t.Fatalf("expected 2 records; got %d", len(cap.records))
	}
	r := cap.records[0]
	if r.ID != "a1" {
		t.Errorf("expected generated id a1; got %s", r.ID)
	}
	if r.At.IsZero() {
		t.Error("expected timestamp to be assigned")
	}
	if r.ActorID != ActorSystem {
		t.Errorf("expected default actor %s; got %s", ActorSystem, r.ActorID)
	}
	if cap.records[1].ActorID != "user-7" {
		t.Errorf("expected explicit actor preserved; got %s", cap.records[1].ActorID)
	}
}

func TestRecordAppendFailure(t *testing.T) {
	// append failures must be swallowed
	a := New(&captureAppender{err: errors.New("backend down")})
	a.Record(context.Background(), Entry{
		OrgID:      "o1",
		WorkflowID: "wf1",
		Action:     ActionTransition,
	})
}
