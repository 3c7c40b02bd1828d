// Package kv implements an audit trail storage backend using a key-value store.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/intentops/intentengine/subsystem/audit/storage"

	"github.com/micromdm/nanolib/storage/kv"
)

// KV is an audit trail storage backend using a key-value store.
type KV struct {
	b kv.KeysPrefixTraversingBucket
}

// New creates a new audit trail storage backend.
func New(b kv.KeysPrefixTraversingBucket) *KV {
	return &KV{b: b}
}

// recKey namespaces a record's key by tenant and workflow so that
// retrieval is a single prefix traversal.
func recKey(orgID, workflowID, recordID string) string {
	return orgID + "." + workflowID + "." + recordID
}

// AppendRecord stores r in the key-value store.
func (s *KV) AppendRecord(ctx context.Context, r *storage.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validating audit record: %w", err)
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	return s.b.Set(ctx, recKey(r.OrgID, r.WorkflowID, r.ID), raw)
}

// RetrieveRecords returns the records for (orgID, workflowID) in
// chronological order.
func (s *KV) RetrieveRecords(ctx context.Context, orgID, workflowID string) ([]storage.Record, error) {
	var records []storage.Record
	cancel := make(chan struct{})
	defer close(cancel)
	for key := range s.b.KeysPrefix(ctx, orgID+"."+workflowID+".", cancel) {
		raw, err := s.b.Get(ctx, key)
		if err != nil {
			return records, fmt.Errorf("getting record %s: %w", key, err)
		}
		var r storage.Record
		if err = json.Unmarshal(raw, &r); err != nil {
			return records, fmt.Errorf("unmarshal record %s: %w", key, err)
		}
		records = append(records, r)
	}
	// key order is not insertion order; restore it
	sort.Slice(records, func(i, j int) bool {
		if records[i].At.Equal(records[j].At) {
			return records[i].ID < records[j].ID
		}
		return records[i].At.Before(records[j].At)
	})
	return records, nil
}
