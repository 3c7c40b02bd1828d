// Package kv implements an approval subsystem storage backend using a key-value store.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/intentops/intentengine/subsystem/approval/storage"

	"github.com/micromdm/nanolib/storage/kv"
)

const (
	keySfxApproval   = ".approval"
	keySfxCandidates = ".candidates"
)

// KV is an approval subsystem storage backend using a key-value store.
type KV struct {
	b kv.Bucket
}

// New creates a new approval subsystem storage backend.
func New(b kv.Bucket) *KV {
	return &KV{b: b}
}

func approvalKey(orgID, workflowID string, t storage.Type) string {
	return orgID + "." + workflowID + "." + string(t)
}

// StoreApproval upserts r keyed on (org, workflow, type).
func (s *KV) StoreApproval(ctx context.Context, r *storage.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validating approval: %w", err)
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal approval: %w", err)
	}
	return s.b.Set(ctx, approvalKey(r.OrgID, r.WorkflowID, r.Type)+keySfxApproval, raw)
}

// RetrieveApproval returns the recorded decision for (org, workflow, type).
func (s *KV) RetrieveApproval(ctx context.Context, orgID, workflowID string, t storage.Type) (*storage.Record, error) {
	raw, err := s.b.Get(ctx, approvalKey(orgID, workflowID, t)+keySfxApproval)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("getting approval: %w", err)
	}
	r := new(storage.Record)
	if err = json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("unmarshal approval: %w", err)
	}
	return r, nil
}

// StoreCandidates replaces the candidate item set for (org, workflow, type).
func (s *KV) StoreCandidates(ctx context.Context, orgID, workflowID string, t storage.Type, itemIDs []string) error {
	if orgID == "" || workflowID == "" {
		return errors.New("empty org or workflow id")
	}
	if !t.Valid() {
		return storage.ErrInvalidType
	}
	raw, err := json.Marshal(itemIDs)
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}
	return s.b.Set(ctx, approvalKey(orgID, workflowID, t)+keySfxCandidates, raw)
}

// RetrieveCandidates returns the candidate item set for (org, workflow, type).
func (s *KV) RetrieveCandidates(ctx context.Context, orgID, workflowID string, t storage.Type) ([]string, error) {
	raw, err := s.b.Get(ctx, approvalKey(orgID, workflowID, t)+keySfxCandidates)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("getting candidates: %w", err)
	}
	var itemIDs []string
	if err = json.Unmarshal(raw, &itemIDs); err != nil {
		return nil, fmt.Errorf("unmarshal candidates: %w", err)
	}
	return itemIDs, nil
}
