// Package kv implements a workflow engine storage backend using a key-value interface.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/workflow"

	"github.com/micromdm/nanolib/storage/kv"
)

// KV is a workflow engine storage backend using a key-value interface.
// The mutex serializes the read-compare-write inside the conditional
// state swap; kv buckets alone give no atomicity across keys.
type KV struct {
	mu          sync.RWMutex
	wfStore     kv.Bucket
	ledgerStore kv.Bucket
}

// New creates a new key-value workflow engine storage backend.
func New(wfStore, ledgerStore kv.Bucket) *KV {
	return &KV{wfStore: wfStore, ledgerStore: ledgerStore}
}

// CreateWorkflow implements the storage interface method.
func (s *KV) CreateWorkflow(ctx context.Context, r *storage.WorkflowRecord) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validating workflow: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.wfStore.Has(ctx, wfKey(r.OrgID, r.ID)+keySfxWfState)
	if err != nil {
		return fmt.Errorf("checking workflow exists: %w", err)
	}
	if ok {
		return storage.ErrAlreadyExists
	}
	return kvSetWorkflow(ctx, s.wfStore, r)
}

// RetrieveWorkflow implements the storage interface method.
func (s *KV) RetrieveWorkflow(ctx context.Context, orgID, workflowID string) (*storage.WorkflowRecord, error) {
	if orgID == "" || workflowID == "" {
		return nil, errors.New("empty org or workflow id")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return kvGetWorkflow(ctx, s.wfStore, orgID, workflowID)
}

// CompareAndSwapState implements the storage interface method.
func (s *KV) CompareAndSwapState(ctx context.Context, orgID, workflowID string, expected, new workflow.State, cancellation *storage.Cancellation) (bool, error) {
	if orgID == "" || workflowID == "" {
		return false, errors.New("empty org or workflow id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rawState, err := s.wfStore.Get(ctx, wfKey(orgID, workflowID)+keySfxWfState)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return false, storage.ErrNotFound
	} else if err != nil {
		return false, fmt.Errorf("getting state: %w", err)
	}
	if workflow.ParseState(string(rawState)) != expected {
		return false, nil
	}
	if err = kvSwapState(ctx, s.wfStore, orgID, workflowID, new, cancellation, time.Now()); err != nil {
		return false, fmt.Errorf("swapping state: %w", err)
	}
	return true, nil
}

// StoreTransition implements the storage interface method.
// The ledger is write-once: an existing key is left untouched.
func (s *KV) StoreTransition(ctx context.Context, orgID, workflowID string, r *storage.TransitionRecord) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validating transition: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ledgerKey(orgID, workflowID, r.Key)
	if ok, err := s.ledgerStore.Has(ctx, key); err != nil {
		return fmt.Errorf("checking ledger key: %w", err)
	} else if ok {
		return nil
	}
	r.FromState = r.From.String()
	r.ToState = r.To.String()
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}
	return s.ledgerStore.Set(ctx, key, raw)
}

// RetrieveTransition implements the storage interface method.
func (s *KV) RetrieveTransition(ctx context.Context, orgID, workflowID, key string) (*storage.TransitionRecord, bool, error) {
	if key == "" {
		return nil, false, storage.ErrMissingIdemKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, err := s.ledgerStore.Get(ctx, ledgerKey(orgID, workflowID, key))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("getting ledger key: %w", err)
	}
	r := new(storage.TransitionRecord)
	if err = json.Unmarshal(raw, r); err != nil {
		return nil, false, fmt.Errorf("unmarshal transition: %w", err)
	}
	r.From = workflow.ParseState(r.FromState)
	r.To = workflow.ParseState(r.ToState)
	return r, true, nil
}
