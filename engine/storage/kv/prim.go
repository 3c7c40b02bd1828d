package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/workflow"

	"github.com/micromdm/nanolib/storage/kv"
)

const (
	// workflow bucket
	keySfxWfState   = ".state"   // canonical state string
	keySfxWfName    = ".name"    // display name
	keySfxWfCreated = ".created" // RFC 3339 create time
	keySfxWfUpdated = ".updated" // RFC 3339 last state change time
	keySfxWfCancel  = ".cancel"  // marshalled cancellation metadata
)

// wfKey namespaces a workflow's keys by tenant. A lookup with the
// wrong org simply misses; that is the isolation predicate.
func wfKey(orgID, workflowID string) string {
	return orgID + "." + workflowID
}

func ledgerKey(orgID, workflowID, idemKey string) string {
	return orgID + "." + workflowID + "." + idemKey
}

// kvSetWorkflow writes r to b.
func kvSetWorkflow(ctx context.Context, b kv.Bucket, r *storage.WorkflowRecord) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validating workflow: %w", err)
	}
	created, err := r.CreatedAt.MarshalText()
	if err != nil {
		return fmt.Errorf("marshal created time: %w", err)
	}
	updated, err := r.UpdatedAt.MarshalText()
	if err != nil {
		return fmt.Errorf("marshal updated time: %w", err)
	}
	key := wfKey(r.OrgID, r.ID)
	wfMap := map[string][]byte{
		key + keySfxWfState:   []byte(r.State.String()),
		key + keySfxWfCreated: created,
		key + keySfxWfUpdated: updated,
	}
	if r.Name != "" {
		wfMap[key+keySfxWfName] = []byte(r.Name)
	}
	if r.Cancellation != nil {
		raw, err := json.Marshal(r.Cancellation)
		if err != nil {
			return fmt.Errorf("marshal cancellation: %w", err)
		}
		wfMap[key+keySfxWfCancel] = raw
	}
	return kv.SetMap(ctx, b, wfMap)
}

// kvGetWorkflow reads the workflow for (orgID, workflowID) from b.
func kvGetWorkflow(ctx context.Context, b kv.Bucket, orgID, workflowID string) (*storage.WorkflowRecord, error) {
	key := wfKey(orgID, workflowID)
	rawState, err := b.Get(ctx, key+keySfxWfState)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("getting state: %w", err)
	}
	r := &storage.WorkflowRecord{
		ID:    workflowID,
		OrgID: orgID,
		State: workflow.ParseState(string(rawState)),
	}
	if rawName, err := b.Get(ctx, key+keySfxWfName); err == nil {
		r.Name = string(rawName)
	} else if !errors.Is(err, kv.ErrKeyNotFound) {
		return nil, fmt.Errorf("getting name: %w", err)
	}
	if err = kvGetTime(ctx, b, key+keySfxWfCreated, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err = kvGetTime(ctx, b, key+keySfxWfUpdated, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if rawCancel, err := b.Get(ctx, key+keySfxWfCancel); err == nil {
		r.Cancellation = new(storage.Cancellation)
		if err = json.Unmarshal(rawCancel, r.Cancellation); err != nil {
			return nil, fmt.Errorf("unmarshal cancellation: %w", err)
		}
	} else if !errors.Is(err, kv.ErrKeyNotFound) {
		return nil, fmt.Errorf("getting cancellation: %w", err)
	}
	return r, nil
}

func kvGetTime(ctx context.Context, b kv.Bucket, key string, t *time.Time) error {
	raw, err := b.Get(ctx, key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("getting %s: %w", key, err)
	}
	if err = t.UnmarshalText(raw); err != nil {
		return fmt.Errorf("unmarshal time %s: %w", key, err)
	}
	return nil
}

// kvSwapState updates the state key (and cancellation, updated time)
// for a workflow. Callers hold the store lock; the read-check-write
// here is what the lock serializes.
func kvSwapState(ctx context.Context, b kv.Bucket, orgID, workflowID string, new workflow.State, cancellation *storage.Cancellation, now time.Time) error {
	key := wfKey(orgID, workflowID)
	updated, err := now.MarshalText()
	if err != nil {
		return fmt.Errorf("marshal updated time: %w", err)
	}
	wfMap := map[string][]byte{
		key + keySfxWfState:   []byte(new.String()),
		key + keySfxWfUpdated: updated,
	}
	if cancellation != nil {
		raw, err := json.Marshal(cancellation)
		if err != nil {
			return fmt.Errorf("marshal cancellation: %w", err)
		}
		wfMap[key+keySfxWfCancel] = raw
	}
	return kv.SetMap(ctx, b, wfMap)
}
