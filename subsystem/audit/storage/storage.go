// Package storage defines types and interfaces for the audit trail subsystem.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyRecord   = errors.New("empty audit record")
	ErrMissingID     = errors.New("missing audit record id")
	ErrMissingOrgID  = errors.New("missing org id")
	ErrMissingAction = errors.New("missing action")
)

// Record is one audit trail entry. Records are append-only: no storage
// backend exposes update or delete for them.
type Record struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"org_id"`
	WorkflowID string    `json:"workflow_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	Action     string    `json:"action"`
	Details    string    `json:"details,omitempty"`
	SourceAddr string    `json:"source_addr,omitempty"`
	At         time.Time `json:"at"`
}

// Validate checks for missing values.
func (r *Record) Validate() error {
	if r == nil {
		return ErrEmptyRecord
	}
	if r.ID == "" {
		return ErrMissingID
	}
	if r.OrgID == "" {
		return ErrMissingOrgID
	}
	if r.Action == "" {
		return ErrMissingAction
	}
	return nil
}

// Appender appends audit records.
type Appender interface {
	// AppendRecord stores a new audit record.
	AppendRecord(ctx context.Context, r *Record) error
}

// Storage is the full audit trail storage backend contract.
type Storage interface {
	Appender

	// RetrieveRecords returns all records for (orgID, workflowID) in
	// chronological order. An unknown workflow yields an empty slice,
	// not an error.
	RetrieveRecords(ctx context.Context, orgID, workflowID string) ([]Record, error)
}
