// Package storage defines types and interfaces for the approval subsystem.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no approval (or candidate set) has
	// been recorded for the requested workflow and type.
	ErrNotFound = errors.New("approval not found")

	ErrEmptyApproval   = errors.New("empty approval record")
	ErrMissingOrgID    = errors.New("missing org id")
	ErrMissingWorkflow = errors.New("missing workflow id")
	ErrInvalidType     = errors.New("invalid approval type")
	ErrInvalidDecision = errors.New("invalid approval decision")
	ErrMissingApprover = errors.New("missing approver id")
)

// Type identifies which human review boundary an approval belongs to.
type Type string

const (
	TypeCluster  Type = "cluster"
	TypeSubtopic Type = "subtopic"
)

// Valid reports whether t is a known approval type.
func (t Type) Valid() bool {
	return t == TypeCluster || t == TypeSubtopic
}

// Decision is the reviewer's verdict.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Record is one recorded approval decision. ItemIDs and SetHash are
// snapshotted from the candidate set at decision time; later candidate
// writes do not alter a recorded decision.
type Record struct {
	OrgID      string    `json:"org_id"`
	WorkflowID string    `json:"workflow_id"`
	Type       Type      `json:"type"`
	Decision   Decision  `json:"decision"`
	ApproverID string    `json:"approver_id"`
	ItemIDs    []string  `json:"item_ids,omitempty"`
	SetHash    string    `json:"set_hash,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	At         time.Time `json:"at"`
}

// Validate checks for missing values.
func (r *Record) Validate() error {
	if r == nil {
		return ErrEmptyApproval
	}
	if r.OrgID == "" {
		return ErrMissingOrgID
	}
	if r.WorkflowID == "" {
		return ErrMissingWorkflow
	}
	if !r.Type.Valid() {
		return ErrInvalidType
	}
	if !r.Decision.Valid() {
		return ErrInvalidDecision
	}
	if r.ApproverID == "" {
		return ErrMissingApprover
	}
	return nil
}

// Storage is the approval subsystem storage backend contract.
// Approvals are keyed on (org, workflow, type): recording again for
// the same key replaces the prior decision.
type Storage interface {
	// StoreApproval upserts r under (r.OrgID, r.WorkflowID, r.Type).
	StoreApproval(ctx context.Context, r *Record) error

	// RetrieveApproval returns the recorded decision for the key.
	// ErrNotFound is returned when none has been recorded.
	RetrieveApproval(ctx context.Context, orgID, workflowID string, t Type) (*Record, error)

	// StoreCandidates replaces the worker-produced candidate item set
	// awaiting review for (orgID, workflowID, t).
	StoreCandidates(ctx context.Context, orgID, workflowID string, t Type, itemIDs []string) error

	// RetrieveCandidates returns the candidate item set for the key.
	// ErrNotFound is returned when none has been stored.
	RetrieveCandidates(ctx context.Context, orgID, workflowID string, t Type) ([]string, error)
}
