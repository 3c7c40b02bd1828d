// Package approval implements the human review boundaries of the
// pipeline: recording reviewer decisions and answering whether a
// workflow may continue past them.
package approval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	engstorage "github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/log/logkeys"
	"github.com/intentops/intentengine/subsystem/approval/storage"
	"github.com/intentops/intentengine/subsystem/audit"
	"github.com/intentops/intentengine/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	// ErrNotAwaitingReview is returned when a decision is recorded for
	// a workflow that is not paused at the matching review boundary.
	ErrNotAwaitingReview = errors.New("workflow not awaiting review")

	// ErrUnknownItem is returned when a decision names item IDs that
	// are not in the candidate set under review.
	ErrUnknownItem = errors.New("unknown candidate item")

	// ErrNotApproved is returned when approved items are requested but
	// the recorded decision is not an approval.
	ErrNotApproved = errors.New("decision is not an approval")
)

// AwaitingState returns the paused workflow state that approval type t
// reviews, and whether t is known.
func AwaitingState(t storage.Type) (workflow.State, bool) {
	switch t {
	case storage.TypeCluster:
		return workflow.StateAwaitingClusterApproval, true
	case storage.TypeSubtopic:
		return workflow.StateAwaitingSubtopicApproval, true
	}
	return 0, false
}

// Request carries one reviewer decision.
type Request struct {
	Decision   storage.Decision `json:"decision"`
	ApproverID string           `json:"approver_id"`

	// ItemIDs selects the candidate items the decision covers.
	// Empty selects the entire candidate set.
	ItemIDs []string `json:"item_ids,omitempty"`

	Comment    string `json:"comment,omitempty"`
	SourceAddr string `json:"-"`
}

// Service records and reads approval decisions.
type Service struct {
	store     storage.Storage
	workflows engstorage.WorkflowStore
	auditor   audit.Recorder
	logger    log.Logger
	nowFn     func() time.Time
}

type Option func(*Service)

func WithLogger(logger log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditor(a audit.Recorder) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// New creates a new approval service. Decisions are checked against
// the workflow's current state in workflows before being recorded.
func New(store storage.Storage, workflows engstorage.WorkflowStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		workflows: workflows,
		logger:    log.NopLogger,
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("service", "approval")
	return s
}

// RecordApproval validates and records req for (orgID, workflowID, t).
// The candidate set is resolved and snapshotted into the record at
// decision time so later candidate writes cannot change what was
// approved. Recording again for the same key replaces the decision.
func (s *Service) RecordApproval(ctx context.Context, orgID, workflowID string, t storage.Type, req Request) (*storage.Record, error) {
	if !t.Valid() {
		return nil, storage.ErrInvalidType
	}
	if !req.Decision.Valid() {
		return nil, storage.ErrInvalidDecision
	}
	if req.ApproverID == "" {
		return nil, storage.ErrMissingApprover
	}

	wf, err := s.workflows.RetrieveWorkflow(ctx, orgID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("retrieving workflow: %w", err)
	}
	awaiting, _ := AwaitingState(t)
	if wf.State != awaiting {
		return nil, fmt.Errorf("%w: state %s, want %s", ErrNotAwaitingReview, wf.State, awaiting)
	}

	itemIDs, err := s.snapshotItems(ctx, orgID, workflowID, t, req.ItemIDs)
	if err != nil {
		return nil, err
	}

	r := &storage.Record{
		OrgID:      orgID,
		WorkflowID: workflowID,
		Type:       t,
		Decision:   req.Decision,
		ApproverID: req.ApproverID,
		ItemIDs:    itemIDs,
		SetHash:    hashItems(itemIDs),
		Comment:    req.Comment,
		At:         s.nowFn(),
	}
	if err = s.store.StoreApproval(ctx, r); err != nil {
		return nil, fmt.Errorf("storing approval: %w", err)
	}

	ctxlog.Logger(ctx, s.logger).Info(
		logkeys.Message, "recorded approval",
		logkeys.OrgID, orgID,
		logkeys.WorkflowID, workflowID,
		logkeys.ApprovalType, string(t),
		logkeys.ActorID, req.ApproverID,
		"decision", string(req.Decision),
		logkeys.GenericCount, len(itemIDs),
	)
	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Entry{
			OrgID:      orgID,
			WorkflowID: workflowID,
			EntityType: audit.EntityApproval,
			EntityID:   string(t),
			ActorID:    req.ApproverID,
			Action:     audit.ActionApproval,
			Details:    string(req.Decision),
			SourceAddr: req.SourceAddr,
		})
	}
	return r, nil
}

// snapshotItems resolves the candidate items req selects. Empty
// selection means the whole candidate set; explicit selections must
// be a subset of it.
func (s *Service) snapshotItems(ctx context.Context, orgID, workflowID string, t storage.Type, selected []string) ([]string, error) {
	candidates, err := s.store.RetrieveCandidates(ctx, orgID, workflowID, t)
	if errors.Is(err, storage.ErrNotFound) {
		if len(selected) > 0 {
			return nil, fmt.Errorf("%w: no candidate set", ErrUnknownItem)
		}
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("retrieving candidates: %w", err)
	}
	if len(selected) == 0 {
		return candidates, nil
	}
	known := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		known[id] = struct{}{}
	}
	for _, id := range selected {
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownItem, id)
		}
	}
	return selected, nil
}

// hashItems computes a stable digest of an item set, independent of
// the order the items were named in.
func hashItems(itemIDs []string) string {
	if len(itemIDs) == 0 {
		return ""
	}
	sorted := make([]string, len(itemIDs))
	copy(sorted, itemIDs)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

// StoreCandidates replaces the candidate item set awaiting review.
// Workers call this as they produce clusters or subtopics.
func (s *Service) StoreCandidates(ctx context.Context, orgID, workflowID string, t storage.Type, itemIDs []string) error {
	if err := s.store.StoreCandidates(ctx, orgID, workflowID, t, itemIDs); err != nil {
		return fmt.Errorf("storing candidates: %w", err)
	}
	ctxlog.Logger(ctx, s.logger).Debug(
		logkeys.Message, "stored candidates",
		logkeys.OrgID, orgID,
		logkeys.WorkflowID, workflowID,
		logkeys.ApprovalType, string(t),
		logkeys.GenericCount, len(itemIDs),
	)
	return nil
}

// RetrieveApproval returns the recorded decision, if any.
func (s *Service) RetrieveApproval(ctx context.Context, orgID, workflowID string, t storage.Type) (*storage.Record, error) {
	return s.store.RetrieveApproval(ctx, orgID, workflowID, t)
}

// IsApproved reports whether an approval has been recorded for
// (orgID, workflowID, t). A rejection or no record at all is false.
func (s *Service) IsApproved(ctx context.Context, orgID, workflowID string, t storage.Type) (bool, error) {
	r, err := s.store.RetrieveApproval(ctx, orgID, workflowID, t)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return r.Decision == storage.DecisionApproved, nil
}

// ApprovedItemIDs returns the item snapshot of a recorded approval.
// ErrNotApproved is returned when the decision was a rejection.
func (s *Service) ApprovedItemIDs(ctx context.Context, orgID, workflowID string, t storage.Type) ([]string, error) {
	r, err := s.store.RetrieveApproval(ctx, orgID, workflowID, t)
	if err != nil {
		return nil, err
	}
	if r.Decision != storage.DecisionApproved {
		return nil, ErrNotApproved
	}
	return r.ItemIDs, nil
}
