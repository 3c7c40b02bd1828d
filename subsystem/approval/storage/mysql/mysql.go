// Package mysql implements an approval subsystem storage backend using MySQL.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/intentops/intentengine/subsystem/approval/storage"
)

// Schema contains the MySQL schema for the approval storage.
//
//go:embed schema.sql
var Schema string

// MySQLStorage implements storage.Storage using MySQL.
type MySQLStorage struct {
	db *sql.DB
}

type config struct {
	driver string
	dsn    string
	db     *sql.DB
}

// Option allows configuring a MySQLStorage.
type Option func(*config)

// WithDSN sets the storage MySQL data source name.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDriver sets a custom MySQL driver for the storage.
//
// Default driver is "mysql".
// Value is ignored if WithDB is used.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB sets a custom MySQL *sql.DB to the storage.
//
// If set, driver passed via WithDriver is ignored.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// New creates and returns a new MySQLStorage.
func New(opts ...Option) (*MySQLStorage, error) {
	cfg := &config{driver: "mysql"}
	for _, opt := range opts {
		opt(cfg)
	}
	var err error
	if cfg.db == nil {
		cfg.db, err = sql.Open(cfg.driver, cfg.dsn)
		if err != nil {
			return nil, err
		}
	}
	if err = cfg.db.Ping(); err != nil {
		return nil, err
	}
	return &MySQLStorage{db: cfg.db}, nil
}

// StoreApproval upserts the approval row for (org, workflow, type).
func (s *MySQLStorage) StoreApproval(ctx context.Context, r *storage.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validating approval: %w", err)
	}
	var itemIDs []byte
	if r.ItemIDs != nil {
		var err error
		if itemIDs, err = json.Marshal(r.ItemIDs); err != nil {
			return fmt.Errorf("marshal item ids: %w", err)
		}
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO workflow_approvals
    (org_id, workflow_id, approval_type, decision, approver_id, item_ids, set_hash, comment, decided_at)
VALUES
    (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY
UPDATE
    decision = VALUES(decision),
    approver_id = VALUES(approver_id),
    item_ids = VALUES(item_ids),
    set_hash = VALUES(set_hash),
    comment = VALUES(comment),
    decided_at = VALUES(decided_at);`,
		r.OrgID,
		r.WorkflowID,
		string(r.Type),
		string(r.Decision),
		r.ApproverID,
		itemIDs,
		r.SetHash,
		r.Comment,
		r.At,
	)
	return err
}

// RetrieveApproval returns the approval row for (org, workflow, type).
func (s *MySQLStorage) RetrieveApproval(ctx context.Context, orgID, workflowID string, t storage.Type) (*storage.Record, error) {
	r := &storage.Record{OrgID: orgID, WorkflowID: workflowID, Type: t}
	var decision string
	var itemIDs, comment sql.NullString
	err := s.db.QueryRowContext(
		ctx, `
SELECT decision, approver_id, item_ids, set_hash, comment, decided_at
FROM workflow_approvals
WHERE org_id = ? AND workflow_id = ? AND approval_type = ?;`,
		orgID, workflowID, string(t),
	).Scan(&decision, &r.ApproverID, &itemIDs, &r.SetHash, &comment, &r.At)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	r.Decision = storage.Decision(decision)
	r.Comment = comment.String
	if itemIDs.Valid && itemIDs.String != "" {
		if err = json.Unmarshal([]byte(itemIDs.String), &r.ItemIDs); err != nil {
			return nil, fmt.Errorf("unmarshal item ids: %w", err)
		}
	}
	return r, nil
}

// StoreCandidates replaces the candidate row for (org, workflow, type).
func (s *MySQLStorage) StoreCandidates(ctx context.Context, orgID, workflowID string, t storage.Type, itemIDs []string) error {
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
	_, err = s.db.ExecContext(
		ctx, `
INSERT INTO approval_candidates
    (org_id, workflow_id, approval_type, item_ids)
VALUES
    (?, ?, ?, ?)
ON DUPLICATE KEY
UPDATE
    item_ids = VALUES(item_ids);`,
		orgID, workflowID, string(t), raw,
	)
	return err
}

// RetrieveCandidates returns the candidate row for (org, workflow, type).
func (s *MySQLStorage) RetrieveCandidates(ctx context.Context, orgID, workflowID string, t storage.Type) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(
		ctx, `
SELECT item_ids
FROM approval_candidates
WHERE org_id = ? AND workflow_id = ? AND approval_type = ?;`,
		orgID, workflowID, string(t),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	var itemIDs []string
	if err = json.Unmarshal([]byte(raw), &itemIDs); err != nil {
		return nil, fmt.Errorf("unmarshal candidates: %w", err)
	}
	return itemIDs, nil
}
