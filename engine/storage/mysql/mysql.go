// Package mysql implements an engine storage backend using MySQL.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/intentops/intentengine/engine/storage"
	"github.com/intentops/intentengine/workflow"

	"github.com/go-sql-driver/mysql"
)

// Schema contains the MySQL schema for the engine storage.
//
//go:embed schema.sql
var Schema string

// MySQLStorage implements storage.AllStorage using MySQL.
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

// CreateWorkflow stores a new workflow row.
func (s *MySQLStorage) CreateWorkflow(ctx context.Context, r *storage.WorkflowRecord) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validating workflow: %w", err)
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO workflows
    (id, org_id, name, state)
VALUES
    (?, ?, ?, ?);`,
		r.ID,
		r.OrgID,
		r.Name,
		r.State.String(),
	)
	if isDuplicateErr(err) {
		return storage.ErrAlreadyExists
	}
	return err
}

// RetrieveWorkflow returns the workflow row for (orgID, workflowID).
func (s *MySQLStorage) RetrieveWorkflow(ctx context.Context, orgID, workflowID string) (*storage.WorkflowRecord, error) {
	if orgID == "" || workflowID == "" {
		return nil, errors.New("empty org or workflow id")
	}
	r := &storage.WorkflowRecord{ID: workflowID, OrgID: orgID}
	var state string
	var cancelActor, cancelReason sql.NullString
	var cancelledAt sql.NullTime
	err := s.db.QueryRowContext(
		ctx, `
SELECT name, state, cancel_actor, cancel_reason, cancelled_at, created_at, updated_at
FROM workflows
WHERE org_id = ? AND id = ?;`,
		orgID, workflowID,
	).Scan(&r.Name, &state, &cancelActor, &cancelReason, &cancelledAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	r.State = workflow.ParseState(state)
	if cancelActor.Valid {
		r.Cancellation = &storage.Cancellation{
			Actor:  cancelActor.String,
			Reason: cancelReason.String,
			At:     cancelledAt.Time,
		}
	}
	return r, nil
}

// CompareAndSwapState performs the conditional state update. The WHERE
// predicate carries both the tenant scope and the expected state; the
// database's row lock is the serialization point.
func (s *MySQLStorage) CompareAndSwapState(ctx context.Context, orgID, workflowID string, expected, new workflow.State, cancellation *storage.Cancellation) (bool, error) {
	if orgID == "" || workflowID == "" {
		return false, errors.New("empty org or workflow id")
	}
	var result sql.Result
	var err error
	if cancellation == nil {
		result, err = s.db.ExecContext(
			ctx, `
UPDATE workflows
SET state = ?
WHERE org_id = ? AND id = ? AND state = ?;`,
			new.String(), orgID, workflowID, expected.String(),
		)
	} else {
		result, err = s.db.ExecContext(
			ctx, `
UPDATE workflows
SET state = ?, cancel_actor = ?, cancel_reason = ?, cancelled_at = ?
WHERE org_id = ? AND id = ? AND state = ?;`,
			new.String(),
			cancellation.Actor,
			cancellation.Reason,
			cancellation.At,
			orgID, workflowID, expected.String(),
		)
	}
	if err != nil {
		return false, err
	}
	ct, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if ct > 0 {
		return true, nil
	}
	// predicate mismatch and missing row both affect zero rows;
	// look the row up to report which
	var one int
	err = s.db.QueryRowContext(
		ctx,
		`SELECT 1 FROM workflows WHERE org_id = ? AND id = ?;`,
		orgID, workflowID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, storage.ErrNotFound
	}
	return false, err
}

// StoreTransition records an applied transition in the replay ledger.
// INSERT IGNORE keeps the ledger write-once under concurrent retries.
func (s *MySQLStorage) StoreTransition(ctx context.Context, orgID, workflowID string, r *storage.TransitionRecord) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validating transition: %w", err)
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT IGNORE INTO workflow_transitions
    (org_id, workflow_id, idem_key, from_state, to_state)
VALUES
    (?, ?, ?, ?, ?);`,
		orgID, workflowID, r.Key, r.From.String(), r.To.String(),
	)
	return err
}

// RetrieveTransition returns the prior ledger entry for key, if any.
func (s *MySQLStorage) RetrieveTransition(ctx context.Context, orgID, workflowID, key string) (*storage.TransitionRecord, bool, error) {
	if key == "" {
		return nil, false, storage.ErrMissingIdemKey
	}
	r := &storage.TransitionRecord{Key: key}
	err := s.db.QueryRowContext(
		ctx, `
SELECT from_state, to_state, applied_at
FROM workflow_transitions
WHERE org_id = ? AND workflow_id = ? AND idem_key = ?;`,
		orgID, workflowID, key,
	).Scan(&r.FromState, &r.ToState, &r.At)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	r.From = workflow.ParseState(r.FromState)
	r.To = workflow.ParseState(r.ToState)
	return r, true, nil
}

// isDuplicateErr detects a MySQL duplicate-key error (number 1062).
func isDuplicateErr(err error) bool {
	var mErr *mysql.MySQLError
	return errors.As(err, &mErr) && mErr.Number == 1062
}
