// Package mysql implements an audit trail storage backend using MySQL.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/intentops/intentengine/subsystem/audit/storage"
)

// Schema contains the MySQL schema for the audit trail storage.
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

// AppendRecord stores a new audit row.
func (s *MySQLStorage) AppendRecord(ctx context.Context, r *storage.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validating audit record: %w", err)
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO audit_records
    (id, org_id, workflow_id, entity_type, entity_id, actor_id, action, details, source_addr, at)
VALUES
    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		r.ID,
		r.OrgID,
		r.WorkflowID,
		r.EntityType,
		r.EntityID,
		r.ActorID,
		r.Action,
		r.Details,
		r.SourceAddr,
		r.At,
	)
	return err
}

// RetrieveRecords returns the audit rows for (orgID, workflowID) in
// chronological order.
func (s *MySQLStorage) RetrieveRecords(ctx context.Context, orgID, workflowID string) ([]storage.Record, error) {
	if orgID == "" || workflowID == "" {
		return nil, errors.New("empty org or workflow id")
	}
	rows, err := s.db.QueryContext(
		ctx, `
SELECT id, entity_type, entity_id, actor_id, action, details, source_addr, at
FROM audit_records
WHERE org_id = ? AND workflow_id = ?
ORDER BY at, id;`,
		orgID, workflowID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []storage.Record
	for rows.Next() {
		r := storage.Record{OrgID: orgID, WorkflowID: workflowID}
		var details sql.NullString
		err = rows.Scan(&r.ID, &r.EntityType, &r.EntityID, &r.ActorID, &r.Action, &details, &r.SourceAddr, &r.At)
		if err != nil {
			return records, err
		}
		r.Details = details.String
		records = append(records, r)
	}
	return records, rows.Err()
}
