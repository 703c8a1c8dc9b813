// Package repository journals designer submissions on SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"

	"github.com/opensource-health/rulesmith/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SQLRepository implements domain.Repository with sqlx and named queries.
type SQLRepository struct {
	db      *sqlx.DB
	queries *dotsql.DotSql
}

// submissionRow mirrors the submissions table; payload is stored as text.
type submissionRow struct {
	ID          string    `db:"id"`
	TenantID    string    `db:"tenant_id"`
	SessionID   string    `db:"session_id"`
	RuleName    string    `db:"rule_name"`
	PriceListID int64     `db:"price_list_id"`
	ProcedureID int64     `db:"procedure_id"`
	Outcome     string    `db:"outcome"`
	RemoteID    string    `db:"remote_id"`
	Message     string    `db:"message"`
	Payload     string    `db:"payload"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r submissionRow) toDomain() *domain.Submission {
	s := &domain.Submission{
		ID:          r.ID,
		TenantID:    r.TenantID,
		SessionID:   r.SessionID,
		RuleName:    r.RuleName,
		PriceListID: r.PriceListID,
		ProcedureID: r.ProcedureID,
		Outcome:     domain.SubmissionOutcome(r.Outcome),
		RemoteID:    r.RemoteID,
		Message:     r.Message,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if r.Payload != "" {
		s.Payload = []byte(r.Payload)
	}
	return s
}

// New opens the configured database and applies migrations.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sqlx.DB
	var err error

	switch cfg.Driver {
	case "sqlite", "":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo, err := newSQLRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func newSQLRepository(db *sqlx.DB) (*SQLRepository, error) {
	queries, err := loadQueries()
	if err != nil {
		return nil, err
	}
	repo := &SQLRepository{db: db, queries: queries}
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, name := range migrations {
		query, err := r.query(name)
		if err != nil {
			return err
		}
		if _, err := r.db.Exec(query); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// query returns the named query rebound for the active driver.
func (r *SQLRepository) query(name string) (string, error) {
	raw, err := r.queries.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return r.db.Rebind(raw), nil
}

// SaveSubmission stores one submit attempt.
func (r *SQLRepository) SaveSubmission(ctx context.Context, tenantID string, s *domain.Submission) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: submission id is required", ErrInvalidInput)
	}

	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	payload := string(s.Payload)
	if payload == "" {
		payload = "null"
	}

	query, err := r.query("insert-submission")
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query,
		s.ID, tenantID, s.SessionID, s.RuleName,
		s.PriceListID, s.ProcedureID,
		string(s.Outcome), s.RemoteID, s.Message,
		payload, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert submission %s: %w", s.ID, err)
	}
	return nil
}

// GetSubmission returns one submission of the tenant, or ErrNotFound.
func (r *SQLRepository) GetSubmission(ctx context.Context, tenantID string, id string) (*domain.Submission, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query, err := r.query("get-submission")
	if err != nil {
		return nil, err
	}

	var row submissionRow
	err = r.db.GetContext(ctx, &row, query, tenantID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// ListSubmissions returns the tenant's submissions, newest first.
func (r *SQLRepository) ListSubmissions(ctx context.Context, tenantID string, filter domain.SubmissionFilter) ([]*domain.Submission, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var (
		rows  []submissionRow
		query string
		err   error
	)
	if filter.Outcome != "" {
		if query, err = r.query("list-submissions-by-outcome"); err != nil {
			return nil, err
		}
		err = r.db.SelectContext(ctx, &rows, query, tenantID, string(filter.Outcome), limit)
	} else {
		if query, err = r.query("list-submissions"); err != nil {
			return nil, err
		}
		err = r.db.SelectContext(ctx, &rows, query, tenantID, limit)
	}
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Submission, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}
