// Package domain defines the core interfaces and types for Rulesmith.
package domain

import (
	"context"
	"encoding/json"
	"time"
)

// SubmissionOutcome is the result of one submit attempt.
type SubmissionOutcome string

const (
	OutcomeCreated  SubmissionOutcome = "created"
	OutcomeRejected SubmissionOutcome = "rejected"
	OutcomeFailed   SubmissionOutcome = "failed"
)

// Submission is one journaled submit attempt against the backend.
type Submission struct {
	ID          string            `json:"id" db:"id"`
	TenantID    string            `json:"tenantId" db:"tenant_id"`
	SessionID   string            `json:"sessionId,omitempty" db:"session_id"`
	RuleName    string            `json:"ruleName" db:"rule_name"`
	PriceListID int64             `json:"priceListId" db:"price_list_id"`
	ProcedureID int64             `json:"procedureId" db:"procedure_id"`
	Outcome     SubmissionOutcome `json:"outcome" db:"outcome"`
	RemoteID    string            `json:"remoteId,omitempty" db:"remote_id"`
	Message     string            `json:"message,omitempty" db:"message"`
	Payload     json.RawMessage   `json:"payload" db:"payload"`
	CreatedAt   time.Time         `json:"createdAt" db:"created_at"`
}

// SubmissionFilter narrows a journal listing.
type SubmissionFilter struct {
	Outcome SubmissionOutcome
	Limit   int
}

// Repository defines the submission journal.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	SaveSubmission(ctx context.Context, tenantID string, s *Submission) error
	GetSubmission(ctx context.Context, tenantID string, id string) (*Submission, error)
	ListSubmissions(ctx context.Context, tenantID string, filter SubmissionFilter) ([]*Submission, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver"`

	SQLitePath string `json:"sqlitePath"`

	PostgresHost     string `json:"postgresHost"`
	PostgresPort     int    `json:"postgresPort"`
	PostgresUser     string `json:"postgresUser"`
	PostgresPassword string `json:"-"`
	PostgresDB       string `json:"postgresDB"`
	PostgresSSLMode  string `json:"postgresSSLMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}
