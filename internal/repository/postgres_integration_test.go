//go:build integration

package repository

import (
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"

	"github.com/opensource-health/rulesmith/internal/domain"
)

func TestPostgresRepository(t *testing.T) {
	pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		Username("test").
		Password("test").
		Database("rulesmith").
		Port(15434).
		StartTimeout(60 * time.Second))

	if err := pg.Start(); err != nil {
		t.Fatalf("start embedded postgres: %v", err)
	}
	defer pg.Stop()

	repo, err := New(domain.RepositoryConfig{
		Driver:           "postgres",
		PostgresHost:     "localhost",
		PostgresPort:     15434,
		PostgresUser:     "test",
		PostgresPassword: "test",
		PostgresDB:       "rulesmith",
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	runRepositorySuite(t, repo)
}
