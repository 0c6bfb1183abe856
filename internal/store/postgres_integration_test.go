//go:build integration

// To run: go test -tags integration ./internal/store
package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestPostgresStore_Integration runs the shared store suite against a real
// PostgreSQL container.
func TestPostgresStore_Integration(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer func() { _ = pgC.Terminate(ctx) }()

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)
	connStr := fmt.Sprintf("postgres://postgres@%s:%s/postgres?sslmode=disable", host, port.Port())

	newStore := func(t *testing.T) Store {
		t.Helper()
		s, err := NewPostgres(ctx, connStr, &PoolConfig{MaxConns: 8})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() }) //nolint:errcheck
		require.NoError(t, s.Migrate(ctx))
		require.NoError(t, s.Reset(ctx))
		return s
	}

	storeTestSuite(t, newStore)
}
