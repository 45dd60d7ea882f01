//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/jobqueue/store"
	"github.com/xraph/jobqueue/store/postgres"
	"github.com/xraph/jobqueue/store/storetest"
)

// setupContainer starts one Postgres container for the test and returns
// its connection string.
func setupContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("jobqueue_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	return connStr
}

func TestStore_Conformance(t *testing.T) {
	connStr := setupContainer(t)
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(admin.Close)

	// Each subtest gets its own schema so the suite starts empty.
	var n atomic.Int64
	storetest.Run(t, func(t *testing.T) store.Store {
		schema := fmt.Sprintf("jobqueue_test_%d", n.Add(1))
		if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
			t.Fatalf("create schema: %v", err)
		}

		cfg, err := pgxpool.ParseConfig(connStr)
		if err != nil {
			t.Fatalf("parse config: %v", err)
		}
		cfg.ConnConfig.RuntimeParams["search_path"] = schema

		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}

		s := postgres.NewFromPool(pool)
		t.Cleanup(func() { _ = s.Close() })
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return s
	})
}
