package bunstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"

	"github.com/xraph/jobqueue/store"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a Bun ORM implementation of store.Store.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	clock  clockwork.Clock
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock sets the clock used to timestamp manual retries.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// New creates a new Bun store. The caller owns the db lifecycle and the
// Store will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate creates the tables and indexes if they do not exist. The
// statements are generated from the models so they match the dialect.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{(*entryModel)(nil), (*stateChangeModel)(nil)}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("jobqueue/bun: create table: %w", err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*entryModel)(nil), "idx_jobqueue_entries_state", []string{"state", "added_at"}},
		{(*stateChangeModel)(nil), "idx_jobqueue_state_changes_changed_at", []string{"changed_at"}},
	}
	for _, idx := range indexes {
		_, err := s.db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("jobqueue/bun: create index %s: %w", idx.name, err)
		}
	}

	s.logger.Debug("jobqueue/bun: schema ready", slog.String("dialect", s.db.Dialect().Name().String()))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}
