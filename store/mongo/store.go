package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/jobqueue/store"
)

// Collection name constants.
const (
	colEntries      = "jobqueue_entries"
	colStateChanges = "jobqueue_state_changes"
	colCounters     = "jobqueue_counters"
)

// entrySeq is the counter document holding the last assigned entry id.
const entrySeq = "entries"

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of store.Store.
// The caller owns the client lifecycle; Store never disconnects it.
type Store struct {
	db     *mongod.Database
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

// New creates a new MongoDB store over db.
func New(db *mongod.Database, opts ...Option) *Store {
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

// Database returns the underlying database handle for advanced usage.
func (s *Store) Database() *mongod.Database {
	return s.db
}

// Migrate creates the indexes used by the list and stats queries.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("jobqueue/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for every collection.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colEntries: {
			// List index: state then insertion time.
			{Keys: bson.D{
				{Key: "state", Value: 1},
				{Key: "added_at", Value: 1},
			}},
		},
		colStateChanges: {
			{Keys: bson.D{{Key: "changed_at", Value: 1}}},
			{Keys: bson.D{{Key: "entry_id", Value: 1}}},
		},
	}
}
