package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/jobqueue/store"
	bunstore "github.com/xraph/jobqueue/store/bun"
	"github.com/xraph/jobqueue/store/memory"
	mongostore "github.com/xraph/jobqueue/store/mongo"
	pgstore "github.com/xraph/jobqueue/store/postgres"
	redisstore "github.com/xraph/jobqueue/store/redis"
)

// openStore connects the configured persister and migrates it. The
// returned close func releases the underlying connection.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, func(context.Context) error, error) {
	s, closeFn, err := connect(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	if err := s.Ping(ctx); err != nil {
		_ = closeFn(ctx)
		return nil, nil, fmt.Errorf("ping %s store: %w", cfg.Driver, err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = closeFn(ctx)
		return nil, nil, fmt.Errorf("migrate %s store: %w", cfg.Driver, err)
	}
	return s, closeFn, nil
}

func connect(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, func(context.Context) error, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), noClose, nil

	case "sqlite":
		sqldb, err := sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		sqldb.SetMaxOpenConns(1)
		db := bun.NewDB(sqldb, sqlitedialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), closeBun(db), nil

	case "postgres":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), closeBun(db), nil

	case "pgx":
		s, err := pgstore.New(ctx, cfg.DSN, pgstore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error { return s.Close() }, nil

	case "redis":
		opts, err := goredis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		client := goredis.NewClient(opts)
		return redisstore.New(client, redisstore.WithLogger(logger)),
			func(context.Context) error { return client.Close() }, nil

	case "mongo":
		client, err := mongod.Connect(options.Client().ApplyURI(cfg.DSN))
		if err != nil {
			return nil, nil, err
		}
		db := client.Database(cfg.MongoDatabase)
		return mongostore.New(db, mongostore.WithLogger(logger)), client.Disconnect, nil

	default:
		return nil, nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

func noClose(context.Context) error { return nil }

func closeBun(db *bun.DB) func(context.Context) error {
	return func(context.Context) error { return db.Close() }
}
