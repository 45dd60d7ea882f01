// Package bunstore implements store.Store using the Bun ORM. The same
// models serve PostgreSQL (pgdialect) and SQLite (sqlitedialect), so one
// store covers both a production database and an embedded file.
//
// The caller owns the *bun.DB lifecycle and bunstore never closes it.
// Pass the db handle through the constructor:
//
//	import (
//	    "github.com/uptrace/bun"
//	    "github.com/uptrace/bun/dialect/pgdialect"
//	    "github.com/uptrace/bun/driver/pgdriver"
//	    bunstore "github.com/xraph/jobqueue/store/bun"
//	)
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	store := bunstore.New(db)
//	store.Migrate(ctx)
//
// For SQLite, open the database with github.com/mattn/go-sqlite3 and wrap
// it with sqlitedialect.New(). SQLite allows one writer at a time, so cap
// the pool with sqldb.SetMaxOpenConns(1).
package bunstore
