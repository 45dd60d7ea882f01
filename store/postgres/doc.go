// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: BIGSERIAL entry ids, single-statement state transitions that
// update the entry and append its state change atomically, embedded SQL
// migrations.
package postgres
