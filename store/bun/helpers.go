package bunstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/jobqueue"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func notFound(id int64) error {
	return fmt.Errorf("%w: %d", jobqueue.ErrEntryNotFound, id)
}

// checkAffected maps an update that matched no row to ErrEntryNotFound.
func checkAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobqueue/bun: rows affected: %w", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}
