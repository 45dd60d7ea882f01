package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/jobqueue"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func notFound(id int64) error {
	return fmt.Errorf("%w: %d", jobqueue.ErrEntryNotFound, id)
}
