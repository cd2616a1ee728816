package db

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrTxInProgress is returned when Store.Transaction is called with a
// context that already carries an open transaction.
var ErrTxInProgress = errors.New("transaction already in progress")

// Error wraps a database failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err wrapped as a database Error, or nil when err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// IsDatabaseError reports whether err originated in the database layer.
func IsDatabaseError(err error) bool {
	var dbErr *Error
	return errors.As(err, &dbErr)
}

// IsDuplicateEntry reports whether err is a MySQL duplicate-key violation
// (error 1062). Writers racing on a unique key treat it as a signal to
// re-read the row instead of failing.
func IsDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// IsNotFound reports whether err is a no-rows query result.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
