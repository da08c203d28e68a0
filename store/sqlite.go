package store

import (
	"github.com/mattn/go-sqlite3"

	"github.com/teranos/histsync/db"
	"github.com/teranos/histsync/errors"
)

// wrapf wraps a database error, marking it db.ErrDatabaseClosed when the
// connection has gone away underneath the store.
func wrapf(err error, format string, args ...interface{}) error {
	wrapped := errors.Wrapf(err, format, args...)
	if db.IsDatabaseClosed(err) {
		return errors.Mark(wrapped, db.ErrDatabaseClosed)
	}
	return wrapped
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
