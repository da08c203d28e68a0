package commands

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/teranos/histsync/am"
	"github.com/teranos/histsync/db"
	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/logger"
	"github.com/teranos/histsync/store"
)

// openStore opens and migrates the database at dbPath and wraps it in a
// record store. The caller closes the returned *sql.DB.
func openStore(dbPath string) (*store.Store, *sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), am.DefaultDirPermissions); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to create directory for %s", dbPath)
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, nil, err
	}

	return store.New(database, store.WithLogger(logger.ComponentLogger("store"))), database, nil
}
