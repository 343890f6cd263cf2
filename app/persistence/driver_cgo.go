//go:build cgo_sqlite

package persistence

import (
	"errors"

	"github.com/mattn/go-sqlite3" // cgo sqlite driver, requires CGO_ENABLED=1
)

const driverName = "sqlite3"

// isBusy detects SQLITE_BUSY and SQLITE_LOCKED
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}
