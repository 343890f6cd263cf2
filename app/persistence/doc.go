// Package persistence provides a thin convenience layer over a single-file SQLite database.
// Handler opens or creates the database file, builds CREATE/INSERT/UPDATE/DELETE statements
// from column maps with bound parameters, and returns query results as an in-memory QueryData
// cursor. Each operation opens its own connection and closes it right after.
//
// The pure-Go modernc.org/sqlite driver is used by default, build with -tags cgo_sqlite
// to switch to github.com/mattn/go-sqlite3.
package persistence
