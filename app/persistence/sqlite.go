package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/jmoiron/sqlx"
)

// URLPrefix is the required prefix of database url, i.e. "sqlite:/srv/var/students.db"
const URLPrefix = "sqlite:"

// ErrBadURL returned by New for unsupported database url
var ErrBadURL = errors.New("bad database url")

// Handler manages a single-file sqlite database. Each call opens its own connection
// and closes it when done, no connection is kept between calls.
type Handler struct {
	dsn     string
	path    string
	verbose bool
	logger  log.L
	rptr    *repeater.Repeater
	busy    func(err error) bool // detects errors worth a retry
}

// Params for New
type Params struct {
	URL     string // sqlite:<path>[?query], query passed to the driver as is
	Verbose bool   // log every statement
	Retry   RetryParams
	Logger  log.L

	// OnCreate called once, when the database file is created
	OnCreate func(ctx context.Context, h *Handler) error
}

// RetryParams defines backoff for statements failed with busy/locked database
type RetryParams struct {
	Attempts int
	Delay    time.Duration
	Factor   float64
}

// New makes Handler for the database url. The file is created if missing and OnCreate hook
// is called in this case. If the hook fails the file is removed, so the next New will call it again.
func New(ctx context.Context, params Params) (*Handler, error) {
	dsn, ok := strings.CutPrefix(params.URL, URLPrefix)
	if !ok {
		return nil, fmt.Errorf("%q doesn't start with %q: %w", params.URL, URLPrefix, ErrBadURL)
	}
	path, query, _ := strings.Cut(dsn, "?")
	if path == "" || path == ":memory:" {
		return nil, fmt.Errorf("%q has no database file: %w", params.URL, ErrBadURL)
	}
	// file: uri makes the driver open a different file than the one created here
	if strings.HasPrefix(path, "file:") {
		return nil, fmt.Errorf("%q uses file: uri, pass a plain path: %w", params.URL, ErrBadURL)
	}
	q, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("%q has invalid query: %v: %w", params.URL, err, ErrBadURL)
	}
	if q.Get("mode") == "memory" {
		return nil, fmt.Errorf("%q is in-memory database: %w", params.URL, ErrBadURL)
	}

	res := &Handler{
		dsn:     dsn,
		path:    path,
		verbose: params.Verbose,
		logger:  params.Logger,
		rptr:    makeRepeater(params.Retry),
		busy:    isBusy,
	}
	if res.logger == nil {
		res.logger = log.Default()
	}

	created, err := res.createFile()
	if err != nil {
		return nil, err
	}
	if !created {
		return res, nil
	}

	res.debug("database file created at %s", path)
	if params.OnCreate == nil {
		return res, nil
	}
	if err := params.OnCreate(ctx, res); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			res.logger.Logf("[WARN] failed to remove %s after failed init: %v", path, rmErr)
		}
		return nil, fmt.Errorf("failed to initialize %s: %w", path, err)
	}
	return res, nil
}

func makeRepeater(p RetryParams) *repeater.Repeater {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Delay <= 0 {
		p.Delay = 100 * time.Millisecond
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	return repeater.New(&strategy.Backoff{Repeats: p.Attempts, Duration: p.Delay, Factor: p.Factor, Jitter: true})
}

// createFile makes an empty database file, returns false if the file already exists
func (h *Handler) createFile() (bool, error) {
	fh, err := os.OpenFile(h.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := fh.Close(); err != nil {
		return false, fmt.Errorf("failed to close database file: %w", err)
	}
	return true, nil
}

// Path returns database file location
func (h *Handler) Path() string { return h.path }

func (h *Handler) String() string {
	return fmt.Sprintf("sqlite %s (%s driver)", h.path, driverName)
}

// DeleteDatabase removes the database file
func (h *Handler) DeleteDatabase() error {
	if err := os.Remove(h.path); err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}
	h.debug("database file %s deleted", h.path)
	return nil
}

// CreateTable creates the table if it doesn't exist. The table gets _id column first.
func (h *Handler) CreateTable(ctx context.Context, table string, autoIncrement bool, cols ...Column) error {
	stmt, err := CreateTableStmt(table, autoIncrement, cols...)
	if err != nil {
		return err
	}
	_, err = h.exec(ctx, stmt)
	return err
}

// DropTable removes the table
func (h *Handler) DropTable(ctx context.Context, table string) error {
	stmt, err := DropTableStmt(table)
	if err != nil {
		return err
	}
	_, err = h.exec(ctx, stmt)
	return err
}

// TruncateTable deletes all rows from the table and returns number of deleted rows
func (h *Handler) TruncateTable(ctx context.Context, table string) (int64, error) {
	stmt, err := TruncateStmt(table)
	if err != nil {
		return 0, err
	}
	return h.affected(h.exec(ctx, stmt))
}

// Insert adds a row and returns its rowid
func (h *Handler) Insert(ctx context.Context, table string, values Values) (int64, error) {
	stmt, err := InsertStmt(table, values)
	if err != nil {
		return 0, err
	}
	res, err := h.exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// Delete removes rows matching all where values, returns number of deleted rows
func (h *Handler) Delete(ctx context.Context, table string, where Values) (int64, error) {
	stmt, err := DeleteStmt(table, where)
	if err != nil {
		return 0, err
	}
	return h.affected(h.exec(ctx, stmt))
}

// Update sets values for rows matching where condition, returns number of updated rows.
// where is a sql condition with ? placeholders for whereArgs, empty where updates all rows.
func (h *Handler) Update(ctx context.Context, table string, set Values, where string, whereArgs ...any) (int64, error) {
	stmt, err := UpdateStmt(table, set, where, whereArgs...)
	if err != nil {
		return 0, err
	}
	return h.affected(h.exec(ctx, stmt))
}

// RawSQL executes a statement which returns no rows, i.e. "CREATE INDEX ...".
// Returns number of affected rows.
func (h *Handler) RawSQL(ctx context.Context, query string, args ...any) (int64, error) {
	return h.affected(h.exec(ctx, Statement{Query: query, Args: args}))
}

// RawQuery runs a query and loads all resulting rows
func (h *Handler) RawQuery(ctx context.Context, query string, args ...any) (*QueryData, error) {
	stmt := Statement{Query: query, Args: args}
	var res *QueryData
	err := h.withDB(ctx, func(db *sqlx.DB) error {
		h.debug("query %s", stmt)
		rows, err := db.QueryxContext(ctx, stmt.Query, stmt.Args...)
		if err != nil {
			return fmt.Errorf("failed to query %q: %w", stmt.Query, err)
		}
		defer rows.Close()
		if res, err = loadQueryData(rows); err != nil {
			return err
		}
		h.debug("loaded %d rows", res.Len())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (h *Handler) exec(ctx context.Context, stmt Statement) (sql.Result, error) {
	var res sql.Result
	err := h.withDB(ctx, func(db *sqlx.DB) (err error) {
		h.debug("exec %s", stmt)
		if res, err = db.ExecContext(ctx, stmt.Query, stmt.Args...); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt.Query, err)
		}
		if h.verbose {
			if n, err := res.RowsAffected(); err == nil {
				h.debug("affected %d rows", n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (h *Handler) affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// withDB opens a connection, calls fn and closes the connection. Calls failed on busy database
// are repeated, any other error returned right away.
func (h *Handler) withDB(ctx context.Context, fn func(db *sqlx.DB) error) error {
	var fatalErr error
	err := h.rptr.Do(ctx, func() error {
		fatalErr = nil
		db, err := sqlx.Open(driverName, h.dsn)
		if err != nil {
			fatalErr = fmt.Errorf("failed to open database: %w", err)
			return nil
		}
		db.SetMaxOpenConns(1)
		defer func() {
			if err := db.Close(); err != nil {
				h.logger.Logf("[WARN] failed to close %s: %v", h.path, err)
			}
		}()

		if err := fn(db); err != nil {
			if h.busy(err) {
				h.debug("database %s is busy, %v", h.path, err)
				return err
			}
			fatalErr = err
		}
		return nil
	})
	if fatalErr != nil {
		return fatalErr
	}
	return err
}

func (h *Handler) debug(format string, args ...any) {
	if h.verbose {
		h.logger.Logf("[DEBUG] "+format, args...)
	}
}
