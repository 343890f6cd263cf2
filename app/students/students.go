// Package students is an example store built on persistence.Handler. It keeps a single
// Students table and demonstrates create-on-first-use, CRUD calls and cursor reads.
package students

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/litedb/app/persistence"
)

// table and column names
const (
	TableName = "Students"
	ColName   = "Name"
)

// ErrEmptyName returned for blank student names
var ErrEmptyName = errors.New("empty name")

// Student is a single row of Students table
type Student struct {
	ID   int64
	Name string
}

// Store provides access to students database
type Store struct {
	db     *persistence.Handler
	logger log.L
}

// Params for New
type Params struct {
	Path    string
	Verbose bool
	Retry   persistence.RetryParams
	Logger  log.L // shared with persistence.Handler, log.Default() if nil
}

// New opens students database, creating it with Students table if the file doesn't exist
func New(ctx context.Context, params Params) (*Store, error) {
	res := &Store{logger: params.Logger}
	if res.logger == nil {
		res.logger = log.Default()
	}
	db, err := persistence.New(ctx, persistence.Params{
		URL:      persistence.URLPrefix + params.Path,
		Verbose:  params.Verbose,
		Retry:    params.Retry,
		Logger:   res.logger,
		OnCreate: res.onCreate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open students db: %w", err)
	}
	res.db = db
	return res, nil
}

func (s *Store) onCreate(ctx context.Context, h *persistence.Handler) error {
	if err := h.CreateTable(ctx, TableName, true, persistence.Column{Name: ColName, Type: persistence.ColTypeString}); err != nil {
		return fmt.Errorf("failed to create %s table: %w", TableName, err)
	}
	s.logger.Logf("[INFO] created table %s in %s", TableName, h.Path())
	return nil
}

// Add inserts a new student and returns its id
func (s *Store) Add(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrEmptyName
	}
	id, err := s.db.Insert(ctx, TableName, persistence.Values{ColName: name})
	if err != nil {
		return 0, fmt.Errorf("failed to add student %q: %w", name, err)
	}
	return id, nil
}

// List returns all students in insertion order
func (s *Store) List(ctx context.Context) ([]Student, error) {
	qd, err := s.db.RawQuery(ctx, fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s",
		persistence.IDColumn, ColName, TableName, persistence.IDColumn))
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	res := make([]Student, 0, qd.Len())
	for more := !qd.Empty(); more; more = qd.Next() {
		id, err := qd.Int64(persistence.IDColumn)
		if err != nil {
			return nil, fmt.Errorf("bad student id: %w", err)
		}
		name, err := qd.String(ColName)
		if err != nil {
			return nil, fmt.Errorf("bad name for student %d: %w", id, err)
		}
		res = append(res, Student{ID: id, Name: name})
	}
	return res, nil
}

// Rename changes name of the student. Returns false if no such student.
func (s *Store) Rename(ctx context.Context, id int64, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrEmptyName
	}
	n, err := s.db.Update(ctx, TableName, persistence.Values{ColName: name}, persistence.IDColumn+" = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to rename student %d: %w", id, err)
	}
	return n > 0, nil
}

// Remove deletes the student. Returns false if no such student.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	n, err := s.db.Delete(ctx, TableName, persistence.Values{persistence.IDColumn: id})
	if err != nil {
		return false, fmt.Errorf("failed to remove student %d: %w", id, err)
	}
	return n > 0, nil
}

// Reset removes all students, returns number of removed
func (s *Store) Reset(ctx context.Context) (int64, error) {
	n, err := s.db.TruncateTable(ctx, TableName)
	if err != nil {
		return 0, fmt.Errorf("failed to reset students: %w", err)
	}
	return n, nil
}

// Drop deletes the whole database file
func (s *Store) Drop() error {
	return s.db.DeleteDatabase()
}

// Print writes all students as "<id> <name>" lines
func (s *Store) Print(ctx context.Context, w io.Writer) error {
	ss, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, st := range ss {
		if _, err := fmt.Fprintf(w, "%d %s\n", st.ID, st.Name); err != nil {
			return fmt.Errorf("failed to print student %d: %w", st.ID, err)
		}
	}
	return nil
}

func (s *Store) String() string { return s.db.String() }
