package persistence

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// column types used by CreateTable callers
const (
	ColTypeString = "VARCHAR(255)"
	ColTypeInt    = "INTEGER"
)

// IDColumn is the implicit first column of every table made by CreateTable
const IDColumn = "_id"

// builder errors
var (
	ErrNoColumns     = errors.New("no columns")
	ErrNoValues      = errors.New("no values")
	ErrNoWhere       = errors.New("empty where clause")
	ErrBadIdentifier = errors.New("invalid identifier")
	ErrBadType       = errors.New("invalid column type")
)

var (
	identRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	colTypeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ ]*(\(\s*\d+\s*(,\s*\d+\s*)?\))?[A-Za-z ]*$`)
)

// Column defines a table column for CreateTable
type Column struct {
	Name string
	Type string // sql type, i.e. ColTypeString
}

// Values maps column names to values. Keys are emitted in sorted order.
type Values map[string]any

// Statement is a query with bound arguments
type Statement struct {
	Query string
	Args  []any
}

// String renders the statement with arguments inlined as sql literals. Used for logging only,
// the rendered text is never sent to the database.
func (s Statement) String() string {
	if len(s.Args) == 0 {
		return s.Query
	}
	var b strings.Builder
	argIdx := 0
	var openQuote rune // quote char of the current literal or identifier, 0 outside of quotes
	for _, r := range s.Query {
		switch {
		case (r == '\'' || r == '"') && (openQuote == 0 || openQuote == r):
			if openQuote == 0 {
				openQuote = r
			} else {
				openQuote = 0
			}
			b.WriteRune(r)
		case r == '?' && openQuote == 0 && argIdx < len(s.Args):
			b.WriteString(literal(s.Args[argIdx]))
			argIdx++
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// literal makes sql literal for a value. strings are quoted, numbers and booleans are not
func literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case []byte:
		return "X'" + hex.EncodeToString(val) + "'"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case time.Time:
		return "'" + val.Format(time.RFC3339Nano) + "'"
	case fmt.Stringer:
		return "'" + strings.ReplaceAll(val.String(), "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// CreateTableStmt makes CREATE TABLE IF NOT EXISTS statement. The table always gets _id column,
// autoincrement primary key if autoIncrement set.
func CreateTableStmt(table string, autoIncrement bool, cols ...Column) (Statement, error) {
	if err := checkIdent(table); err != nil {
		return Statement{}, err
	}
	if len(cols) == 0 {
		return Statement{}, fmt.Errorf("table %s: %w", table, ErrNoColumns)
	}

	defs := make([]string, 0, len(cols)+1)
	if autoIncrement {
		defs = append(defs, quote(IDColumn)+" INTEGER PRIMARY KEY AUTOINCREMENT")
	} else {
		defs = append(defs, quote(IDColumn)+" INTEGER")
	}
	for _, c := range cols {
		if err := checkIdent(c.Name); err != nil {
			return Statement{}, err
		}
		if !colTypeRe.MatchString(c.Type) {
			return Statement{}, fmt.Errorf("column %s type %q: %w", c.Name, c.Type, ErrBadType)
		}
		defs = append(defs, quote(c.Name)+" "+c.Type)
	}
	return Statement{Query: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", "))}, nil
}

// DropTableStmt makes DROP TABLE statement
func DropTableStmt(table string) (Statement, error) {
	if err := checkIdent(table); err != nil {
		return Statement{}, err
	}
	return Statement{Query: "DROP TABLE IF EXISTS " + quote(table)}, nil
}

// TruncateStmt makes statement removing all rows from the table
func TruncateStmt(table string) (Statement, error) {
	if err := checkIdent(table); err != nil {
		return Statement{}, err
	}
	return Statement{Query: "DELETE FROM " + quote(table)}, nil
}

// InsertStmt makes INSERT statement for given column values
func InsertStmt(table string, values Values) (Statement, error) {
	if err := checkIdent(table); err != nil {
		return Statement{}, err
	}
	keys, err := sortedKeys(values)
	if err != nil {
		return Statement{}, err
	}
	if len(keys) == 0 {
		return Statement{}, fmt.Errorf("insert into %s: %w", table, ErrNoValues)
	}

	cols := make([]string, 0, len(keys))
	params := make([]string, 0, len(keys))
	for _, k := range keys {
		cols = append(cols, quote(k))
		params = append(params, ":"+k)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(cols, ", "), strings.Join(params, ", "))
	return named(query, values)
}

// DeleteStmt makes DELETE statement matching all where values (joined with AND).
// nil value matches NULL. Empty where is rejected, use TruncateStmt to clear the table.
func DeleteStmt(table string, where Values) (Statement, error) {
	if err := checkIdent(table); err != nil {
		return Statement{}, err
	}
	keys, err := sortedKeys(where)
	if err != nil {
		return Statement{}, err
	}
	if len(keys) == 0 {
		return Statement{}, fmt.Errorf("delete from %s: %w", table, ErrNoWhere)
	}

	conds := make([]string, 0, len(keys))
	for _, k := range keys {
		if where[k] == nil {
			conds = append(conds, quote(k)+" IS NULL")
			continue
		}
		conds = append(conds, quote(k)+" = :"+k)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", quote(table), strings.Join(conds, " AND "))
	return named(query, where)
}

// UpdateStmt makes UPDATE statement setting given values. where is a free-form sql condition,
// its ? placeholders are bound to whereArgs. Empty where updates all rows, whereArgs
// with empty where rejected.
func UpdateStmt(table string, set Values, where string, whereArgs ...any) (Statement, error) {
	if err := checkIdent(table); err != nil {
		return Statement{}, err
	}
	keys, err := sortedKeys(set)
	if err != nil {
		return Statement{}, err
	}
	if len(keys) == 0 {
		return Statement{}, fmt.Errorf("update %s: %w", table, ErrNoValues)
	}
	if strings.TrimSpace(where) == "" && len(whereArgs) > 0 {
		return Statement{}, fmt.Errorf("update %s with %d where args: %w", table, len(whereArgs), ErrNoWhere)
	}

	assigns := make([]string, 0, len(keys))
	for _, k := range keys {
		assigns = append(assigns, quote(k)+" = :"+k)
	}
	stmt, err := named(fmt.Sprintf("UPDATE %s SET %s", quote(table), strings.Join(assigns, ", ")), set)
	if err != nil {
		return Statement{}, err
	}
	if strings.TrimSpace(where) != "" {
		stmt.Query += " WHERE " + where
		stmt.Args = append(stmt.Args, whereArgs...)
	}
	return stmt, nil
}

// named binds :name parameters from values and converts them to ? placeholders
func named(query string, values Values) (Statement, error) {
	q, args, err := sqlx.Named(query, map[string]any(values))
	if err != nil {
		return Statement{}, fmt.Errorf("failed to bind %q: %w", query, err)
	}
	return Statement{Query: q, Args: args}, nil
}

func sortedKeys(values Values) ([]string, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		if err := checkIdent(k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%q: %w", name, ErrBadIdentifier)
	}
	return nil
}

func quote(ident string) string {
	return `"` + ident + `"`
}
