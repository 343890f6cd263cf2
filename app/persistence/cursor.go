package persistence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// cursor errors
var (
	ErrNoRows     = errors.New("no rows")
	ErrNoColumn   = errors.New("no such column")
	ErrNullValue  = errors.New("null value")
	ErrConversion = errors.New("invalid conversion")
)

// Row is a single result row, cells keyed by column label in query order.
// Labels are not unique in sql, i.e. "SELECT 1 AS x, 2 AS x". For repeated labels Columns
// lists every one, but the cell keeps the value of the last column with this label.
type Row struct {
	cols  []string
	cells map[string]any
}

// Columns returns column labels in query order
func (r Row) Columns() []string {
	res := make([]string, len(r.cols))
	copy(res, r.cols)
	return res
}

// Value returns raw value of the column as returned by the driver
func (r Row) Value(col string) (any, error) {
	v, ok := r.cells[col]
	if !ok {
		return nil, fmt.Errorf("%q: %w", col, ErrNoColumn)
	}
	return v, nil
}

// IsNull checks if column value is NULL. Missing column reported as error.
func (r Row) IsNull(col string) (bool, error) {
	v, err := r.Value(col)
	if err != nil {
		return false, err
	}
	return v == nil, nil
}

// String returns column value converted to string
func (r Row) String(col string) (string, error) {
	v, err := r.Value(col)
	if err != nil {
		return "", err
	}
	switch val := v.(type) {
	case nil:
		return "", fmt.Errorf("%q: %w", col, ErrNullValue)
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case time.Time:
		return val.Format(time.RFC3339Nano), nil
	default:
		return fmt.Sprintf("%v", val), nil
	}
}

// Int64 returns column value as int64. Text values are parsed.
func (r Row) Int64(col string) (int64, error) {
	v, err := r.Value(col)
	if err != nil {
		return 0, err
	}
	switch val := v.(type) {
	case int64:
		return val, nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case float64:
		if val != float64(int64(val)) {
			return 0, fmt.Errorf("%q value %v: %w", col, val, ErrConversion)
		}
		return int64(val), nil
	}

	s, err := r.String(col)
	if err != nil {
		return 0, err
	}
	res, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q value %q: %w", col, s, ErrConversion)
	}
	return res, nil
}

// Int returns column value as int
func (r Row) Int(col string) (int, error) {
	v, err := r.Int64(col)
	if err != nil {
		return 0, err
	}
	if int64(int(v)) != v {
		return 0, fmt.Errorf("%q value %d overflows int: %w", col, v, ErrConversion)
	}
	return int(v), nil
}

// Float64 returns column value as float64. Text values are parsed.
func (r Row) Float64(col string) (float64, error) {
	v, err := r.Value(col)
	if err != nil {
		return 0, err
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case int64:
		return float64(val), nil
	}

	s, err := r.String(col)
	if err != nil {
		return 0, err
	}
	res, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%q value %q: %w", col, s, ErrConversion)
	}
	return res, nil
}

// QueryData is a cursor over fully loaded query results. Rows are immutable once loaded,
// only the current position moves. The cursor starts on the first row.
// Accessors read cells by label, see Row for repeated labels.
type QueryData struct {
	cols []string
	rows []Row
	pos  int
}

// loadQueryData reads all rows from the result set
func loadQueryData(rows *sqlx.Rows) (*QueryData, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var vals [][]any
	for rows.Next() {
		v, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		vals = append(vals, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return newQueryData(cols, vals), nil
}

func newQueryData(cols []string, vals [][]any) *QueryData {
	res := &QueryData{cols: cols, rows: make([]Row, 0, len(vals))}
	for _, v := range vals {
		cells := make(map[string]any, len(cols))
		for i, c := range cols {
			if i < len(v) {
				cells[c] = v[i]
			}
		}
		res.rows = append(res.rows, Row{cols: cols, cells: cells})
	}
	return res
}

// Len returns number of loaded rows
func (q *QueryData) Len() int { return len(q.rows) }

// Empty checks if the query returned no rows
func (q *QueryData) Empty() bool { return len(q.rows) == 0 }

// Columns returns column labels in query order
func (q *QueryData) Columns() []string {
	res := make([]string, len(q.cols))
	copy(res, q.cols)
	return res
}

// Rows returns all loaded rows
func (q *QueryData) Rows() []Row {
	res := make([]Row, len(q.rows))
	copy(res, q.rows)
	return res
}

// Row returns the current row
func (q *QueryData) Row() (Row, error) {
	if len(q.rows) == 0 {
		return Row{}, ErrNoRows
	}
	return q.rows[q.pos], nil
}

// Next moves the cursor to the next row. Returns false if the current row is the last one,
// the cursor stays on it in this case.
func (q *QueryData) Next() bool {
	if q.pos+1 >= len(q.rows) {
		return false
	}
	q.pos++
	return true
}

// First moves the cursor back to the first row
func (q *QueryData) First() { q.pos = 0 }

// Value returns raw value from the current row
func (q *QueryData) Value(col string) (any, error) {
	r, err := q.Row()
	if err != nil {
		return nil, err
	}
	return r.Value(col)
}

// String returns value of the column in the current row as string
func (q *QueryData) String(col string) (string, error) {
	r, err := q.Row()
	if err != nil {
		return "", err
	}
	return r.String(col)
}

// Int returns value of the column in the current row as int
func (q *QueryData) Int(col string) (int, error) {
	r, err := q.Row()
	if err != nil {
		return 0, err
	}
	return r.Int(col)
}

// Int64 returns value of the column in the current row as int64
func (q *QueryData) Int64(col string) (int64, error) {
	r, err := q.Row()
	if err != nil {
		return 0, err
	}
	return r.Int64(col)
}

// Float64 returns value of the column in the current row as float64
func (q *QueryData) Float64(col string) (float64, error) {
	r, err := q.Row()
	if err != nil {
		return 0, err
	}
	return r.Float64(col)
}
