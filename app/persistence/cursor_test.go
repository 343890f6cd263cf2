package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryData_Navigation(t *testing.T) {
	qd := newQueryData([]string{"_id", "Name"}, [][]any{
		{int64(1), "alice"},
		{int64(2), "bob"},
		{int64(3), "carol"},
	})
	assert.Equal(t, 3, qd.Len())
	assert.False(t, qd.Empty())
	assert.Equal(t, []string{"_id", "Name"}, qd.Columns())

	var names []string
	for more := !qd.Empty(); more; more = qd.Next() {
		name, err := qd.String("Name")
		require.NoError(t, err)
		names = append(names, name)
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)

	// stays on the last row
	assert.False(t, qd.Next())
	id, err := qd.Int("_id")
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	qd.First()
	id, err = qd.Int("_id")
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.True(t, qd.Next())
	name, err := qd.String("Name")
	require.NoError(t, err)
	assert.Equal(t, "bob", name)
}

func TestQueryData_Empty(t *testing.T) {
	qd := newQueryData([]string{"_id"}, nil)
	assert.True(t, qd.Empty())
	assert.Equal(t, 0, qd.Len())
	assert.False(t, qd.Next())
	qd.First()

	_, err := qd.String("_id")
	assert.ErrorIs(t, err, ErrNoRows)
	_, err = qd.Int("_id")
	assert.ErrorIs(t, err, ErrNoRows)
	_, err = qd.Row()
	assert.ErrorIs(t, err, ErrNoRows)
	_, err = qd.Value("_id")
	assert.ErrorIs(t, err, ErrNoRows)
	_, err = qd.Float64("_id")
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestQueryData_RowsImmutable(t *testing.T) {
	qd := newQueryData([]string{"a"}, [][]any{{int64(1)}, {int64(2)}})
	rows := qd.Rows()
	require.Len(t, rows, 2)
	rows[0] = rows[1]

	v, err := qd.Int64("a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	cols := qd.Columns()
	cols[0] = "changed"
	assert.Equal(t, []string{"a"}, qd.Columns())
}

func TestRow_Conversions(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	qd := newQueryData(
		[]string{"i", "f", "whole", "s", "num", "b", "blob", "null", "ts", "big"},
		[][]any{{int64(42), 1.5, 3.0, "text", " 17 ", true, []byte("raw"), nil, ts, int64(1) << 40}},
	)
	row, err := qd.Row()
	require.NoError(t, err)
	assert.Equal(t, []string{"i", "f", "whole", "s", "num", "b", "blob", "null", "ts", "big"}, row.Columns())

	t.Run("string", func(t *testing.T) {
		tbl := []struct{ col, want string }{
			{"i", "42"}, {"f", "1.5"}, {"whole", "3"}, {"s", "text"}, {"b", "true"}, {"blob", "raw"},
			{"ts", "2024-01-02T03:04:05Z"},
		}
		for _, tt := range tbl {
			v, err := row.String(tt.col)
			require.NoError(t, err, tt.col)
			assert.Equal(t, tt.want, v, tt.col)
		}
	})

	t.Run("int", func(t *testing.T) {
		v, err := row.Int("i")
		require.NoError(t, err)
		assert.Equal(t, 42, v)

		v, err = row.Int("num")
		require.NoError(t, err)
		assert.Equal(t, 17, v)

		v, err = row.Int("whole")
		require.NoError(t, err)
		assert.Equal(t, 3, v)

		v, err = row.Int("b")
		require.NoError(t, err)
		assert.Equal(t, 1, v)

		v64, err := row.Int64("big")
		require.NoError(t, err)
		assert.Equal(t, int64(1)<<40, v64)

		_, err = row.Int("f")
		assert.ErrorIs(t, err, ErrConversion)
		_, err = row.Int("s")
		assert.ErrorIs(t, err, ErrConversion)
		_, err = row.Int("null")
		assert.ErrorIs(t, err, ErrNullValue)
	})

	t.Run("float", func(t *testing.T) {
		v, err := row.Float64("f")
		require.NoError(t, err)
		assert.InDelta(t, 1.5, v, 0.0001)

		v, err = row.Float64("i")
		require.NoError(t, err)
		assert.InDelta(t, 42.0, v, 0.0001)

		v, err = row.Float64("num")
		require.NoError(t, err)
		assert.InDelta(t, 17.0, v, 0.0001)

		_, err = row.Float64("s")
		assert.ErrorIs(t, err, ErrConversion)
	})

	t.Run("null and missing", func(t *testing.T) {
		isNull, err := row.IsNull("null")
		require.NoError(t, err)
		assert.True(t, isNull)

		isNull, err = row.IsNull("i")
		require.NoError(t, err)
		assert.False(t, isNull)

		_, err = row.String("null")
		assert.ErrorIs(t, err, ErrNullValue)

		_, err = row.String("nope")
		assert.ErrorIs(t, err, ErrNoColumn)
		_, err = qd.Int("nope")
		assert.ErrorIs(t, err, ErrNoColumn)
		_, err = row.IsNull("nope")
		assert.ErrorIs(t, err, ErrNoColumn)

		v, err := qd.Value("null")
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func TestQueryData_RepeatedLabels(t *testing.T) {
	qd := newQueryData([]string{"x", "x"}, [][]any{{int64(1), int64(2)}})
	assert.Equal(t, []string{"x", "x"}, qd.Columns())
	v, err := qd.Int("x")
	require.NoError(t, err)
	assert.Equal(t, 2, v, "last column with the label wins")
}
