package students

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"

	log "github.com/go-pkgz/lgr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	st := prepStore(t)

	list, err := st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list, "table created on first use")

	for _, name := range []string{"Shaked", " Kuku ", "o'neil"} {
		_, err = st.Add(ctx, name)
		require.NoError(t, err)
	}
	_, err = st.Add(ctx, "  ")
	assert.ErrorIs(t, err, ErrEmptyName)

	list, err = st.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Student{{ID: 1, Name: "Shaked"}, {ID: 2, Name: "Kuku"}, {ID: 3, Name: "o'neil"}}, list)

	ok, err := st.Rename(ctx, 2, "Kuku3")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.Rename(ctx, 42, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = st.Rename(ctx, 1, "")
	assert.ErrorIs(t, err, ErrEmptyName)

	ok, err = st.Remove(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.Remove(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	buf := bytes.Buffer{}
	require.NoError(t, st.Print(ctx, &buf))
	assert.Equal(t, "2 Kuku3\n3 o'neil\n", buf.String())

	n, err := st.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	list, err = st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "students.db")

	st, err := New(ctx, Params{Path: dbPath})
	require.NoError(t, err)
	_, err = st.Add(ctx, "alice")
	require.NoError(t, err)

	st2, err := New(ctx, Params{Path: dbPath})
	require.NoError(t, err)
	list, err := st2.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Student{{ID: 1, Name: "alice"}}, list)
	assert.Contains(t, st2.String(), dbPath)

	require.NoError(t, st2.Drop())
	st3, err := New(ctx, Params{Path: dbPath})
	require.NoError(t, err)
	list, err = st3.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list, "recreated after drop")
}

func TestNew_BadPath(t *testing.T) {
	_, err := New(context.Background(), Params{Path: "/no/such/dir/students.db"})
	assert.Error(t, err)
}

func TestNew_Logger(t *testing.T) {
	ctx := context.Background()
	var lines []string
	lgr := log.Func(func(format string, args ...any) { lines = append(lines, fmt.Sprintf(format, args...)) })
	dbPath := filepath.Join(t.TempDir(), "students.db")

	st, err := New(ctx, Params{Path: dbPath, Verbose: true, Logger: lgr})
	require.NoError(t, err)
	assert.Contains(t, lines, "[INFO] created table Students in "+dbPath)
	assert.Contains(t, lines, "[DEBUG] database file created at "+dbPath, "handler logs to the same logger")

	lines = nil
	n, err := st.Import(ctx, "testdata/seed.yml")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Contains(t, lines, `[DEBUG] imported "alice" as 1`)
	assert.Contains(t, lines, `[DEBUG] imported "carol \"cc\" o'hara" as 3`)
}

func prepStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(context.Background(), Params{Path: filepath.Join(t.TempDir(), "students.db"), Verbose: true})
	require.NoError(t, err)
	return st
}
