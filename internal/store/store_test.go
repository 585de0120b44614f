// Tests for snapshot storage: the memory fake and the SQLite file
// store must agree on Load/Save semantics.
package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "fresh store must load nil")

	require.NoError(t, st.Save(ctx, []byte(`{"k":"v"}`)))
	got, err = st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"k":"v"}`), got)
	assert.Equal(t, 1, st.Saves())

	// The returned slice must be a copy, not an alias.
	got[0] = 'X'
	again, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte('{'), again[0])
}

func TestSQLiteStore_UpsertAndReload(t *testing.T) {
	path := t.TempDir() + "/snapshots.db"
	ctx := context.Background()

	st, err := OpenSQLite(path, "responses")
	require.NoError(t, err)

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "empty namespace must load nil")

	require.NoError(t, st.Save(ctx, []byte("first")))
	require.NoError(t, st.Save(ctx, []byte("second")))
	got, err = st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got, "save must replace, not append")
	require.NoError(t, st.Close())

	// Reopen: the payload survives the process boundary.
	st2, err := OpenSQLite(path, "responses")
	require.NoError(t, err)
	defer st2.Close()
	got, err = st2.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestSQLiteStore_NamespacesAreIsolated(t *testing.T) {
	path := t.TempDir() + "/snapshots.db"
	ctx := context.Background()

	a, err := OpenSQLite(path, "alpha")
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenSQLite(path, "beta")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Save(ctx, []byte("A")))
	require.NoError(t, b.Save(ctx, []byte("B")))

	got, err := a.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("A"), got)
	got, err = b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("B"), got)
}

func TestOpenSQLite_RequiresNamespace(t *testing.T) {
	_, err := OpenSQLite(t.TempDir()+"/x.db", "")
	assert.Error(t, err)
}
