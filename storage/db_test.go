package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBBatchAtomicVisibility(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	batch := db.NewBatch()
	batch.Put([]byte("a"), []byte{1})
	batch.Put([]byte("b"), []byte{2})

	ok, err := db.Has([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok, "batch writes must stay buffered until Write")

	require.NoError(t, batch.Write())

	got, err := db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte{2}, got)
}

func TestMemDBBatchReset(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	batch := db.NewBatch()
	batch.Put([]byte("a"), []byte{1})
	batch.Reset()
	require.NoError(t, batch.Write())

	ok, err := db.Has([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLevelDBBatchPersists(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)

	batch := db1.NewBatch()
	batch.Put([]byte("counter"), []byte{0, 0, 0, 7})
	batch.Put([]byte("value"), []byte("x"))
	require.NoError(t, batch.Write())
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("counter"))
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 7}, got)
}
