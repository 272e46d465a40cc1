package rowstore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, partitions int) *Store {
	t.Helper()
	s, err := Open(Config{DataDir: t.TempDir(), Partitions: partitions})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_BasicOperations(t *testing.T) {
	s := openTestStore(t, 4)
	keyspace := []byte("usertable")

	require.NoError(t, s.Put(keyspace, "user1", []byte("blob-1")))

	got, err := s.Get(keyspace, "user1")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob-1"), got)

	require.NoError(t, s.Put(keyspace, "user1", []byte("blob-2")))
	got, err = s.Get(keyspace, "user1")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob-2"), got)

	_, err = s.Get([]byte("other"), "user1")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Delete(keyspace, "user1"))
	_, err = s.Get(keyspace, "user1")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// deleting twice is fine
	assert.NoError(t, s.Delete(keyspace, "user1"))
}

func TestStore_InvalidKey(t *testing.T) {
	s := openTestStore(t, 1)

	assert.ErrorIs(t, s.Put([]byte("ks"), "", []byte("x")), ErrInvalidKey)
	_, err := s.Get([]byte("ks"), "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestStore_ScanPartitions(t *testing.T) {
	s := openTestStore(t, 3)
	keyspace := []byte("usertable")

	for i := 0; i < 30; i++ {
		key := fmt.Sprintf("user%02d", i)
		require.NoError(t, s.Put(keyspace, key, []byte(key)))
	}
	require.NoError(t, s.Put([]byte("usertable2"), "user00", []byte("other keyspace")))

	seen := make(map[string]bool)
	for p := 0; p < s.Partitions(); p++ {
		rows, err := s.ScanPartition(p, keyspace, "user10", 100)
		require.NoError(t, err)

		prev := ""
		for _, row := range rows {
			assert.Equal(t, p, s.PartitionFor(row.Key), "row %s in wrong partition", row.Key)
			assert.GreaterOrEqual(t, row.Key, "user10")
			assert.Greater(t, row.Key, prev, "rows out of order")
			assert.Equal(t, row.Key, string(row.Blob))
			prev = row.Key
			seen[row.Key] = true
		}
	}
	assert.Len(t, seen, 20)

	rows, err := s.ScanPartition(0, keyspace, "", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(rows), 2)

	rows, err = s.ScanPartition(0, keyspace, "", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = s.ScanPartition(7, keyspace, "", 1)
	assert.Error(t, err)
}

func TestStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Config{DataDir: dir, Partitions: 2, Sync: true})
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("ks"), "k", []byte("persisted")))
	require.NoError(t, s.Close())

	_, err = s.Get([]byte("ks"), "k")
	assert.ErrorIs(t, err, ErrClosed)

	s, err = Open(Config{DataDir: dir, Partitions: 2})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get([]byte("ks"), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}

func TestOpen_InvalidPartitions(t *testing.T) {
	_, err := Open(Config{DataDir: t.TempDir(), Partitions: 0})
	assert.Error(t, err)
}

func TestPartitionFor_Stable(t *testing.T) {
	for _, key := range []string{"a", "user1", "user999"} {
		p := PartitionFor(key, 8)
		assert.Equal(t, p, PartitionFor(key, 8))
		assert.True(t, p >= 0 && p < 8)
	}
}
