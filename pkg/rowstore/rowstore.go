// Package rowstore keeps encoded rows in a fixed set of pebble-backed partitions.
package rowstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble"
)

// keyspace and key are joined with this byte in storage keys
const keySep = 0x00

// Errors
var (
	ErrKeyNotFound = &StoreError{"key not found"}
	ErrInvalidKey  = &StoreError{"invalid key"}
	ErrClosed      = &StoreError{"store is closed"}
)

// StoreError represents a row store error
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}

// Config holds configuration for the row store
type Config struct {
	DataDir    string // Directory holding one sub-directory per partition
	Partitions int    // Number of partitions, fixed for the life of the data
	Sync       bool   // fsync every write
}

// KeyedRow is a row returned by a partition scan
type KeyedRow struct {
	Key  string
	Blob []byte
}

// Store is a partitioned row store
type Store struct {
	config Config
	parts  []*pebble.DB
	write  *pebble.WriteOptions

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates a store under config.DataDir
func Open(config Config) (*Store, error) {
	if config.Partitions <= 0 {
		return nil, fmt.Errorf("partitions must be positive, got %d", config.Partitions)
	}
	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	s := &Store{config: config, write: pebble.NoSync}
	if config.Sync {
		s.write = pebble.Sync
	}

	for i := 0; i < config.Partitions; i++ {
		dir := filepath.Join(config.DataDir, fmt.Sprintf("partition-%03d", i))
		db, err := pebble.Open(dir, &pebble.Options{})
		if err != nil {
			s.closeParts()
			return nil, fmt.Errorf("failed to open partition %d: %w", i, err)
		}
		s.parts = append(s.parts, db)
	}

	return s, nil
}

// Partitions returns the number of partitions
func (s *Store) Partitions() int {
	return len(s.parts)
}

// PartitionFor returns the partition that owns key
func (s *Store) PartitionFor(key string) int {
	return PartitionFor(key, len(s.parts))
}

// PartitionFor maps key onto one of n partitions
func PartitionFor(key string, n int) int {
	return int(xxhash.Sum64String(key) % uint64(n))
}

// Get returns the blob stored under (keyspace, key)
func (s *Store) Get(keyspace []byte, key string) ([]byte, error) {
	db, err := s.partition(key)
	if err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	value, closer, err := db.Get(storageKey(keyspace, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	defer closer.Close()

	return append([]byte(nil), value...), nil
}

// Put stores blob under (keyspace, key), replacing any previous row
func (s *Store) Put(keyspace []byte, key string, blob []byte) error {
	db, err := s.partition(key)
	if err != nil {
		return err
	}
	defer s.mu.RUnlock()

	if err := db.Set(storageKey(keyspace, key), blob, s.write); err != nil {
		return fmt.Errorf("failed to put %q: %w", key, err)
	}
	return nil
}

// Delete removes (keyspace, key). Deleting a missing row is not an error.
func (s *Store) Delete(keyspace []byte, key string) error {
	db, err := s.partition(key)
	if err != nil {
		return err
	}
	defer s.mu.RUnlock()

	if err := db.Delete(storageKey(keyspace, key), s.write); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// ScanPartition returns up to limit rows of keyspace held by partition p,
// in key order, starting at lowerBound (inclusive).
func (s *Store) ScanPartition(p int, keyspace []byte, lowerBound string, limit int) ([]KeyedRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if p < 0 || p >= len(s.parts) {
		return nil, fmt.Errorf("partition %d out of range [0,%d)", p, len(s.parts))
	}
	if limit <= 0 {
		return nil, nil
	}

	prefix := append(append([]byte(nil), keyspace...), keySep)
	upper := append(append([]byte(nil), keyspace...), keySep+1)

	iter, err := s.parts[p].NewIter(&pebble.IterOptions{
		LowerBound: storageKey(keyspace, lowerBound),
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator on partition %d: %w", p, err)
	}
	defer iter.Close()

	var rows []KeyedRow
	for valid := iter.First(); valid && len(rows) < limit; valid = iter.Next() {
		k := iter.Key()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		rows = append(rows, KeyedRow{
			Key:  string(k[len(prefix):]),
			Blob: append([]byte(nil), iter.Value()...),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan partition %d: %w", p, err)
	}
	return rows, nil
}

// Close closes every partition
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.closeParts()
}

func (s *Store) closeParts() error {
	var errs []error
	for i, db := range s.parts {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("partition %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// partition returns the owning partition with the read lock held.
// The caller must RUnlock on success.
func (s *Store) partition(key string) (*pebble.DB, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	return s.parts[s.PartitionFor(key)], nil
}

func storageKey(keyspace []byte, key string) []byte {
	k := make([]byte, 0, len(keyspace)+1+len(key))
	k = append(k, keyspace...)
	k = append(k, keySep)
	return append(k, key...)
}
