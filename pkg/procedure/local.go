package procedure

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ssargent/rowbench/pkg/rowstore"
)

// Columns of the tables returned by the built-in procedures.
var (
	valueColumns = []string{"value"}
	scanColumns  = []string{"key", "value"}
)

// ErrSessionClosed is returned by calls on a closed session.
var ErrSessionClosed = errors.New("session closed")

type handler func(ctx context.Context, args []interface{}) *Response

type partitionHandler func(ctx context.Context, partition int, args []interface{}) *Response

// LocalSession runs procedures in-process against a rowstore.Store.
// It is safe for concurrent use. Closing it does not close the store.
type LocalSession struct {
	store       *rowstore.Store
	single      map[string]handler
	partitioned map[string]partitionHandler

	mu     sync.RWMutex
	closed bool
}

// NewLocalSession returns a session over store with the built-in procedures registered.
func NewLocalSession(store *rowstore.Store) *LocalSession {
	s := &LocalSession{store: store}
	s.single = map[string]handler{
		ProcGet:    s.get,
		ProcPut:    s.put,
		ProcDelete: s.delete,
	}
	s.partitioned = map[string]partitionHandler{
		ProcScan: s.scan,
	}
	return s
}

// Store returns the underlying row store.
func (s *LocalSession) Store() *rowstore.Store {
	return s.store
}

// Call runs a single-partition procedure.
func (s *LocalSession) Call(ctx context.Context, name string, args ...interface{}) (*Response, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	h, ok := s.single[name]
	if !ok {
		return failure(StatusGracefulFailure, "procedure %s was not found", name), nil
	}
	return h(ctx, args), nil
}

// CallAllPartitions runs a partitioned procedure on every partition concurrently.
func (s *LocalSession) CallAllPartitions(ctx context.Context, name string, args ...interface{}) ([]PartitionResponse, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	n := s.store.Partitions()
	responses := make([]PartitionResponse, n)

	h, ok := s.partitioned[name]
	if !ok {
		for p := range responses {
			responses[p] = PartitionResponse{
				Partition: p,
				Response:  failure(StatusGracefulFailure, "procedure %s is not partitioned", name),
			}
		}
		return responses, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < n; p++ {
		g.Go(func() error {
			responses[p] = PartitionResponse{Partition: p, Response: h(gctx, p, args)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

// Close marks the session closed. The store stays open.
func (s *LocalSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *LocalSession) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// get(keyspace, key) returns a table with zero or one row holding the blob.
func (s *LocalSession) get(_ context.Context, args []interface{}) *Response {
	keyspace, key, err := keyArgs(args)
	if err != nil {
		return failure(StatusGracefulFailure, "%s: %v", ProcGet, err)
	}

	blob, err := s.store.Get(keyspace, key)
	if errors.Is(err, rowstore.ErrKeyNotFound) {
		return success(Table{Columns: valueColumns})
	}
	if err != nil {
		return failure(StatusUnexpectedFailure, "%s: %v", ProcGet, err)
	}
	return success(Table{Columns: valueColumns, Rows: [][][]byte{{blob}}})
}

// put(keyspace, key, blob) upserts a row.
func (s *LocalSession) put(_ context.Context, args []interface{}) *Response {
	keyspace, key, err := keyArgs(args)
	if err != nil {
		return failure(StatusGracefulFailure, "%s: %v", ProcPut, err)
	}
	blob, err := argBytes(args, 2)
	if err != nil {
		return failure(StatusGracefulFailure, "%s: %v", ProcPut, err)
	}

	if err := s.store.Put(keyspace, key, blob); err != nil {
		return failure(StatusUnexpectedFailure, "%s: %v", ProcPut, err)
	}
	return success()
}

// delete(keyspace, key) removes a row.
func (s *LocalSession) delete(_ context.Context, args []interface{}) *Response {
	keyspace, key, err := keyArgs(args)
	if err != nil {
		return failure(StatusGracefulFailure, "%s: %v", ProcDelete, err)
	}

	if err := s.store.Delete(keyspace, key); err != nil {
		return failure(StatusUnexpectedFailure, "%s: %v", ProcDelete, err)
	}
	return success()
}

// scan(keyspace, lowerBound, limit) returns up to limit (key, value) rows of one partition.
func (s *LocalSession) scan(ctx context.Context, partition int, args []interface{}) *Response {
	if err := ctx.Err(); err != nil {
		return failure(StatusUserAbort, "%s: %v", ProcScan, err)
	}
	keyspace, err := argBytes(args, 0)
	if err != nil {
		return failure(StatusGracefulFailure, "%s: %v", ProcScan, err)
	}
	lowerBound, err := argString(args, 1)
	if err != nil {
		return failure(StatusGracefulFailure, "%s: %v", ProcScan, err)
	}
	limit, err := argInt(args, 2)
	if err != nil {
		return failure(StatusGracefulFailure, "%s: %v", ProcScan, err)
	}

	rows, err := s.store.ScanPartition(partition, keyspace, lowerBound, limit)
	if err != nil {
		return failure(StatusUnexpectedFailure, "%s: %v", ProcScan, err)
	}

	table := Table{Columns: scanColumns, Rows: make([][][]byte, 0, len(rows))}
	for _, row := range rows {
		table.Rows = append(table.Rows, [][]byte{[]byte(row.Key), row.Blob})
	}
	return success(table)
}

func keyArgs(args []interface{}) ([]byte, string, error) {
	keyspace, err := argBytes(args, 0)
	if err != nil {
		return nil, "", err
	}
	key, err := argString(args, 1)
	if err != nil {
		return nil, "", err
	}
	if key == "" {
		return nil, "", fmt.Errorf("empty key")
	}
	return keyspace, key, nil
}
