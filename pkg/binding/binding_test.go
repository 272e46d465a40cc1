package binding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/rowbench/pkg/codec"
	"github.com/ssargent/rowbench/pkg/procedure"
	"github.com/ssargent/rowbench/pkg/rowstore"
	"github.com/ssargent/rowbench/pkg/scatter"
)

const keyspace = "usertable"

func setupDB(t *testing.T, opts Options) (*DB, *procedure.LocalSession) {
	t.Helper()
	store, err := rowstore.Open(rowstore.Config{DataDir: t.TempDir(), Partitions: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	session := procedure.NewLocalSession(store)
	db := New(session, opts)
	t.Cleanup(func() { _ = db.Cleanup() })
	return db, session
}

func TestDB_InsertReadDelete(t *testing.T) {
	db, _ := setupDB(t, Options{})
	ctx := context.Background()

	status := db.Insert(ctx, keyspace, "user1", codec.FromStrings(map[string]string{
		"name": "ann",
		"age":  "30",
	}))
	require.Equal(t, StatusOK, status)

	result := make(codec.Row)
	require.Equal(t, StatusOK, db.Read(ctx, keyspace, "user1", nil, result))
	assert.Len(t, result, 2)
	assert.Equal(t, "ann", result["name"].String())
	assert.Equal(t, "30", result["age"].String())

	result = make(codec.Row)
	require.Equal(t, StatusOK, db.Read(ctx, keyspace, "user1", codec.Select("age"), result))
	assert.Len(t, result, 1)
	assert.Equal(t, "30", result["age"].String())

	require.Equal(t, StatusOK, db.Update(ctx, keyspace, "user1", codec.FromStrings(map[string]string{"age": "31"})))
	result = make(codec.Row)
	require.Equal(t, StatusOK, db.Read(ctx, keyspace, "user1", nil, result))
	assert.Equal(t, map[string]string{"age": "31"}, rowStrings(result))

	require.Equal(t, StatusOK, db.Delete(ctx, keyspace, "user1"))
	result = make(codec.Row)
	assert.Equal(t, StatusOK, db.Read(ctx, keyspace, "user1", nil, result))
	assert.Empty(t, result)
}

func TestDB_ReadNilResult(t *testing.T) {
	db, _ := setupDB(t, Options{})
	assert.Equal(t, StatusError, db.Read(context.Background(), keyspace, "user1", nil, nil))
}

func TestDB_CapacityExceeded(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	db, session := setupDB(t, Options{BufferSize: 32, Metrics: metrics})
	ctx := context.Background()

	status := db.Insert(ctx, keyspace, "user1", codec.FromStrings(map[string]string{
		"payload": "far too long for a thirty-two byte scratch buffer",
	}))
	assert.Equal(t, StatusError, status)

	resp, err := session.Call(ctx, procedure.ProcGet, []byte(keyspace), "user1")
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Results[0].RowCount(), "nothing should be stored")

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.codecErrorsTotal.WithLabelValues("capacity_exceeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("insert", "error")))

	// the encoder is still usable
	assert.Equal(t, StatusOK, db.Insert(ctx, keyspace, "user1", codec.FromStrings(map[string]string{"a": "b"})))
}

func TestDB_MalformedStoredRow(t *testing.T) {
	db, session := setupDB(t, Options{})
	ctx := context.Background()

	resp, err := session.Call(ctx, procedure.ProcPut, []byte(keyspace), "broken", []byte{9, 0, 0, 0, 1})
	require.NoError(t, err)
	require.True(t, resp.OK())

	result := make(codec.Row)
	assert.Equal(t, StatusError, db.Read(ctx, keyspace, "broken", nil, result))
	assert.Empty(t, result)
}

func TestDB_Scan(t *testing.T) {
	db, _ := setupDB(t, Options{ScanPolicy: scatter.RequireAll()})
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		key := fmt.Sprintf("user%02d", i)
		require.Equal(t, StatusOK, db.Insert(ctx, keyspace, key, codec.FromStrings(map[string]string{
			"id":    key,
			"extra": "x",
		})))
	}

	var rows []codec.Row
	require.Equal(t, StatusOK, db.Scan(ctx, keyspace, "user10", 5, codec.Select("id"), &rows))
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Len(t, row, 1)
		assert.Equal(t, fmt.Sprintf("user%02d", 10+i), row["id"].String())
	}

	rows = nil
	require.Equal(t, StatusOK, db.Scan(ctx, keyspace, "user20", 100, nil, &rows))
	assert.Len(t, rows, 5)
	assert.Len(t, rows[0], 2)

	rows = nil
	require.Equal(t, StatusOK, db.Scan(ctx, "emptyspace", "", 10, nil, &rows))
	assert.Empty(t, rows)

	assert.Equal(t, StatusError, db.Scan(ctx, keyspace, "", 10, nil, nil))
}

// flakySession fails the first n calls with a transport error.
type flakySession struct {
	procedure.Session
	failures int
	calls    int
	status   procedure.Status
}

var errTransport = errors.New("connection reset")

func (f *flakySession) Call(ctx context.Context, name string, args ...interface{}) (*procedure.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errTransport
	}
	if f.status != 0 {
		return &procedure.Response{Status: f.status, StatusString: "rejected"}, nil
	}
	return f.Session.Call(ctx, name, args...)
}

func TestDB_Retry(t *testing.T) {
	_, local := setupDB(t, Options{})
	opts := Options{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("recovers after transient failures", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		o := opts
		o.Metrics = NewMetrics(reg)
		flaky := &flakySession{Session: local, failures: 2}
		db := New(flaky, o)

		assert.Equal(t, StatusOK, db.Delete(context.Background(), keyspace, "user1"))
		assert.Equal(t, 3, flaky.calls)
		assert.Equal(t, float64(2), testutil.ToFloat64(o.Metrics.retriesTotal.WithLabelValues(procedure.ProcDelete)))
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		flaky := &flakySession{Session: local, failures: 10}
		db := New(flaky, opts)

		assert.Equal(t, StatusError, db.Delete(context.Background(), keyspace, "user1"))
		assert.Equal(t, 3, flaky.calls)
	})

	t.Run("status failures are not retried", func(t *testing.T) {
		flaky := &flakySession{Session: local, status: procedure.StatusGracefulFailure}
		db := New(flaky, opts)

		assert.Equal(t, StatusError, db.Delete(context.Background(), keyspace, "user1"))
		assert.Equal(t, 1, flaky.calls)
	})

	t.Run("cancelled context stops retries", func(t *testing.T) {
		flaky := &flakySession{Session: local, failures: 10}
		db := New(flaky, Options{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		start := time.Now()
		assert.Equal(t, StatusError, db.Delete(ctx, keyspace, "user1"))
		assert.Less(t, time.Since(start), time.Minute)
		assert.Equal(t, 1, flaky.calls)
	})
}

func TestDB_RateLimit(t *testing.T) {
	db, _ := setupDB(t, Options{RateLimit: 50})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 60; i++ {
		require.Equal(t, StatusOK, db.Delete(ctx, keyspace, "user1"))
	}
	// burst of 50, then ten more at 50/s
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestDB_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	db, _ := setupDB(t, Options{Metrics: metrics})
	ctx := context.Background()

	require.Equal(t, StatusOK, db.Insert(ctx, keyspace, "user1", codec.FromStrings(map[string]string{"a": "b"})))
	require.Equal(t, StatusOK, db.Read(ctx, keyspace, "user1", nil, make(codec.Row)))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("insert", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("read", "success")))

	count, err := testutil.GatherAndCount(reg, "rowbench_binding_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "ERROR", StatusError.String())
}

func rowStrings(row codec.Row) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[k] = v.String()
	}
	return out
}
