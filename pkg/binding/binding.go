// Package binding implements YCSB-style row operations on top of a procedure
// session, storing each row as one codec blob.
package binding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ssargent/rowbench/pkg/codec"
	"github.com/ssargent/rowbench/pkg/procedure"
	"github.com/ssargent/rowbench/pkg/scatter"
)

// Status is the result of one binding operation.
type Status int

const (
	StatusOK Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusOK {
		return "OK"
	}
	return "ERROR"
}

// Options configures a DB.
type Options struct {
	BufferSize  int           // encoder scratch capacity
	RateLimit   float64       // operations per second, 0 = unlimited
	MaxAttempts int           // attempts per call when the session returns an error
	BaseDelay   time.Duration // first retry delay
	MaxDelay    time.Duration // retry delay cap
	ScanPolicy  scatter.Policy
	Logger      *zap.Logger
	Metrics     *Metrics
}

// DB is one client session's view of the row store.
//
// A DB owns a single Encoder and is therefore not safe for concurrent use;
// give every worker its own DB.
type DB struct {
	session     procedure.Session
	encoder     *codec.Encoder
	limiter     *rate.Limiter
	backoff     *backoff.Backoff
	maxAttempts int
	policy      scatter.Policy
	log         *zap.Logger
	metrics     *Metrics
}

// New wraps session. The DB takes ownership of session and closes it in Cleanup.
func New(session procedure.Session, opts Options) *DB {
	db := &DB{
		session:     session,
		encoder:     codec.NewEncoder(opts.BufferSize),
		maxAttempts: opts.MaxAttempts,
		policy:      opts.ScanPolicy,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		backoff: &backoff.Backoff{
			Min:    opts.BaseDelay,
			Max:    opts.MaxDelay,
			Factor: 2,
			Jitter: true,
		},
	}
	if db.maxAttempts <= 0 {
		db.maxAttempts = 1
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		db.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if db.log == nil {
		db.log = zap.NewNop()
	}
	return db
}

// Cleanup closes the session.
func (db *DB) Cleanup() error {
	return db.session.Close()
}

// Read fetches one row and decodes the wanted fields into result.
// A nil fields selection reads every field. A missing row leaves result empty
// and still reports OK.
func (db *DB) Read(ctx context.Context, keyspace, key string, fields codec.Selection, result codec.Row) Status {
	return db.observe("read", func() error {
		if result == nil {
			return errors.New("nil result row")
		}
		resp, err := db.call(ctx, procedure.ProcGet, []byte(keyspace), key)
		if err != nil {
			return err
		}
		if len(resp.Results) == 0 {
			return nil
		}
		blob, ok := resp.Results[0].Varbinary(0, 0)
		if !ok {
			return nil
		}
		if err := codec.DecodeInto(blob, fields, result); err != nil {
			return fmt.Errorf("decode row %q: %w", key, err)
		}
		return nil
	}, zap.String("keyspace", keyspace), zap.String("key", key))
}

// Insert stores a new row. It is an upsert, identical to Update.
func (db *DB) Insert(ctx context.Context, keyspace, key string, values codec.Fields) Status {
	return db.write(ctx, "insert", keyspace, key, values)
}

// Update replaces a row with values.
func (db *DB) Update(ctx context.Context, keyspace, key string, values codec.Fields) Status {
	return db.write(ctx, "update", keyspace, key, values)
}

func (db *DB) write(ctx context.Context, op string, keyspace, key string, values codec.Fields) Status {
	return db.observe(op, func() error {
		blob, err := db.encoder.Encode(values)
		if err != nil {
			return fmt.Errorf("encode row %q: %w", key, err)
		}
		_, err = db.call(ctx, procedure.ProcPut, []byte(keyspace), key, blob)
		return err
	}, zap.String("keyspace", keyspace), zap.String("key", key))
}

// Delete removes a row.
func (db *DB) Delete(ctx context.Context, keyspace, key string) Status {
	return db.observe("delete", func() error {
		_, err := db.call(ctx, procedure.ProcDelete, []byte(keyspace), key)
		return err
	}, zap.String("keyspace", keyspace), zap.String("key", key))
}

// Scan reads up to recordCount rows in key order starting at lowerBound,
// appending one decoded row per record to result.
func (db *DB) Scan(ctx context.Context, keyspace, lowerBound string, recordCount int, fields codec.Selection, result *[]codec.Row) Status {
	return db.observe("scan", func() error {
		if result == nil {
			return errors.New("nil result slice")
		}
		responses, err := db.callAllPartitions(ctx, procedure.ProcScan, keyspace, lowerBound, recordCount)
		if err != nil {
			return err
		}
		outcome, err := scatter.Reduce(responses, len(responses), db.policy)
		if err != nil {
			return err
		}
		if !outcome.Success {
			return fmt.Errorf("scan: %d of %d partitions succeeded, policy %s", outcome.Succeeded, outcome.Partitions, db.policy)
		}
		outcome.Limit(recordCount)

		rows := make([]codec.Row, 0, len(outcome.Rows))
		for _, r := range outcome.Rows {
			row := make(codec.Row, len(fields))
			if err := codec.DecodeInto(r.Blob, fields, row); err != nil {
				return fmt.Errorf("decode row %q from partition %d: %w", r.Key, r.Partition, err)
			}
			rows = append(rows, row)
		}
		*result = append(*result, rows...)
		return nil
	}, zap.String("keyspace", keyspace), zap.String("lower_bound", lowerBound), zap.Int("record_count", recordCount))
}

// call issues a procedure call, retrying session errors with backoff.
// A response with a failed status is returned as a *procedure.StatusError.
func (db *DB) call(ctx context.Context, name string, args ...interface{}) (*procedure.Response, error) {
	var resp *procedure.Response
	err := db.retry(ctx, name, func() error {
		var err error
		resp, err = db.session.Call(ctx, name, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return resp, nil
}

func (db *DB) callAllPartitions(ctx context.Context, name string, args ...interface{}) ([]procedure.PartitionResponse, error) {
	var responses []procedure.PartitionResponse
	err := db.retry(ctx, name, func() error {
		var err error
		responses, err = db.session.CallAllPartitions(ctx, name, args...)
		return err
	})
	return responses, err
}

func (db *DB) retry(ctx context.Context, name string, fn func() error) error {
	var err error
	for attempt := 0; attempt < db.maxAttempts; attempt++ {
		if db.limiter != nil {
			if werr := db.limiter.Wait(ctx); werr != nil {
				return fmt.Errorf("%s: rate limit: %w", name, werr)
			}
		}

		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, procedure.ErrSessionClosed) {
			break
		}
		if attempt == db.maxAttempts-1 {
			break
		}

		delay := db.backoff.ForAttempt(float64(attempt))
		db.log.Debug("retrying procedure call",
			zap.String("procedure", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		db.metrics.retried(name)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", name, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (db *DB) observe(op string, fn func() error, fields ...zap.Field) Status {
	start := time.Now()
	err := fn()
	db.metrics.observe(op, err, time.Since(start))
	if err != nil {
		db.log.Warn("operation failed", append(fields, zap.String("op", op), zap.Error(err))...)
		return StatusError
	}
	return StatusOK
}
