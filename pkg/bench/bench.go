// Package bench drives a YCSB-style workload through binding DBs.
package bench

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ssargent/rowbench/pkg/binding"
	"github.com/ssargent/rowbench/pkg/codec"
)

// Operation names used in reports
const (
	OpInsert = "insert"
	OpRead   = "read"
	OpUpdate = "update"
	OpScan   = "scan"
)

// Workload describes what the workers do
type Workload struct {
	Keyspace         string
	Workers          int
	RecordCount      int
	OperationCount   int
	FieldCount       int
	FieldLength      int
	ReadProportion   float64
	UpdateProportion float64
	ScanProportion   float64
	MaxScanLength    int
	Seed             uint64
}

// DefaultWorkload mirrors YCSB workload A with a small scan share
func DefaultWorkload() Workload {
	return Workload{
		Keyspace:         "usertable",
		Workers:          4,
		RecordCount:      1000,
		OperationCount:   10000,
		FieldCount:       10,
		FieldLength:      100,
		ReadProportion:   0.5,
		UpdateProportion: 0.45,
		ScanProportion:   0.05,
		MaxScanLength:    100,
	}
}

// Validate checks the workload parameters
func (w Workload) Validate() error {
	if w.Keyspace == "" {
		return fmt.Errorf("keyspace is required")
	}
	if w.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", w.Workers)
	}
	if w.RecordCount <= 0 {
		return fmt.Errorf("record count must be positive, got %d", w.RecordCount)
	}
	if w.OperationCount < 0 {
		return fmt.Errorf("operation count must not be negative, got %d", w.OperationCount)
	}
	if w.FieldCount <= 0 || w.FieldLength < 0 {
		return fmt.Errorf("invalid field shape %dx%d", w.FieldCount, w.FieldLength)
	}
	if w.ReadProportion < 0 || w.UpdateProportion < 0 || w.ScanProportion < 0 {
		return fmt.Errorf("proportions must not be negative")
	}
	if w.ReadProportion+w.UpdateProportion+w.ScanProportion <= 0 {
		return fmt.Errorf("at least one operation proportion must be positive")
	}
	if w.ScanProportion > 0 && w.MaxScanLength <= 0 {
		return fmt.Errorf("max scan length must be positive when scans are enabled")
	}
	return nil
}

// OpStats counts outcomes of one operation type
type OpStats struct {
	OK     int
	Errors int
	Total  time.Duration
}

// Mean returns the mean latency
func (s OpStats) Mean() time.Duration {
	n := s.OK + s.Errors
	if n == 0 {
		return 0
	}
	return s.Total / time.Duration(n)
}

// Report is the result of a run
type Report struct {
	RunID    string
	Load     time.Duration
	Run      time.Duration
	Ops      map[string]OpStats
	Workload Workload
}

// Operations returns the operation names in the report, sorted
func (r *Report) Operations() []string {
	names := make([]string, 0, len(r.Ops))
	for name := range r.Ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Errors returns the total number of failed operations
func (r *Report) Errors() int {
	n := 0
	for _, s := range r.Ops {
		n += s.Errors
	}
	return n
}

// DBFactory returns a fresh DB. Each worker gets its own.
type DBFactory func() (*binding.DB, error)

// Runner executes a workload
type Runner struct {
	workload Workload
	newDB    DBFactory
	logger   *zap.Logger
}

// NewRunner creates a runner
func NewRunner(workload Workload, newDB DBFactory, logger *zap.Logger) (*Runner, error) {
	if err := workload.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{workload: workload, newDB: newDB, logger: logger}, nil
}

// Run loads RecordCount rows and then executes OperationCount mixed operations
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:    ksuid.New().String(),
		Ops:      make(map[string]OpStats),
		Workload: r.workload,
	}
	log := r.logger.With(zap.String("run_id", report.RunID))

	dbs := make([]*binding.DB, r.workload.Workers)
	defer func() {
		for _, db := range dbs {
			if db != nil {
				_ = db.Cleanup()
			}
		}
	}()
	for i := range dbs {
		db, err := r.newDB()
		if err != nil {
			return nil, fmt.Errorf("failed to open worker %d: %w", i, err)
		}
		dbs[i] = db
	}

	var mu sync.Mutex
	merge := func(local map[string]OpStats) {
		mu.Lock()
		defer mu.Unlock()
		for name, s := range local {
			agg := report.Ops[name]
			agg.OK += s.OK
			agg.Errors += s.Errors
			agg.Total += s.Total
			report.Ops[name] = agg
		}
	}

	log.Info("loading records", zap.Int("records", r.workload.RecordCount), zap.Int("workers", r.workload.Workers))
	start := time.Now()
	if err := r.parallel(ctx, dbs, r.workload.RecordCount, merge, r.load); err != nil {
		return nil, err
	}
	report.Load = time.Since(start)

	log.Info("running operations", zap.Int("operations", r.workload.OperationCount))
	start = time.Now()
	if err := r.parallel(ctx, dbs, r.workload.OperationCount, merge, r.operate); err != nil {
		return nil, err
	}
	report.Run = time.Since(start)

	log.Info("run complete",
		zap.Duration("load", report.Load),
		zap.Duration("run", report.Run),
		zap.Int("errors", report.Errors()))
	return report, nil
}

type stepFunc func(ctx context.Context, db *binding.DB, rng *rand.Rand, i int, stats map[string]OpStats)

// parallel splits [0, total) across workers in strides
func (r *Runner) parallel(ctx context.Context, dbs []*binding.DB, total int, merge func(map[string]OpStats), step stepFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	for w, db := range dbs {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(r.workload.Seed, uint64(w)))
			stats := make(map[string]OpStats)
			defer merge(stats)
			for i := w; i < total; i += len(dbs) {
				if err := gctx.Err(); err != nil {
					return err
				}
				step(gctx, db, rng, i, stats)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) load(ctx context.Context, db *binding.DB, rng *rand.Rand, i int, stats map[string]OpStats) {
	key := recordKey(i)
	record(stats, OpInsert, func() binding.Status {
		return db.Insert(ctx, r.workload.Keyspace, key, r.values(rng))
	})
}

func (r *Runner) operate(ctx context.Context, db *binding.DB, rng *rand.Rand, _ int, stats map[string]OpStats) {
	key := recordKey(rng.IntN(r.workload.RecordCount))
	ks := r.workload.Keyspace

	switch r.choose(rng) {
	case OpRead:
		record(stats, OpRead, func() binding.Status {
			return db.Read(ctx, ks, key, nil, make(codec.Row, r.workload.FieldCount))
		})
	case OpUpdate:
		// YCSB updates a single field
		field := fieldName(rng.IntN(r.workload.FieldCount))
		record(stats, OpUpdate, func() binding.Status {
			return db.Update(ctx, ks, key, codec.Fields{field: codec.NewString(randomString(rng, r.workload.FieldLength))})
		})
	case OpScan:
		n := 1 + rng.IntN(r.workload.MaxScanLength)
		record(stats, OpScan, func() binding.Status {
			var rows []codec.Row
			return db.Scan(ctx, ks, key, n, nil, &rows)
		})
	}
}

func (r *Runner) choose(rng *rand.Rand) string {
	w := r.workload
	x := rng.Float64() * (w.ReadProportion + w.UpdateProportion + w.ScanProportion)
	switch {
	case x < w.ReadProportion:
		return OpRead
	case x < w.ReadProportion+w.UpdateProportion:
		return OpUpdate
	default:
		return OpScan
	}
}

func (r *Runner) values(rng *rand.Rand) codec.Fields {
	fields := make(codec.Fields, r.workload.FieldCount)
	for f := range r.workload.FieldCount {
		fields[fieldName(f)] = codec.NewString(randomString(rng, r.workload.FieldLength))
	}
	return fields
}

func record(stats map[string]OpStats, op string, fn func() binding.Status) {
	start := time.Now()
	status := fn()
	s := stats[op]
	s.Total += time.Since(start)
	if status == binding.StatusOK {
		s.OK++
	} else {
		s.Errors++
	}
	stats[op] = s
}

func recordKey(i int) string {
	return fmt.Sprintf("user%010d", i)
}

func fieldName(i int) string {
	return fmt.Sprintf("field%d", i)
}

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rng.IntN(len(letters))]
	}
	return string(b)
}
