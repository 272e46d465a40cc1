package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssargent/rowbench/pkg/bench"
)

// benchCmd represents the bench command
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a YCSB-style workload",
	Long: `Load records and run a read/update/scan mix. Each worker owns its own
client session and row encoder.

Examples:
  rowbench bench --embedded --records=10000 --operations=100000
  rowbench bench --servers=db1:9200,db2:9200 --workers=16 --read-proportion=0.95 --update-proportion=0.05 --scan-proportion=0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := workloadFromFlags(cmd)
		if err != nil {
			return err
		}

		runner, err := bench.NewRunner(w, container.NewDB, container.Logger())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		printReport(cmd, report)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)

	d := bench.DefaultWorkload()
	flags := benchCmd.Flags()
	flags.String("keyspace", d.Keyspace, "Keyspace (table) to use")
	flags.Int("workers", d.Workers, "Number of concurrent clients")
	flags.Int("records", d.RecordCount, "Records to load")
	flags.Int("operations", d.OperationCount, "Operations to run after loading")
	flags.Int("field-count", d.FieldCount, "Fields per record")
	flags.Int("field-length", d.FieldLength, "Bytes per field value")
	flags.Float64("read-proportion", d.ReadProportion, "Share of reads")
	flags.Float64("update-proportion", d.UpdateProportion, "Share of updates")
	flags.Float64("scan-proportion", d.ScanProportion, "Share of scans")
	flags.Int("max-scan-length", d.MaxScanLength, "Maximum rows per scan")
	flags.Uint64("seed", 0, "Random seed (0 = time based)")
}

func workloadFromFlags(cmd *cobra.Command) (bench.Workload, error) {
	flags := cmd.Flags()
	var w bench.Workload
	w.Keyspace, _ = flags.GetString("keyspace")
	w.Workers, _ = flags.GetInt("workers")
	w.RecordCount, _ = flags.GetInt("records")
	w.OperationCount, _ = flags.GetInt("operations")
	w.FieldCount, _ = flags.GetInt("field-count")
	w.FieldLength, _ = flags.GetInt("field-length")
	w.ReadProportion, _ = flags.GetFloat64("read-proportion")
	w.UpdateProportion, _ = flags.GetFloat64("update-proportion")
	w.ScanProportion, _ = flags.GetFloat64("scan-proportion")
	w.MaxScanLength, _ = flags.GetInt("max-scan-length")
	w.Seed, _ = flags.GetUint64("seed")
	if w.Seed == 0 {
		w.Seed = uint64(time.Now().UnixNano())
	}
	return w, w.Validate()
}

func printReport(cmd *cobra.Command, r *bench.Report) {
	cmd.Printf("Run %s\n", r.RunID)
	cmd.Printf("  load: %d records in %s\n", r.Workload.RecordCount, r.Load.Round(time.Millisecond))
	cmd.Printf("  run:  %d operations in %s\n", r.Workload.OperationCount, r.Run.Round(time.Millisecond))
	if secs := r.Run.Seconds(); secs > 0 {
		cmd.Printf("  throughput: %.1f ops/sec\n", float64(r.Workload.OperationCount)/secs)
	}
	for _, name := range r.Operations() {
		s := r.Ops[name]
		cmd.Printf("  %-7s ok=%d errors=%d mean=%s\n", name, s.OK, s.Errors, s.Mean())
	}
}
