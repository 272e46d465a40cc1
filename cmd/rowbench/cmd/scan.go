package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ssargent/rowbench/pkg/binding"
	"github.com/ssargent/rowbench/pkg/codec"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <keyspace> <start-key> <count> [field...]",
	Short: "Scan rows from a start key across all partitions",
	Long: `Scan up to count rows with keys at or after start-key. Every partition
is queried and the results are merged in key order.

Example:
  rowbench scan usertable user1 10 name`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := strconv.Atoi(args[2])
		if err != nil || count < 0 {
			return fmt.Errorf("invalid count %q", args[2])
		}

		db, err := container.NewDB()
		if err != nil {
			return err
		}
		defer db.Cleanup()

		var rows []codec.Row
		if status := db.Scan(cmd.Context(), args[0], args[1], count, selection(args[3:]), &rows); status != binding.StatusOK {
			return fmt.Errorf("scan %s from %q failed", args[0], args[1])
		}
		for i, row := range rows {
			printRow(cmd, fmt.Sprintf("#%d", i+1), row)
		}
		cmd.Printf("%d rows\n", len(rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func printRow(cmd *cobra.Command, label string, row codec.Row) {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	cmd.Printf("%s\n", label)
	for _, name := range names {
		cmd.Printf("  %s = %s\n", name, row[name].String())
	}
}
