package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssargent/rowbench/pkg/binding"
	"github.com/ssargent/rowbench/pkg/codec"
)

// putCmd represents the put command
var putCmd = &cobra.Command{
	Use:   "put <keyspace> <key> <field=value>...",
	Short: "Insert or replace a row",
	Long: `Insert or replace a row. The row is encoded as a single blob, so
fields not given here are dropped from the stored row.

Example:
  rowbench put usertable user1 name=ann age=30`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := parseAssignments(args[2:])
		if err != nil {
			return err
		}

		db, err := container.NewDB()
		if err != nil {
			return err
		}
		defer db.Cleanup()

		if status := db.Insert(cmd.Context(), args[0], args[1], codec.FromStrings(values)); status != binding.StatusOK {
			return fmt.Errorf("put %s/%s failed", args[0], args[1])
		}
		cmd.Printf("Successfully put row '%s' with %d fields\n", args[1], len(values))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
}

func parseAssignments(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q, expected name=value", arg)
		}
		values[name] = value
	}
	return values, nil
}
