package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/rowbench/pkg/binding"
	"github.com/ssargent/rowbench/pkg/codec"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <keyspace> <key> [field...]",
	Short: "Read a row",
	Long: `Read a row, optionally restricted to the named fields.

Examples:
  rowbench get usertable user1
  rowbench get usertable user1 age`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := container.NewDB()
		if err != nil {
			return err
		}
		defer db.Cleanup()

		row := make(codec.Row)
		if status := db.Read(cmd.Context(), args[0], args[1], selection(args[2:]), row); status != binding.StatusOK {
			return fmt.Errorf("get %s/%s failed", args[0], args[1])
		}
		if len(row) == 0 {
			cmd.Printf("Row '%s' not found\n", args[1])
			return nil
		}
		printRow(cmd, args[1], row)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}

// selection maps an empty field list to all fields
func selection(fields []string) codec.Selection {
	if len(fields) == 0 {
		return nil
	}
	return codec.Select(fields...)
}
