package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/rowbench/pkg/binding"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <keyspace> <key>",
	Short: "Delete a row",
	Long: `Delete a row. Deleting a missing row succeeds.

Example:
  rowbench delete usertable user1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := container.NewDB()
		if err != nil {
			return err
		}
		defer db.Cleanup()

		if status := db.Delete(cmd.Context(), args[0], args[1]); status != binding.StatusOK {
			return fmt.Errorf("delete %s/%s failed", args[0], args[1])
		}
		cmd.Printf("Successfully deleted row '%s'\n", args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
