package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ssargent/rowbench/pkg/api"
	"github.com/ssargent/rowbench/pkg/procedure"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the procedure API over the embedded store",
	Long: `Open the partitioned store in data-dir and serve stored procedures over HTTP.

When the configuration has a user, its password is required in the X-API-Key
header. --api-key overrides it.

Examples:
  rowbench serve --data-dir=./data --port=9200
  rowbench serve --api-key=mysecretkey --partitions=16`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := container.Config()
		port := cfg.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		apiKey, _ := cmd.Flags().GetString("api-key")
		if apiKey == "" && cfg.User != "" {
			apiKey = cfg.Password
		}

		store, err := container.Store()
		if err != nil {
			return err
		}
		session := procedure.NewLocalSession(store)
		defer session.Close()

		log := container.Logger()
		if apiKey == "" {
			log.Warn("serving without API key authentication")
		}
		log.Info("store opened",
			zap.String("data_dir", cfg.DataDir),
			zap.Int("partitions", store.Partitions()))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return api.StartServer(ctx, session, api.ServerConfig{
			Port:   port,
			APIKey: apiKey,
		}, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 9200, "Port to listen on")
	serveCmd.Flags().String("api-key", "", "API key required from clients")
}
