package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ssargent/rowbench/pkg/config"
	"github.com/ssargent/rowbench/pkg/di"
	"github.com/ssargent/rowbench/pkg/logger"
)

// container is built in PersistentPreRunE and released when the command finishes
var container *di.Container

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rowbench",
	Short: "rowbench - partitioned row store benchmark client",
	Long: `rowbench stores YCSB-style rows as length-prefixed blobs in a
partitioned store and drives them through a stored-procedure interface,
either embedded or against a running rowbench server.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnFinalize(teardown)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Config file (default "+config.GetDefaultConfigPath()+")")
	flags.String("servers", "", "Comma separated list of servers (host[:port])")
	flags.StringP("data-dir", "d", "", "Data directory for the embedded store")
	flags.Bool("embedded", false, "Run against an embedded store instead of a server")
	flags.Int("partitions", 0, "Number of partitions in the embedded store")
	flags.Float64("rate-limit", 0, "Operations per second per client (0 = unlimited)")
	flags.String("scan-policy", "", "Scan success policy: all, any or quorum:N")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := loadEffectiveConfig(cmd)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level:    cfg.Logging.Level,
		Encoding: cfg.Logging.Encoding,
	}); err != nil {
		return err
	}
	container = di.NewContainer(cfg, logger.Get())
	return nil
}

func teardown() {
	defer logger.Sync()
	if container == nil {
		return
	}
	if err := container.Close(); err != nil {
		logger.Get().Warn("failed to close store", zap.Error(err))
	}
	container = nil
}

// loadEffectiveConfig reads the config file when present and applies flags on top
func loadEffectiveConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	explicit := path != ""
	if !explicit {
		path = config.GetDefaultConfigPath()
	}

	cfg := config.DefaultConfig()
	if explicit || config.ConfigExists(path) {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.Changed("servers") {
		cfg.Servers, _ = flags.GetString("servers")
	}
	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("embedded") {
		cfg.Embedded, _ = flags.GetBool("embedded")
	}
	if flags.Changed("partitions") {
		cfg.Partitions, _ = flags.GetInt("partitions")
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit, _ = flags.GetFloat64("rate-limit")
	}
	if flags.Changed("scan-policy") {
		cfg.Scan.Policy, _ = flags.GetString("scan-policy")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
