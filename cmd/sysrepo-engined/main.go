// Command sysrepo-engined is the configuration datastore engine daemon
// (§6 Daemon CLI): it binds the AF_UNIX control socket, preloads the
// built-in schema modules, and serves requests until SIGTERM/SIGINT. It
// forks no further process; daemonising/detaching is left to an external
// wrapper (spec.md §1), and internal/daemon.Run does the actual wiring so
// cmd/sysrepo-enginedctl's "run" subcommand can share it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/sysrepo-engine/internal/config"
	"github.com/cuemby/sysrepo-engine/internal/daemon"
	"github.com/cuemby/sysrepo-engine/internal/telemetry"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sysrepo-engined: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sysrepo-engined",
		Short:   "Configuration and operational datastore engine daemon",
		Version: Version,
		RunE:    run,
	}

	flags := cmd.Flags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("socket_path", "", "AF_UNIX control socket path")
	flags.String("schema_dir", "", "directory containing installed YANG modules")
	flags.String("data_dir", "", "directory holding per-module datastore and persist files")
	flags.String("pid_file", "", "pidfile path, held under an exclusive lock for the daemon's lifetime")
	flags.Uint32("max_msg_size", 0, "maximum accepted/emitted wire frame size in bytes")
	flags.Int("max_conns", 0, "maximum concurrent client connections")
	flags.String("metrics_addr", "", "loopback address to serve Prometheus /metrics on")
	flags.String("log_level", "", "log level (debug, info, warn, error)")
	flags.Bool("log_json", false, "emit structured JSON logs instead of console-formatted ones")

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	telemetry.Init(telemetry.Config{
		Level:      telemetry.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	return daemon.Run(context.Background(), cfg)
}
