package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "fdbtracer",
		Short: "Parse Firebird trace output into a DuckDB dump database",
		Long: `fdbtracer reads Firebird trace and audit output, reconstructs each event
and stores it as one row of trace_data_parsed in a DuckDB database.

Input is a finished trace file (--file), fbtracemgr output piped into stdin,
or remote output sent to the TCP listener (tcp-enabled).`,
		Version:       fmt.Sprintf("%s (commit %s, built %s, %s)", version, commit, buildTime, goVersion),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg.TraceFile, _ = cmd.Flags().GetString("file")
			return runTracer(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/fdbtracer/config.yml)")
	flags.StringP("file", "f", "", "parse the given trace or audit log file and exit")
	flags.StringP("database", "d", "", "DuckDB file for parsed data (overrides db-path)")
	flags.Bool("monitor", false, "show the interactive monitor; q stops tracing")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
