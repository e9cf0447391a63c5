// Command metadatad runs the host-local metadata correlation agent.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/etsangsplk/metadata-agent/internal/agent"
	"github.com/etsangsplk/metadata-agent/internal/config"
	"github.com/etsangsplk/metadata-agent/internal/logging"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "metadatad",
		Short: "Host-local metadata correlation agent",
		Long: "metadatad maps short-lived resource identifiers (container ids, pod\n" +
			"UIDs, instance names) to monitored-resource descriptors and serves\n" +
			"lookups to colocated logging and monitoring agents over local HTTP.",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			verbose, _ := cmd.Flags().GetBool("verbose")

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if verbose {
				cfg.SetVerbose(true)
				cfg.LogLevel = "debug"
			}

			logger := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := agent.New(cfg, configPath, logger)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
	serveCmd.Flags().String("config", "", "path to the agent config file (JSON)")
	serveCmd.Flags().Bool("verbose", false, "enable verbose request and dispatch logging")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
