package main

import (
	"fmt"
	"os"

	"retail-svc/app"
	"retail-svc/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "shopctl",
		Short:   "Operator tools for the retail service",
		Version: Version,
	}

	rootCmd.AddCommand(webhooksCmd())
	rootCmd.AddCommand(idempotencyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect builds the same services the server runs, logging to stderr so
// command output stays clean.
func connect() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stderr"}
	logger, err := logCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return app.New(cfg, logger)
}
