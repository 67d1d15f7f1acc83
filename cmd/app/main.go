package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"SetupScan/internal/di"
	"SetupScan/pkg/config"
)

var (
	configPath string
	withEnv    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "setupscan",
		Short:         "Market structure scanner with four-phase setup confirmation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	root.PersistentFlags().BoolVar(&withEnv, "env", true, "apply environment overrides to the config file")

	root.AddCommand(serveCmd())
	root.AddCommand(scanOnceCmd())
	root.AddCommand(modelsCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	if withEnv {
		return config.LoadWithEnv(configPath)
	}
	return config.Load(configPath)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scanner, the HTTP API and the live alert feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			app, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			return app.RunContext(cmd.Context())
		},
	}
}
