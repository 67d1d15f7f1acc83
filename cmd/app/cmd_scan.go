package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"SetupScan/internal/di"
)

func scanOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan-once",
		Short: "Run a single scan tick against live data and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			app, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			rep, err := app.ScanOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "keys=%d advanced=%d skipped=%d failed=%d events=%d duration=%s\n",
				rep.Keys, rep.Advanced, rep.Skipped, rep.Failed, rep.Events, rep.Duration)
			return err
		},
	}
}
