package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"SetupScan/internal/repository"
	"SetupScan/internal/services/rules"
)

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Model definition tools",
	}
	var path string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check every model in the model file without touching any infrastructure",
		Example: `  setupscan models validate
  setupscan models validate --file config/models.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				cfg, err := loadConfig()
				if err != nil {
					return fmt.Errorf("config load failed: %w", err)
				}
				path = cfg.Models.Path
			}
			return validateModels(cmd.OutOrStdout(), path)
		},
	}
	validate.Flags().StringVar(&path, "file", "", "model file (defaults to models.path from the config)")
	cmd.AddCommand(validate)
	return cmd
}

func validateModels(w io.Writer, path string) error {
	reg := rules.NewRegistry()
	verdicts, err := repository.ReadModelFile(path, reg.ValidateModel)
	if err != nil {
		return err
	}
	rejected := 0
	for _, v := range verdicts {
		if v.Err != nil {
			rejected++
			fmt.Fprintf(w, "REJECT %s: %v\n", v.Model.ID, v.Err)
			continue
		}
		fmt.Fprintf(w, "OK     %s (%d rules)\n", v.Model.ID, len(v.Model.Rules))
		for _, warn := range v.Report.Warnings {
			fmt.Fprintf(w, "       review: %s\n", warn)
		}
	}
	if rejected > 0 {
		return fmt.Errorf("%d of %d models rejected", rejected, len(verdicts))
	}
	return nil
}
