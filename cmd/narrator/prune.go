package main

import (
	"fmt"
	"time"

	"feed-narrator/internal/storage"

	"github.com/spf13/cobra"
)

func newPruneCmd(g *globalFlags) *cobra.Command {
	var (
		days      int
		outputDir string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete digests older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("days") {
				cfg.Output.RetentionDays = days
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.Output.Dir = outputDir
			}
			if cfg.Output.RetentionDays <= 0 {
				return fmt.Errorf("retention must be at least one day, got %d", cfg.Output.RetentionDays)
			}
			log := newLogger(cmd, cfg)

			cutoff := time.Now().AddDate(0, 0, -cfg.Output.RetentionDays)
			removed, err := storage.NewLocalStore(cfg.Output.Dir).Prune(cutoff, dryRun, log)
			if err != nil {
				return err
			}

			verb := "deleted"
			if dryRun {
				verb = "would delete"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d file(s) older than %s\n", verb, len(removed), cutoff.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "keep digests from the last N days")
	cmd.Flags().StringVar(&outputDir, "output-dir", "./outputs", "output directory")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list files without deleting them")
	return cmd
}
