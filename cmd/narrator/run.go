package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &pipelineFlags{}
	var noAudio bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Produce one digest from the feed",
		Long:  "Fetch the feed, extract and summarize each article, write the narration text and render it to audio when the speech backend is available.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := validate(cfg); err != nil {
				return err
			}
			log := newLogger(cmd, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			a.skipAudio = noAudio

			log.WithField("site", cfg.Feed.SiteName).Info("starting extract generation")
			a.preflight(ctx)

			report, err := a.run(ctx, nil)
			if err != nil {
				return fmt.Errorf("run %s: %w", cfg.Feed.SiteName, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), summary(report))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&noAudio, "no-audio", false, "write the narration text only")
	return cmd
}
