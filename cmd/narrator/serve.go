package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"feed-narrator/internal/api"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &pipelineFlags{}
	var (
		port     string
		schedule string
		baseURL  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve digests over HTTP and produce one on a schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("schedule") {
				cfg.Server.Schedule = schedule
			}
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

			server := api.NewServer(api.Options{
				Port:     cfg.Server.Port,
				SiteName: cfg.Feed.SiteName,
				BaseURL:  baseURL,
				Run:      a.run,
				Store:    a.store,
				Log:      log,
			})

			if cfg.Server.Schedule != "" {
				c := cron.New(cron.WithSeconds())
				_, err := c.AddFunc(cfg.Server.Schedule, func() {
					a.scheduledRun(ctx, server)
				})
				if err != nil {
					return err
				}
				c.Start()
				defer c.Stop()
				log.WithField("schedule", cfg.Server.Schedule).Info("scheduled runs enabled")
			}

			if err := server.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			log.Info("server stopped")
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&port, "port", "3001", "HTTP port")
	cmd.Flags().StringVar(&schedule, "schedule", "0 0 6 * * *", "cron schedule with seconds; empty disables scheduled runs")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "public base URL for podcast feed links")
	return cmd
}

// scheduledRun triggers a run and prunes old digests afterwards.
func (a *app) scheduledRun(ctx context.Context, server *api.Server) {
	a.log.Info("scheduled run triggered")

	report, err := server.TriggerRun(ctx)
	switch {
	case errors.Is(err, api.ErrRunInProgress):
		a.log.Warn("previous run still in progress, skipping")
		return
	case err != nil:
		a.log.WithError(err).Error("scheduled run failed")
	default:
		a.log.WithFields(logrus.Fields{
			"succeeded": report.Succeeded,
			"text":      report.TextPath,
		}).Info("scheduled run finished")
	}

	if days := a.cfg.Output.RetentionDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		if _, err := a.store.Prune(cutoff, false, a.log); err != nil {
			a.log.WithError(err).Warn("prune failed")
		}
	}
}
