package main

import (
	"context"
	"fmt"
	"time"

	"feed-narrator/config"
	"feed-narrator/internal/ai"
	"feed-narrator/internal/crawler"
	"feed-narrator/internal/models"
	"feed-narrator/internal/pipeline"
	"feed-narrator/internal/storage"
	"feed-narrator/internal/tts"

	"github.com/sirupsen/logrus"
)

// app wires the configured components.
type app struct {
	cfg   *config.Config
	log   logrus.FieldLogger
	llm   *ai.Client
	deps  pipeline.Deps
	store *storage.LocalStore

	skipAudio bool
}

func newApp(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*app, error) {
	llm, err := ai.NewClient(ctx, cfg.LLM, log)
	if err != nil {
		return nil, err
	}
	synth, err := tts.Factory(cfg.Audio, log)
	if err != nil {
		return nil, err
	}
	store := storage.NewLocalStore(cfg.Output.Dir)

	return &app{
		cfg:   cfg,
		log:   log,
		llm:   llm,
		store: store,
		deps: pipeline.Deps{
			Feed: crawler.NewFeedReader(cfg.Fetch.FeedTimeout, cfg.Fetch.UserAgent, log),
			Extractor: crawler.NewArticleExtractor(crawler.ExtractorOptions{
				Timeout:         cfg.Fetch.PageTimeout,
				UserAgent:       cfg.Fetch.UserAgent,
				MinContentChars: cfg.Fetch.MinContentChars,
			}, log),
			Summarizer:  llm,
			Synthesizer: synth,
			Store:       store,
			Log:         log,
		},
	}, nil
}

func (a *app) options(onState func(pipeline.State)) pipeline.Options {
	return pipeline.Options{
		FeedURL:         a.cfg.Feed.URL,
		SiteName:        a.cfg.Feed.SiteName,
		ContentSelector: a.cfg.Feed.ContentSelector,
		MaxArticles:     a.cfg.Feed.MaxArticles,
		ArticleDelay:    a.cfg.Feed.ArticleDelay,
		Audio: models.AudioRenderRequest{
			Model:    a.cfg.Audio.Model,
			Voice:    a.cfg.Audio.Voice,
			Speed:    a.cfg.Audio.Speed,
			LangCode: a.cfg.Audio.LangCode,
		},
		SkipAudio: a.skipAudio,
		OnState:   onState,
	}
}

// run performs one pipeline run.
func (a *app) run(ctx context.Context, onState func(pipeline.State)) (*models.RunReport, error) {
	return pipeline.New(a.deps, a.options(onState)).Run(ctx)
}

// preflight warns when the summarizer looks unreachable. The run still proceeds.
func (a *app) preflight(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.llm.Ping(ctx); err != nil {
		a.log.WithError(err).Warn("summarizer not reachable, extracts will likely fail")
		return
	}
	a.log.WithField("provider", a.llm.Provider()).Info("summarizer reachable")
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func describeAudio(report *models.RunReport) string {
	switch report.AudioStatus {
	case models.AudioProduced:
		return report.AudioPath
	case models.AudioFailed:
		return "failed"
	default:
		return "skipped"
	}
}

func summary(report *models.RunReport) string {
	return fmt.Sprintf(
		"Articles: %d succeeded, %d skipped\nText: %s\nAudio: %s\nWords: %d, characters: %d, estimated duration: %.1f minutes\n",
		report.Succeeded, report.Skipped,
		report.TextPath,
		describeAudio(report),
		report.WordCount, report.CharCount, report.EstimatedDurationSeconds/60,
	)
}
