// Package pipeline runs one feed-to-digest pass: fetch the feed, extract and
// summarize each entry, compose the narration, write the text and render audio.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"feed-narrator/internal/crawler"
	"feed-narrator/internal/models"
	"feed-narrator/internal/narration"
	"feed-narrator/internal/storage"
	"feed-narrator/internal/tts"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrFeedUnavailable is returned when the feed cannot be read.
	ErrFeedUnavailable = crawler.ErrFeedUnavailable

	// ErrNoContentProduced is returned when no candidate produced an extract.
	ErrNoContentProduced = errors.New("no content produced")
)

// State is a step of a run.
type State string

const (
	StateStart           State = "START"
	StateFeedFetched     State = "FEED_FETCHED"
	StateFetchingContent State = "FETCHING_CONTENT"
	StateSummarizing     State = "SUMMARIZING"
	StateDone            State = "DONE"
	StateSkipped         State = "SKIPPED"
	StateComposing       State = "COMPOSING"
	StateTextWritten     State = "TEXT_WRITTEN"
	StateSynthesizing    State = "SYNTHESIZING"
	StateAudioWritten    State = "AUDIO_WRITTEN"
	StateAudioSkipped    State = "AUDIO_SKIPPED"
	StateFinished        State = "FINISHED"
	StateFailed          State = "FAILED"
)

// FeedSource lists the candidates of a feed.
type FeedSource interface {
	Read(ctx context.Context, feedURL string, maxArticles int) ([]models.ArticleCandidate, error)
}

// Extractor fetches a candidate's page and returns its body text.
type Extractor interface {
	Extract(ctx context.Context, candidate models.ArticleCandidate, selector string) (*models.ArticleContent, error)
}

// Summarizer turns body text into an extract. Failures are reported in the result.
type Summarizer interface {
	Summarize(ctx context.Context, content *models.ArticleContent) models.ExtractResult
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Feed        FeedSource
	Extractor   Extractor
	Summarizer  Summarizer
	Synthesizer tts.Synthesizer
	Store       *storage.LocalStore
	Log         logrus.FieldLogger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Options configure a single run.
type Options struct {
	FeedURL         string
	SiteName        string
	ContentSelector string
	MaxArticles     int
	ArticleDelay    time.Duration

	// Audio carries model, voice, speed and language; OutputPath is filled per run.
	Audio     models.AudioRenderRequest
	SkipAudio bool

	// OnState is called on every state transition.
	OnState func(State)
}

// Pipeline executes runs with fixed dependencies and options.
type Pipeline struct {
	deps Deps
	opts Options
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Synthesizer == nil {
		deps.Synthesizer = tts.None{}
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Run performs one pass and returns its report. The report is returned
// on failure too, with State set to FAILED and Error populated.
func (p *Pipeline) Run(ctx context.Context) (*models.RunReport, error) {
	started := p.deps.Now()
	report := &models.RunReport{
		RunID:     uuid.NewString(),
		SiteName:  p.opts.SiteName,
		Date:      started.Format(narration.DateLayout),
		StartedAt: started,
	}
	log := p.deps.Log.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"site":   p.opts.SiteName,
	})

	r := &run{Pipeline: p, report: report, log: log}
	err := r.execute(ctx, started)
	report.FinishedAt = p.deps.Now()
	if err != nil {
		report.Error = err.Error()
		r.transition(StateFailed)
		log.WithError(err).Error("run failed")
		return report, err
	}
	r.transition(StateFinished)
	r.logSummary()
	return report, nil
}

type run struct {
	*Pipeline
	report *models.RunReport
	log    logrus.FieldLogger
}

func (r *run) transition(state State) {
	r.report.State = string(state)
	r.log.WithField("state", state).Debug("state changed")
	if r.opts.OnState != nil {
		r.opts.OnState(state)
	}
}

func (r *run) execute(ctx context.Context, date time.Time) error {
	r.transition(StateStart)

	candidates, err := r.deps.Feed.Read(ctx, r.opts.FeedURL, r.opts.MaxArticles)
	if err != nil {
		if !errors.Is(err, ErrFeedUnavailable) {
			err = fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
		}
		return err
	}
	r.transition(StateFeedFetched)
	r.log.WithField("count", len(candidates)).Info("found articles")

	results := make([]models.ExtractResult, 0, len(candidates))
	for i, candidate := range candidates {
		if i > 0 && r.opts.ArticleDelay > 0 {
			if err := sleep(ctx, r.opts.ArticleDelay); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		r.log.WithFields(logrus.Fields{
			"index":   i + 1,
			"total":   len(candidates),
			"article": candidate.Title,
		}).Info("processing article")

		res := r.process(ctx, candidate)
		results = append(results, res)
		if res.Succeeded {
			r.report.Succeeded++
			r.transition(StateDone)
		} else {
			r.report.Skipped++
			r.transition(StateSkipped)
			r.log.WithFields(logrus.Fields{
				"article": candidate.Title,
				"url":     candidate.Link,
				"stage":   res.Stage,
				"reason":  res.Error,
			}).Warn("skipping article")
		}
	}
	r.report.Results = results

	r.transition(StateComposing)
	if r.report.Succeeded == 0 {
		return ErrNoContentProduced
	}

	script := narration.Compose(r.opts.SiteName, date, results)
	r.report.WordCount = script.WordCount
	r.report.CharCount = len(script.FullText)
	r.report.EstimatedDurationSeconds = tts.EstimateDuration(script.WordCount)

	prefix := storage.DigestPrefix(r.opts.SiteName, date)
	textPath, err := r.deps.Store.WriteFile(prefix+storage.TextExt, []byte(script.FullText))
	if err != nil {
		return fmt.Errorf("write narration text: %w", err)
	}
	r.report.TextPath = textPath
	r.transition(StateTextWritten)
	r.log.WithField("file", textPath).Info("narration text saved")

	// Audio from an earlier run of the same day no longer matches the text.
	if err := r.deps.Store.DeleteFile(prefix + storage.AudioExt); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove previous audio: %w", err)
	}

	if r.opts.SkipAudio {
		r.report.AudioStatus = models.AudioSkipped
		r.transition(StateAudioSkipped)
		return nil
	}
	return r.synthesize(ctx, script, prefix)
}

// process runs one candidate through extraction and summarization.
func (r *run) process(ctx context.Context, candidate models.ArticleCandidate) models.ExtractResult {
	r.transition(StateFetchingContent)
	content, err := r.deps.Extractor.Extract(ctx, candidate, r.opts.ContentSelector)
	if err != nil {
		stage := models.StageExtract
		if errors.Is(err, crawler.ErrFetchFailed) {
			stage = models.StageFetch
		}
		return models.Failed(candidate, stage, err)
	}

	r.transition(StateSummarizing)
	res := r.deps.Summarizer.Summarize(ctx, content)
	res.Candidate = candidate
	return res
}

func (r *run) synthesize(ctx context.Context, script models.NarrationScript, prefix string) error {
	audioPath, err := r.deps.Store.Path(prefix + storage.AudioExt)
	if err != nil {
		return err
	}
	req := r.opts.Audio
	req.OutputPath = audioPath

	r.transition(StateSynthesizing)
	result, err := tts.Render(ctx, r.deps.Synthesizer, script.FullText, script.WordCount, req)
	r.report.EstimatedDurationSeconds = result.EstimatedDurationSeconds

	switch {
	case err == nil:
		r.report.AudioPath = result.OutputPath
		r.report.AudioStatus = models.AudioProduced
		r.transition(StateAudioWritten)
		r.log.WithField("file", result.OutputPath).Info("audio saved")
	case errors.Is(err, tts.ErrUnavailable):
		r.report.AudioStatus = models.AudioSkipped
		r.transition(StateAudioSkipped)
		r.log.WithField("provider", r.deps.Synthesizer.Provider()).Info("audio synthesis unavailable, text only")
	default:
		r.report.AudioStatus = models.AudioFailed
		r.transition(StateAudioSkipped)
		r.log.WithError(err).Warn("audio synthesis failed, text only")
	}
	return nil
}

func (r *run) logSummary() {
	rep := r.report
	r.log.WithFields(logrus.Fields{
		"succeeded":         rep.Succeeded,
		"skipped":           rep.Skipped,
		"text":              rep.TextPath,
		"audio":             rep.AudioPath,
		"audio_status":      rep.AudioStatus,
		"words":             rep.WordCount,
		"estimated_minutes": fmt.Sprintf("%.1f", rep.EstimatedDurationSeconds/60),
	}).Info("run finished")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
