package models

import (
	"strconv"
	"strings"
	"time"
)

// ArticleCandidate is an article reference discovered in the feed.
type ArticleCandidate struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// ArticleContent holds the fetched page and its cleaned body text.
type ArticleContent struct {
	Candidate ArticleCandidate `json:"candidate"`
	RawHTML   string           `json:"-"`
	BodyText  string           `json:"bodyText"`
}

// Stage is where a candidate's processing ended.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageSummarize Stage = "summarize"
	StageDone      Stage = "done"
)

// ExtractResult is the per-candidate outcome. Failures are recorded, never thrown.
type ExtractResult struct {
	Candidate   ArticleCandidate `json:"candidate"`
	SummaryText string           `json:"summaryText"`
	Succeeded   bool             `json:"succeeded"`
	Stage       Stage            `json:"stage"`
	Error       string           `json:"error,omitempty"`
}

// Failed builds an unsuccessful result for candidate.
func Failed(candidate ArticleCandidate, stage Stage, err error) ExtractResult {
	res := ExtractResult{
		Candidate: candidate,
		Stage:     stage,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// Succeeded builds a successful result for candidate.
func Succeeded(candidate ArticleCandidate, summary string) ExtractResult {
	return ExtractResult{
		Candidate:   candidate,
		SummaryText: summary,
		Succeeded:   true,
		Stage:       StageDone,
	}
}

// NarrationScript is the text that is both persisted and narrated.
type NarrationScript struct {
	SiteName     string          `json:"siteName"`
	Date         time.Time       `json:"date"`
	Intro        string          `json:"intro"`
	BodySections []ExtractResult `json:"bodySections"`
	Outro        string          `json:"outro"`
	FullText     string          `json:"fullText"`
	WordCount    int             `json:"wordCount"`
}

// TransitionPhrase separates consecutive extracts in the narration.
const TransitionPhrase = "Moving on."

// Render derives the full narration text from the script fields.
// It reads nothing but the receiver, so repeated calls yield identical text.
func (s NarrationScript) Render() string {
	parts := make([]string, 0, len(s.BodySections)+2)
	parts = append(parts, s.Intro)
	for i, section := range s.BodySections {
		text := SectionText(i+1, section)
		if i > 0 {
			text = TransitionPhrase + " " + text
		}
		parts = append(parts, text)
	}
	parts = append(parts, s.Outro)
	return strings.Join(parts, "\n\n")
}

// SectionText is the spoken form of one extract.
func SectionText(index int, res ExtractResult) string {
	title := strings.TrimRight(strings.TrimSpace(res.Candidate.Title), ".")
	return "Article " + strconv.Itoa(index) + ": " + title + ". " + strings.TrimSpace(res.SummaryText)
}

// CountWords splits on whitespace.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// AudioRenderRequest configures one synthesis call.
type AudioRenderRequest struct {
	Model      string  `json:"model"`
	Voice      string  `json:"voice"`
	Speed      float64 `json:"speed"`
	LangCode   string  `json:"langCode"`
	OutputPath string  `json:"outputPath"`
}

// AudioRenderResult carries the a-priori duration estimate and whether a file was produced.
type AudioRenderResult struct {
	OutputPath               string  `json:"outputPath"`
	EstimatedDurationSeconds float64 `json:"estimatedDurationSeconds"`
	Produced                 bool    `json:"produced"`
}

// AudioStatus is the outcome of the audio step.
type AudioStatus string

const (
	AudioProduced AudioStatus = "produced"
	AudioSkipped  AudioStatus = "skipped"
	AudioFailed   AudioStatus = "failed"
)

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunID                    string          `json:"runId"`
	SiteName                 string          `json:"siteName"`
	Date                     string          `json:"date"`
	State                    string          `json:"state"`
	Results                  []ExtractResult `json:"results"`
	Succeeded                int             `json:"succeeded"`
	Skipped                  int             `json:"skipped"`
	TextPath                 string          `json:"textPath,omitempty"`
	AudioPath                string          `json:"audioPath,omitempty"`
	AudioStatus              AudioStatus     `json:"audioStatus,omitempty"`
	WordCount                int             `json:"wordCount"`
	CharCount                int             `json:"charCount"`
	EstimatedDurationSeconds float64         `json:"estimatedDurationSeconds"`
	StartedAt                time.Time       `json:"startedAt"`
	FinishedAt               time.Time       `json:"finishedAt"`
	Error                    string          `json:"error,omitempty"`
}
