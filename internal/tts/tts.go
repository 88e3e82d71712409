// Package tts renders narration text to WAV audio through pluggable speech backends.
package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"feed-narrator/config"
	"feed-narrator/internal/models"

	"github.com/sirupsen/logrus"
)

var (
	// ErrUnavailable means the backend cannot run on this host or is not configured.
	ErrUnavailable = errors.New("speech synthesis unavailable")

	// ErrSynthesisFailed means the backend ran but produced no audio.
	ErrSynthesisFailed = errors.New("speech synthesis failed")
)

// WordsPerMinute is the narration pace assumed by EstimateDuration.
const WordsPerMinute = 150

// Synthesizer is a speech backend.
type Synthesizer interface {
	// Provider names the backend.
	Provider() string

	// Available reports whether Render can be attempted.
	Available(ctx context.Context) bool

	// Render writes text as WAV audio to req.OutputPath.
	Render(ctx context.Context, text string, req models.AudioRenderRequest) error
}

// Factory creates the Synthesizer for cfg.Provider.
func Factory(cfg config.AudioConfig, log logrus.FieldLogger) (Synthesizer, error) {
	switch cfg.Provider {
	case "", "mlx":
		return NewMLX(cfg, nil, log), nil
	case "edge":
		return NewEdgeTTS(cfg.Edge, cfg.Timeout, log), nil
	case "aliyun":
		return NewAliyunTTS(cfg.Aliyun, cfg.SampleRate, cfg.Timeout, log), nil
	case "none":
		return None{}, nil
	default:
		return nil, fmt.Errorf("unsupported audio provider: %s", cfg.Provider)
	}
}

// EstimateDuration returns the spoken length in seconds of wordCount words.
func EstimateDuration(wordCount int) float64 {
	if wordCount <= 0 {
		return 0
	}
	return float64(wordCount) / (WordsPerMinute / 60.0)
}

// Render estimates the duration, then asks s to write the audio.
// The estimate is returned even when synthesis does not happen.
func Render(ctx context.Context, s Synthesizer, text string, wordCount int, req models.AudioRenderRequest) (models.AudioRenderResult, error) {
	result := models.AudioRenderResult{
		OutputPath:               req.OutputPath,
		EstimatedDurationSeconds: EstimateDuration(wordCount),
	}

	if !s.Available(ctx) {
		return result, fmt.Errorf("%w: %s", ErrUnavailable, s.Provider())
	}

	if err := s.Render(ctx, text, req); err != nil {
		if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrSynthesisFailed) {
			return result, err
		}
		return result, fmt.Errorf("%w: %s: %w", ErrSynthesisFailed, s.Provider(), err)
	}

	result.Produced = true
	return result, nil
}

// None never produces audio.
type None struct{}

func (None) Provider() string { return "none" }

func (None) Available(context.Context) bool { return false }

func (None) Render(context.Context, string, models.AudioRenderRequest) error {
	return ErrUnavailable
}

// ResolveVoice maps a configured voice to one the provider understands.
// "male" and "female" pick the provider's voice of that gender. Kokoro-style
// IDs such as "bf_emma" carry accent and gender in their first two letters,
// which is used to pick an equivalent voice on other providers.
func ResolveVoice(provider, voice string) string {
	voice = strings.TrimSpace(voice)
	accent, gender := "a", "f"

	switch strings.ToLower(voice) {
	case "male":
		gender = "m"
	case "female", "":
	default:
		if provider == "mlx" || !isKokoroVoice(voice) {
			return voice
		}
		accent, gender = voice[:1], voice[1:2]
	}

	switch provider {
	case "edge":
		return edgeVoices[accent+gender]
	case "aliyun":
		if gender == "m" {
			return "andy"
		}
		return "abby"
	default:
		if gender == "m" {
			return "bm_george"
		}
		return "bf_emma"
	}
}

var edgeVoices = map[string]string{
	"af": "en-US-AriaNeural",
	"am": "en-US-GuyNeural",
	"bf": "en-GB-SoniaNeural",
	"bm": "en-GB-RyanNeural",
}

func isKokoroVoice(voice string) bool {
	if len(voice) < 4 || voice[2] != '_' {
		return false
	}
	_, ok := edgeVoices[voice[:2]]
	return ok
}

// writeAudio creates the parent directory and writes data to path.
func writeAudio(path string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty audio", ErrSynthesisFailed)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}
