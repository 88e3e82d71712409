package tts

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"feed-narrator/config"
	"feed-narrator/internal/models"

	"github.com/sirupsen/logrus"
)

// DefaultEdgeEndpoint is the Edge read-aloud synthesis endpoint.
const DefaultEdgeEndpoint = "https://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"

// EdgeTTS uses the Microsoft Edge read-aloud service.
type EdgeTTS struct {
	endpoint     string
	outputFormat string
	client       *http.Client
	log          logrus.FieldLogger
}

// NewEdgeTTS creates an EdgeTTS service.
func NewEdgeTTS(cfg config.EdgeTTSConfig, timeout time.Duration, log logrus.FieldLogger) *EdgeTTS {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEdgeEndpoint
	}
	format := cfg.OutputFormat
	if format == "" {
		format = "riff-24khz-16bit-mono-pcm"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &EdgeTTS{
		endpoint:     endpoint,
		outputFormat: format,
		client:       &http.Client{Timeout: timeout},
		log:          log,
	}
}

func (e *EdgeTTS) Provider() string { return "edge" }

// Available is always true; failures surface from Render.
func (e *EdgeTTS) Available(context.Context) bool { return true }

// Render posts SSML and writes the returned RIFF audio to req.OutputPath.
func (e *EdgeTTS) Render(ctx context.Context, text string, req models.AudioRenderRequest) error {
	voiceID := ResolveVoice("edge", req.Voice)
	e.log.WithFields(logrus.Fields{
		"voice": voiceID,
		"file":  req.OutputPath,
	}).Info("generating audio with Edge TTS")

	ssml := buildSSML(text, voiceID, req.Speed)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(ssml))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", e.outputFormat)
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/93.0.4577.63 Safari/537.36 Edg/93.0.961.47")
	httpReq.Header.Set("Origin", "https://speech.platform.bing.com")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("edge tts returned status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}

	e.log.WithField("bytes", len(audio)).Debug("edge tts audio received")
	return writeAudio(req.OutputPath, audio)
}

func buildSSML(text, voiceID string, speed float64) string {
	lang := "en-US"
	if parts := strings.SplitN(voiceID, "-", 3); len(parts) == 3 {
		lang = parts[0] + "-" + parts[1]
	}
	return fmt.Sprintf(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s">
	<voice name="%s">
		<prosody rate="%s" pitch="0%%">%s</prosody>
	</voice>
</speak>`, lang, voiceID, prosodyRate(speed), escapeXML(text))
}

// prosodyRate turns a speed multiplier into a relative SSML rate, 0.8 -> "-20%".
func prosodyRate(speed float64) string {
	if speed <= 0 {
		speed = 1
	}
	pct := int(math.Round((speed - 1) * 100))
	if pct >= 0 {
		return fmt.Sprintf("+%d%%", pct)
	}
	return fmt.Sprintf("%d%%", pct)
}

// escapeXML escapes XML special characters.
func escapeXML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	text = strings.ReplaceAll(text, "\"", "&quot;")
	text = strings.ReplaceAll(text, "'", "&apos;")
	return text
}
