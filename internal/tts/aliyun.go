package tts

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"feed-narrator/config"
	"feed-narrator/internal/models"

	"github.com/sirupsen/logrus"
)

// AliyunTTS uses the Aliyun NLS speech synthesis gateway.
type AliyunTTS struct {
	config     config.AliyunTTSConfig
	sampleRate int
	baseURL    string
	client     *http.Client
	now        func() time.Time
	log        logrus.FieldLogger
}

// NewAliyunTTS creates an AliyunTTS service.
func NewAliyunTTS(cfg config.AliyunTTSConfig, sampleRate int, timeout time.Duration, log logrus.FieldLogger) *AliyunTTS {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &AliyunTTS{
		config:     cfg,
		sampleRate: sampleRate,
		baseURL:    fmt.Sprintf("https://nls-gateway-%s.aliyuncs.com/", cfg.Region),
		client:     &http.Client{Timeout: timeout},
		now:        time.Now,
		log:        log,
	}
}

func (a *AliyunTTS) Provider() string { return "aliyun" }

// Available reports whether credentials are configured.
func (a *AliyunTTS) Available(context.Context) bool {
	return a.config.AccessKeyID != "" && a.config.AccessKeySecret != ""
}

// Render requests WAV synthesis, downloads the result and writes it to req.OutputPath.
func (a *AliyunTTS) Render(ctx context.Context, text string, req models.AudioRenderRequest) error {
	voiceID := ResolveVoice("aliyun", req.Voice)
	a.log.WithFields(logrus.Fields{
		"voice": voiceID,
		"file":  req.OutputPath,
	}).Info("generating audio with Aliyun TTS")

	now := a.now().UTC()
	params := map[string]string{
		"Action":           "SpeechSynthesis",
		"Format":           "wav",
		"SampleRate":       strconv.Itoa(a.sampleRate),
		"Voice":            voiceID,
		"Volume":           "50",
		"SpeechRate":       strconv.Itoa(speechRate(req.Speed)),
		"PitchRate":        "0",
		"Text":             text,
		"Version":          "2019-08-10",
		"RegionId":         a.config.Region,
		"Timestamp":        now.Format("2006-01-02T15:04:05Z"),
		"SignatureMethod":  "HMAC-SHA1",
		"SignatureVersion": "1.0",
		"SignatureNonce":   strconv.FormatInt(now.UnixNano(), 10),
		"AccessKeyId":      a.config.AccessKeyID,
	}
	params["Signature"] = computeSignature(params, a.config.AccessKeySecret)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := httpReq.URL.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	httpReq.URL.RawQuery = q.Encode()

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("aliyun tts returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		RequestId string `json:"RequestId"`
		Code      string `json:"Code"`
		Message   string `json:"Message"`
		Data      struct {
			AudioAddress string `json:"AudioAddress"`
		} `json:"Data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if result.Code != "Success" {
		return fmt.Errorf("aliyun tts: %s", result.Message)
	}

	audio, err := a.download(ctx, result.Data.AudioAddress)
	if err != nil {
		return err
	}

	a.log.WithField("bytes", len(audio)).Debug("aliyun audio downloaded")
	return writeAudio(req.OutputPath, audio)
}

func (a *AliyunTTS) download(ctx context.Context, address string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download audio: status %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}

// speechRate converts a speed multiplier to the gateway's -500..500 scale.
func speechRate(speed float64) int {
	if speed <= 0 || speed == 1 {
		return 0
	}
	var rate float64
	if speed > 1 {
		rate = (1 - 1/speed) / 0.002
	} else {
		rate = (1 - 1/speed) / 0.001
	}
	if rate > 500 {
		rate = 500
	}
	if rate < -500 {
		rate = -500
	}
	return int(rate)
}

// computeSignature signs params with the RPC HMAC-SHA1 scheme.
func computeSignature(params map[string]string, secretKey string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var canonical strings.Builder
	for _, k := range keys {
		canonical.WriteString("&")
		canonical.WriteString(percentEncode(k))
		canonical.WriteString("=")
		canonical.WriteString(percentEncode(params[k]))
	}

	stringToSign := "GET&" + percentEncode("/") + "&" + percentEncode(canonical.String()[1:])

	mac := hmac.New(sha1.New, []byte(secretKey+"&"))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func percentEncode(s string) string {
	s = url.QueryEscape(s)
	s = strings.ReplaceAll(s, "+", "%20")
	s = strings.ReplaceAll(s, "*", "%2A")
	return strings.ReplaceAll(s, "%7E", "~")
}
