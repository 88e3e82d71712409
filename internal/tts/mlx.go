package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"feed-narrator/config"
	"feed-narrator/internal/models"

	"github.com/sirupsen/logrus"
)

// Runner executes external commands. stdin may be nil.
type Runner interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (execRunner) Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	return cmd.CombinedOutput()
}

// MLX drives the mlx-audio generator through a local Python interpreter.
type MLX struct {
	python     string
	sampleRate int
	timeout    time.Duration
	runner     Runner
	log        logrus.FieldLogger
}

// NewMLX creates an MLX synthesizer. A nil runner executes real processes.
func NewMLX(cfg config.AudioConfig, runner Runner, log logrus.FieldLogger) *MLX {
	if runner == nil {
		runner = execRunner{}
	}
	python := cfg.PythonBin
	if python == "" {
		python = "python3"
	}
	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 24000
	}
	return &MLX{
		python:     python,
		sampleRate: sampleRate,
		timeout:    cfg.Timeout,
		runner:     runner,
		log:        log,
	}
}

func (m *MLX) Provider() string { return "mlx" }

// Available checks that the interpreter exists and can import mlx_audio.
func (m *MLX) Available(ctx context.Context) bool {
	path, err := m.runner.LookPath(m.python)
	if err != nil {
		m.log.WithField("python", m.python).Debug("python interpreter not found")
		return false
	}
	if out, err := m.runner.Run(ctx, nil, path, "-c", "import mlx_audio"); err != nil {
		m.log.WithFields(logrus.Fields{
			"python": path,
			"output": strings.TrimSpace(string(out)),
		}).Debug("mlx_audio not importable")
		return false
	}
	return true
}

// Render runs the generator with joined output, which writes <prefix>.wav.
// The script goes through stdin so its length is not bound by argument limits.
func (m *MLX) Render(ctx context.Context, text string, req models.AudioRenderRequest) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	prefix := strings.TrimSuffix(req.OutputPath, ".wav")
	if err := os.Remove(prefix + ".wav"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove previous audio: %w", ErrSynthesisFailed, err)
	}
	args := m.args(prefix, req)

	m.log.WithFields(logrus.Fields{
		"model": req.Model,
		"voice": req.Voice,
		"file":  req.OutputPath,
	}).Info("generating audio with mlx-audio")

	out, err := m.runner.Run(ctx, strings.NewReader(text), m.python, args...)
	if err != nil {
		return fmt.Errorf("%w: mlx-audio: %v: %s", ErrSynthesisFailed, err, lastLine(out))
	}

	info, err := os.Stat(prefix + ".wav")
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: mlx-audio wrote no file at %s.wav", ErrSynthesisFailed, prefix)
	}
	return nil
}

func (m *MLX) args(prefix string, req models.AudioRenderRequest) []string {
	return []string{
		"-m", "mlx_audio.tts.generate",
		"--model", req.Model,
		"--voice", ResolveVoice("mlx", req.Voice),
		"--speed", strconv.FormatFloat(req.Speed, 'f', -1, 64),
		"--lang_code", req.LangCode,
		"--file_prefix", prefix,
		"--audio_format", "wav",
		"--sample_rate", strconv.Itoa(m.sampleRate),
		"--join_audio",
	}
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return lines[len(lines)-1]
}
