package tts

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"feed-narrator/config"
	"feed-narrator/internal/logging"
	"feed-narrator/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, 0.0, EstimateDuration(0))
	assert.Equal(t, 0.0, EstimateDuration(-5))
	assert.InDelta(t, 60.0, EstimateDuration(150), 1e-9)
	assert.InDelta(t, 0.4, EstimateDuration(1), 1e-9)

	prev := EstimateDuration(0)
	for words := 1; words <= 2000; words += 37 {
		cur := EstimateDuration(words)
		assert.Greater(t, cur, prev)
		prev = cur
	}
}

type fakeSynth struct {
	available bool
	err       error
	calls     int
}

func (f *fakeSynth) Provider() string { return "fake" }

func (f *fakeSynth) Available(context.Context) bool { return f.available }

func (f *fakeSynth) Render(ctx context.Context, text string, req models.AudioRenderRequest) error {
	f.calls++
	return f.err
}

func TestRenderUnavailableKeepsEstimate(t *testing.T) {
	s := &fakeSynth{available: false}
	res, err := Render(context.Background(), s, "text", 300, models.AudioRenderRequest{OutputPath: "x.wav"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, res.Produced)
	assert.InDelta(t, 120.0, res.EstimatedDurationSeconds, 1e-9)
	assert.Equal(t, 0, s.calls)
}

func TestRenderWrapsFailure(t *testing.T) {
	s := &fakeSynth{available: true, err: errors.New("boom")}
	res, err := Render(context.Background(), s, "text", 150, models.AudioRenderRequest{OutputPath: "x.wav"})
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.False(t, res.Produced)
	assert.InDelta(t, 60.0, res.EstimatedDurationSeconds, 1e-9)
}

func TestRenderSuccess(t *testing.T) {
	s := &fakeSynth{available: true}
	res, err := Render(context.Background(), s, "text", 15, models.AudioRenderRequest{OutputPath: "out.wav"})
	require.NoError(t, err)
	assert.True(t, res.Produced)
	assert.Equal(t, "out.wav", res.OutputPath)
	assert.Equal(t, 1, s.calls)
}

func TestNoneIsUnavailable(t *testing.T) {
	_, err := Render(context.Background(), None{}, "t", 1, models.AudioRenderRequest{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFactory(t *testing.T) {
	log := logging.Discard()
	for provider, want := range map[string]string{"": "mlx", "mlx": "mlx", "edge": "edge", "aliyun": "aliyun", "none": "none"} {
		s, err := Factory(config.AudioConfig{Provider: provider}, log)
		require.NoError(t, err)
		assert.Equal(t, want, s.Provider())
	}
	_, err := Factory(config.AudioConfig{Provider: "festival"}, log)
	assert.Error(t, err)
}

func TestResolveVoice(t *testing.T) {
	tests := []struct {
		provider, voice, want string
	}{
		{"mlx", "bf_emma", "bf_emma"},
		{"mlx", "", "bf_emma"},
		{"mlx", "male", "bm_george"},
		{"edge", "bf_emma", "en-GB-SoniaNeural"},
		{"edge", "am_adam", "en-US-GuyNeural"},
		{"edge", "en-AU-NatashaNeural", "en-AU-NatashaNeural"},
		{"edge", "", "en-US-AriaNeural"},
		{"aliyun", "bm_george", "andy"},
		{"aliyun", "female", "abby"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveVoice(tt.provider, tt.voice), "%s/%s", tt.provider, tt.voice)
	}
}

type fakeRunner struct {
	missing   bool
	importErr error
	runErr    error
	write     bool
	calls     [][]string
	stdin     string
}

func (r *fakeRunner) LookPath(file string) (string, error) {
	if r.missing {
		return "", errors.New("not found")
	}
	return "/usr/bin/" + file, nil
}

func (r *fakeRunner) Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if len(args) == 2 && args[0] == "-c" {
		return []byte("ModuleNotFoundError: No module named 'mlx_audio'"), r.importErr
	}
	if stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		r.stdin = string(data)
	}
	if r.runErr != nil {
		return []byte("Traceback\nRuntimeError: out of memory"), r.runErr
	}
	if r.write {
		for i, a := range args {
			if a == "--file_prefix" {
				if err := os.WriteFile(args[i+1]+".wav", []byte("RIFF"), 0o644); err != nil {
					return nil, err
				}
			}
		}
	}
	return nil, nil
}

func mlxConfig() config.AudioConfig {
	return config.AudioConfig{PythonBin: "python3", SampleRate: 24000, Timeout: time.Minute}
}

func TestMLXAvailable(t *testing.T) {
	log := logging.Discard()
	assert.True(t, NewMLX(mlxConfig(), &fakeRunner{}, log).Available(context.Background()))
	assert.False(t, NewMLX(mlxConfig(), &fakeRunner{missing: true}, log).Available(context.Background()))
	assert.False(t, NewMLX(mlxConfig(), &fakeRunner{importErr: errors.New("exit 1")}, log).Available(context.Background()))
}

func TestMLXRenderArgs(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "site_extracts_2024-05-01.wav")
	runner := &fakeRunner{write: true}
	m := NewMLX(mlxConfig(), runner, logging.Discard())

	err := m.Render(context.Background(), "Hello there.", models.AudioRenderRequest{
		Model:      "prince-canuma/Kokoro-82M",
		Voice:      "bf_emma",
		Speed:      0.8,
		LangCode:   "b",
		OutputPath: out,
	})
	require.NoError(t, err)
	require.Len(t, runner.calls, 1)

	args := strings.Join(runner.calls[0], " ")
	assert.Contains(t, args, "python3 -m mlx_audio.tts.generate")
	assert.Contains(t, args, "--model prince-canuma/Kokoro-82M")
	assert.Contains(t, args, "--voice bf_emma")
	assert.Contains(t, args, "--speed 0.8")
	assert.Contains(t, args, "--lang_code b")
	assert.Contains(t, args, "--file_prefix "+strings.TrimSuffix(out, ".wav"))
	assert.Contains(t, args, "--audio_format wav")
	assert.Contains(t, args, "--sample_rate 24000")
	assert.Contains(t, args, "--join_audio")
	assert.NotContains(t, args, "--text")
	assert.Equal(t, "Hello there.", runner.stdin)
	assert.FileExists(t, out)
}

func TestMLXRenderLongScriptUsesStdin(t *testing.T) {
	out := filepath.Join(t.TempDir(), "a.wav")
	runner := &fakeRunner{write: true}
	script := strings.Repeat("A long narrated sentence. ", 10000)

	err := NewMLX(mlxConfig(), runner, logging.Discard()).
		Render(context.Background(), script, models.AudioRenderRequest{OutputPath: out})
	require.NoError(t, err)
	assert.Equal(t, script, runner.stdin)
	for _, arg := range runner.calls[0] {
		assert.Less(t, len(arg), 4096)
	}
}

func TestMLXRenderRemovesPreviousAudio(t *testing.T) {
	out := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(out, []byte("RIFF old"), 0o644))

	err := NewMLX(mlxConfig(), &fakeRunner{}, logging.Discard()).
		Render(context.Background(), "x", models.AudioRenderRequest{OutputPath: out})
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.NoFileExists(t, out)
}

func TestMLXRenderFailures(t *testing.T) {
	dir := t.TempDir()
	req := models.AudioRenderRequest{OutputPath: filepath.Join(dir, "a.wav")}

	err := NewMLX(mlxConfig(), &fakeRunner{runErr: errors.New("exit 1")}, logging.Discard()).
		Render(context.Background(), "x", req)
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.Contains(t, err.Error(), "out of memory")

	err = NewMLX(mlxConfig(), &fakeRunner{}, logging.Discard()).Render(context.Background(), "x", req)
	assert.ErrorIs(t, err, ErrSynthesisFailed)
}

func TestEdgeRender(t *testing.T) {
	var body, format string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		format = r.Header.Get("X-Microsoft-OutputFormat")
		assert.Equal(t, "application/ssml+xml", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "nested", "a.wav")
	e := NewEdgeTTS(config.EdgeTTSConfig{Endpoint: srv.URL}, time.Second, logging.Discard())

	res, err := Render(context.Background(), e, "Tom & Jerry <live>", 3, models.AudioRenderRequest{
		Voice:      "bf_emma",
		Speed:      0.8,
		OutputPath: out,
	})
	require.NoError(t, err)
	assert.True(t, res.Produced)

	assert.Equal(t, "riff-24khz-16bit-mono-pcm", format)
	assert.Contains(t, body, `name="en-GB-SoniaNeural"`)
	assert.Contains(t, body, `xml:lang="en-GB"`)
	assert.Contains(t, body, `rate="-20%"`)
	assert.Contains(t, body, "Tom &amp; Jerry &lt;live&gt;")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "RIFFdata", string(data))
}

func TestEdgeRenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "a.wav")
	e := NewEdgeTTS(config.EdgeTTSConfig{Endpoint: srv.URL}, time.Second, logging.Discard())
	_, err := Render(context.Background(), e, "hi", 1, models.AudioRenderRequest{OutputPath: out})
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.NoFileExists(t, out)
}

func TestProsodyRate(t *testing.T) {
	assert.Equal(t, "+0%", prosodyRate(1))
	assert.Equal(t, "+50%", prosodyRate(1.5))
	assert.Equal(t, "-20%", prosodyRate(0.8))
	assert.Equal(t, "+0%", prosodyRate(0))
}

func TestAliyunRender(t *testing.T) {
	var query map[string][]string
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/audio.wav" {
			_, _ = w.Write([]byte("RIFFaliyun"))
			return
		}
		query = r.URL.Query()
		_, _ = w.Write([]byte(`{"Code":"Success","Data":{"AudioAddress":"` + srvURL + `/audio.wav"}}`))
	}))
	defer srv.Close()
	srvURL = srv.URL

	a := NewAliyunTTS(config.AliyunTTSConfig{AccessKeyID: "id", AccessKeySecret: "secret", Region: "cn-shanghai"}, 24000, time.Second, logging.Discard())
	a.baseURL = srv.URL + "/"

	out := filepath.Join(t.TempDir(), "a.wav")
	res, err := Render(context.Background(), a, "Hello", 1, models.AudioRenderRequest{Voice: "bf_emma", Speed: 0.8, OutputPath: out})
	require.NoError(t, err)
	assert.True(t, res.Produced)

	assert.Equal(t, "wav", query["Format"][0])
	assert.Equal(t, "abby", query["Voice"][0])
	assert.Equal(t, "-250", query["SpeechRate"][0])
	assert.Equal(t, "24000", query["SampleRate"][0])
	assert.NotEmpty(t, query["Signature"][0])

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "RIFFaliyun", string(data))
}

func TestAliyunAvailability(t *testing.T) {
	log := logging.Discard()
	assert.False(t, NewAliyunTTS(config.AliyunTTSConfig{}, 24000, 0, log).Available(context.Background()))
	assert.True(t, NewAliyunTTS(config.AliyunTTSConfig{AccessKeyID: "a", AccessKeySecret: "b"}, 24000, 0, log).Available(context.Background()))
}

func TestComputeSignatureIsStable(t *testing.T) {
	params := map[string]string{"B": "2", "A": "1 2", "C": "*~"}
	assert.Equal(t, computeSignature(params, "k"), computeSignature(params, "k"))
	assert.NotEqual(t, computeSignature(params, "k"), computeSignature(params, "other"))
	assert.Equal(t, "a%20b%2A~", percentEncode("a b*~"))
}
