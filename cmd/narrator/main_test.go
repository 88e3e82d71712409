package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"feed-narrator/config"
	"feed-narrator/internal/models"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.ConfigPathEnv, "")
	t.Setenv("NARRATOR_ARTICLE_DELAY", "0s")

	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPipelineFlagsApplyOnlyChanged(t *testing.T) {
	f := &pipelineFlags{}
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--rss-url", "https://example.com/rss", "--max-articles", "3", "--timeout", "45", "--audio-voice", "am_adam"}))

	cfg := config.DefaultConfig()
	cfg.LLM.Model = "from-file"
	f.apply(cmd, cfg)

	assert.Equal(t, "https://example.com/rss", cfg.Feed.URL)
	assert.Equal(t, 3, cfg.Feed.MaxArticles)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "am_adam", cfg.Audio.Voice)
	assert.Equal(t, "from-file", cfg.LLM.Model)
	assert.Equal(t, "./outputs", cfg.Output.Dir)
}

func TestRunRequiresFeedURL(t *testing.T) {
	_, err := execute(t, "run", "--output-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Feed.URL")
}

func testSite(t *testing.T) *httptest.Server {
	t.Helper()
	paragraph := strings.Repeat("A detailed paragraph describing the article in depth for testing. ", 5)
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rss":
			fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title><link>%[1]s</link><description>d</description>
<item><title>One</title><link>%[1]s/one</link></item>
<item><title>Two</title><link>%[1]s/missing</link></item>
</channel></rss>`, srv.URL)
		case "/one":
			fmt.Fprintf(w, `<html><body><main><p>%s</p></main></body></html>`, paragraph)
		case "/api/generate":
			_ = json.NewEncoder(w).Encode(map[string]string{"response": "A narrated extract."})
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunCommandEndToEnd(t *testing.T) {
	srv := testSite(t)
	outDir := t.TempDir()

	out, err := execute(t, "run",
		"--rss-url", srv.URL+"/rss",
		"--site-name", "Test Site",
		"--content-selector", "main",
		"--ollama-url", srv.URL+"/api/generate",
		"--model-name", "test-model",
		"--audio-provider", "none",
		"--output-dir", outDir,
		"--log-level", "error",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Articles: 1 succeeded, 1 skipped")
	assert.Contains(t, out, "Audio: skipped")

	date := time.Now().Format("2006-01-02")
	text, err := os.ReadFile(filepath.Join(outDir, "test-site_extracts_"+date+".txt"))
	require.NoError(t, err)
	assert.Contains(t, string(text), "Article 1: One. A narrated extract.")
	assert.NoFileExists(t, filepath.Join(outDir, "test-site_extracts_"+date+".wav"))
}

func TestRunCommandFeedUnavailable(t *testing.T) {
	srv := testSite(t)
	_, err := execute(t, "run",
		"--rss-url", srv.URL+"/nope",
		"--site-name", "Test",
		"--ollama-url", srv.URL+"/api/generate",
		"--audio-provider", "none",
		"--output-dir", t.TempDir(),
		"--log-level", "error",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed unavailable")
}

func TestPruneCommand(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "site_extracts_2000-01-01.txt")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	recent := filepath.Join(dir, "site_extracts_"+time.Now().Format("2006-01-02")+".txt")
	require.NoError(t, os.WriteFile(recent, []byte("x"), 0o644))

	out, err := execute(t, "prune", "--output-dir", dir, "--days", "7", "--dry-run", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "would delete 1 file(s)")
	assert.FileExists(t, old)

	out, err = execute(t, "prune", "--output-dir", dir, "--days", "7", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1 file(s)")
	assert.NoFileExists(t, old)
	assert.FileExists(t, recent)

	_, err = execute(t, "prune", "--output-dir", dir, "--days", "0")
	assert.Error(t, err)
}

func TestSayCommandUnavailable(t *testing.T) {
	_, err := execute(t, "say", "--audio-provider", "none", "--out", filepath.Join(t.TempDir(), "s.wav"), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestSayCommandEdge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("RIFFsample"))
	}))
	defer srv.Close()

	cfgPath := filepath.Join(t.TempDir(), "narrator.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("audio:\n  edge:\n    endpoint: "+srv.URL+"\n"), 0o644))

	out := filepath.Join(t.TempDir(), "s.wav")
	stdout, err := execute(t, "say", "--config", cfgPath, "--audio-provider", "edge", "--out", out, "--log-level", "error", "Hello", "world")
	require.NoError(t, err)
	assert.Contains(t, stdout, "edge: wrote")
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "RIFFsample", string(data))
}

func TestSummary(t *testing.T) {
	s := summary(&models.RunReport{Succeeded: 2, Skipped: 1, TextPath: "a.txt", AudioStatus: models.AudioFailed, WordCount: 300, CharCount: 1800, EstimatedDurationSeconds: 120})
	assert.Contains(t, s, "Audio: failed")
	assert.Contains(t, s, "estimated duration: 2.0 minutes")
}
