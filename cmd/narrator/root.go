package main

import (
	"fmt"

	"feed-narrator/config"
	"feed-narrator/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "narrator",
		Short:         "Feed to narrated audio digest",
		Long:          "narrator reads recent entries of an RSS or Atom feed, asks a language model for a comprehensive extract of each article, writes the narration script and renders it to speech.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file (default $"+config.ConfigPathEnv+")")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newRunCmd(g),
		newServeCmd(g),
		newSayCmd(g),
		newPruneCmd(g),
	)
	return root
}

// load reads the layered configuration and applies the global flags.
func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *logrus.Logger {
	return logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
}

// pipelineFlags are the per-run overrides shared by run and serve.
type pipelineFlags struct {
	rssURL          string
	siteName        string
	contentSelector string
	maxArticles     int
	llmProvider     string
	ollamaURL       string
	modelName       string
	timeout         int
	outputDir       string
	audio           audioFlags
}

type audioFlags struct {
	provider string
	model    string
	voice    string
	speed    float64
	langCode string
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.rssURL, "rss-url", "", "feed URL")
	fs.StringVar(&f.siteName, "site-name", "", "site name used in the narration and file names (default derived from the feed host)")
	fs.StringVar(&f.contentSelector, "content-selector", "", "CSS selector of the article body")
	fs.IntVar(&f.maxArticles, "max-articles", 10, "maximum number of articles")
	fs.StringVar(&f.llmProvider, "llm-provider", "ollama", "summarizer backend: ollama, openai, claude, gemini")
	fs.StringVar(&f.ollamaURL, "ollama-url", config.DefaultOllamaEndpoint, "summarizer endpoint")
	fs.StringVar(&f.modelName, "model-name", "", "summarizer model")
	fs.IntVar(&f.timeout, "timeout", 90, "summarizer request timeout in seconds")
	fs.StringVar(&f.outputDir, "output-dir", "./outputs", "output directory")
	f.audio.register(cmd)
}

func (f *audioFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.provider, "audio-provider", "mlx", "speech backend: mlx, edge, aliyun, none")
	fs.StringVar(&f.model, "audio-model", "prince-canuma/Kokoro-82M", "speech model")
	fs.StringVar(&f.voice, "audio-voice", "bf_emma", "voice")
	fs.Float64Var(&f.speed, "audio-speed", 0.8, "speech speed multiplier")
	fs.StringVar(&f.langCode, "audio-lang-code", "b", "language code")
}

// apply copies explicitly set flags over cfg.
func (f *pipelineFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("rss-url") {
		cfg.Feed.URL = f.rssURL
	}
	if changed("site-name") {
		cfg.Feed.SiteName = f.siteName
	}
	if changed("content-selector") {
		cfg.Feed.ContentSelector = f.contentSelector
	}
	if changed("max-articles") {
		cfg.Feed.MaxArticles = f.maxArticles
	}
	if changed("llm-provider") {
		cfg.LLM.Provider = f.llmProvider
	}
	if changed("ollama-url") {
		cfg.LLM.Endpoint = f.ollamaURL
	}
	if changed("model-name") {
		cfg.LLM.Model = f.modelName
	}
	if changed("timeout") {
		cfg.LLM.Timeout = seconds(f.timeout)
	}
	if changed("output-dir") {
		cfg.Output.Dir = f.outputDir
	}
	f.audio.apply(cmd, cfg)
}

func (f *audioFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("audio-provider") {
		cfg.Audio.Provider = f.provider
	}
	if changed("audio-model") {
		cfg.Audio.Model = f.model
	}
	if changed("audio-voice") {
		cfg.Audio.Voice = f.voice
	}
	if changed("audio-speed") {
		cfg.Audio.Speed = f.speed
	}
	if changed("audio-lang-code") {
		cfg.Audio.LangCode = f.langCode
	}
}

func validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w (see --help)", err)
	}
	return nil
}
