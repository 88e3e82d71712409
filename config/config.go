package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names the YAML config file when --config is not given.
const ConfigPathEnv = "NARRATOR_CONFIG"

// DefaultOllamaEndpoint is the generate endpoint of a local Ollama server.
const DefaultOllamaEndpoint = "http://localhost:11434/api/generate"

// Config is the application configuration.
type Config struct {
	Feed   FeedConfig   `yaml:"feed"`
	Fetch  FetchConfig  `yaml:"fetch"`
	LLM    LLMConfig    `yaml:"llm"`
	Audio  AudioConfig  `yaml:"audio"`
	Output OutputConfig `yaml:"output"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// FeedConfig describes the feed being narrated.
type FeedConfig struct {
	URL             string        `yaml:"url" validate:"required,url"`
	SiteName        string        `yaml:"site_name" validate:"required"`
	ContentSelector string        `yaml:"content_selector"`
	MaxArticles     int           `yaml:"max_articles" validate:"min=1"`
	ArticleDelay    time.Duration `yaml:"article_delay"`
}

// FetchConfig controls outbound page and feed requests.
type FetchConfig struct {
	FeedTimeout     time.Duration `yaml:"feed_timeout"`
	PageTimeout     time.Duration `yaml:"page_timeout"`
	UserAgent       string        `yaml:"user_agent"`
	MinContentChars int           `yaml:"min_content_chars" validate:"min=1"`
}

// LLMConfig describes the completion service used for extracts.
type LLMConfig struct {
	Provider        string        `yaml:"provider" validate:"oneof=ollama openai claude gemini"`
	Endpoint        string        `yaml:"endpoint" validate:"omitempty,url"`
	Model           string        `yaml:"model" validate:"required"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`
	Temperature     float32       `yaml:"temperature" validate:"min=0"`
	TopP            float32       `yaml:"top_p" validate:"min=0,max=1"`
	MaxTokens       int           `yaml:"max_tokens" validate:"min=1"`
	MaxContentChars int           `yaml:"max_content_chars" validate:"min=1"`
}

// AudioConfig describes the text-to-speech backend.
type AudioConfig struct {
	Provider   string          `yaml:"provider" validate:"oneof=mlx edge aliyun none"`
	Model      string          `yaml:"model"`
	Voice      string          `yaml:"voice"`
	Speed      float64         `yaml:"speed" validate:"gt=0"`
	LangCode   string          `yaml:"lang_code"`
	SampleRate int             `yaml:"sample_rate" validate:"min=8000"`
	PythonBin  string          `yaml:"python_bin"`
	Timeout    time.Duration   `yaml:"timeout"`
	Edge       EdgeTTSConfig   `yaml:"edge"`
	Aliyun     AliyunTTSConfig `yaml:"aliyun"`
}

// EdgeTTSConfig Edge read-aloud settings.
type EdgeTTSConfig struct {
	Endpoint     string `yaml:"endpoint"`
	OutputFormat string `yaml:"output_format"`
}

// AliyunTTSConfig Aliyun NLS settings.
type AliyunTTSConfig struct {
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Region          string `yaml:"region"`
}

// OutputConfig controls where digests are written.
type OutputConfig struct {
	Dir           string `yaml:"dir" validate:"required"`
	RetentionDays int    `yaml:"retention_days" validate:"min=0"`
}

// ServerConfig HTTP server and scheduler settings.
type ServerConfig struct {
	Port     string `yaml:"port"`
	Schedule string `yaml:"schedule"`
}

// LogConfig logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			MaxArticles:  10,
			ArticleDelay: 3 * time.Second,
		},
		Fetch: FetchConfig{
			FeedTimeout:     10 * time.Second,
			PageTimeout:     15 * time.Second,
			MinContentChars: 200,
		},
		LLM: LLMConfig{
			Provider:        "ollama",
			Timeout:         90 * time.Second,
			Temperature:     0.2,
			TopP:            0.9,
			MaxTokens:       1024,
			MaxContentChars: 24000,
		},
		Audio: AudioConfig{
			Provider:   "mlx",
			Model:      "prince-canuma/Kokoro-82M",
			Voice:      "bf_emma",
			Speed:      0.8,
			LangCode:   "b",
			SampleRate: 24000,
			PythonBin:  "python3",
			Timeout:    30 * time.Minute,
			Edge: EdgeTTSConfig{
				OutputFormat: "riff-24khz-16bit-mono-pcm",
			},
			Aliyun: AliyunTTSConfig{
				Region: "cn-shanghai",
			},
		},
		Output: OutputConfig{
			Dir:           "./outputs",
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Port:     "3001",
			Schedule: "0 0 6 * * *",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig layers defaults, the YAML file at path (or $NARRATOR_CONFIG), .env and the environment.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Feed.URL = getEnvOrDefault("NARRATOR_FEED_URL", c.Feed.URL)
	c.Feed.SiteName = getEnvOrDefault("NARRATOR_SITE_NAME", c.Feed.SiteName)
	c.Feed.ContentSelector = getEnvOrDefault("NARRATOR_CONTENT_SELECTOR", c.Feed.ContentSelector)
	c.Feed.MaxArticles = getEnvIntOrDefault("NARRATOR_MAX_ARTICLES", c.Feed.MaxArticles)
	c.Feed.ArticleDelay = getEnvDurationOrDefault("NARRATOR_ARTICLE_DELAY", c.Feed.ArticleDelay)

	c.Fetch.FeedTimeout = getEnvDurationOrDefault("NARRATOR_FEED_TIMEOUT", c.Fetch.FeedTimeout)
	c.Fetch.PageTimeout = getEnvDurationOrDefault("NARRATOR_PAGE_TIMEOUT", c.Fetch.PageTimeout)
	c.Fetch.UserAgent = getEnvOrDefault("NARRATOR_USER_AGENT", c.Fetch.UserAgent)
	c.Fetch.MinContentChars = getEnvIntOrDefault("NARRATOR_MIN_CONTENT_CHARS", c.Fetch.MinContentChars)

	c.LLM.Provider = strings.ToLower(getEnvOrDefault("NARRATOR_LLM_PROVIDER", c.LLM.Provider))
	c.LLM.Endpoint = getEnvOrDefault("NARRATOR_LLM_ENDPOINT", c.LLM.Endpoint)
	c.LLM.Model = getEnvOrDefault("NARRATOR_LLM_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnvOrDefault("NARRATOR_LLM_API_KEY", c.LLM.APIKey)
	c.LLM.Timeout = getEnvDurationOrDefault("NARRATOR_LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.MaxTokens = getEnvIntOrDefault("NARRATOR_LLM_MAX_TOKENS", c.LLM.MaxTokens)

	c.Audio.Provider = strings.ToLower(getEnvOrDefault("NARRATOR_AUDIO_PROVIDER", c.Audio.Provider))
	c.Audio.Model = getEnvOrDefault("NARRATOR_AUDIO_MODEL", c.Audio.Model)
	c.Audio.Voice = getEnvOrDefault("NARRATOR_AUDIO_VOICE", c.Audio.Voice)
	c.Audio.Speed = getEnvFloatOrDefault("NARRATOR_AUDIO_SPEED", c.Audio.Speed)
	c.Audio.LangCode = getEnvOrDefault("NARRATOR_AUDIO_LANG_CODE", c.Audio.LangCode)
	c.Audio.PythonBin = getEnvOrDefault("NARRATOR_PYTHON_BIN", c.Audio.PythonBin)
	c.Audio.Edge.OutputFormat = getEnvOrDefault("EDGE_TTS_FORMAT", c.Audio.Edge.OutputFormat)
	c.Audio.Aliyun.AccessKeyID = getEnvOrDefault("ALIYUN_ACCESS_KEY_ID", c.Audio.Aliyun.AccessKeyID)
	c.Audio.Aliyun.AccessKeySecret = getEnvOrDefault("ALIYUN_ACCESS_KEY_SECRET", c.Audio.Aliyun.AccessKeySecret)
	c.Audio.Aliyun.Region = getEnvOrDefault("ALIYUN_REGION", c.Audio.Aliyun.Region)

	c.Output.Dir = getEnvOrDefault("NARRATOR_OUTPUT_DIR", c.Output.Dir)
	c.Output.RetentionDays = getEnvIntOrDefault("NARRATOR_RETENTION_DAYS", c.Output.RetentionDays)

	c.Server.Port = getEnvOrDefault("APP_PORT", c.Server.Port)
	c.Server.Schedule = getEnvOrDefault("NARRATOR_SCHEDULE", c.Server.Schedule)

	c.Log.Level = getEnvOrDefault("NARRATOR_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("NARRATOR_LOG_FORMAT", c.Log.Format)
}

// Validate fills provider-dependent defaults and checks the struct constraints.
func (c *Config) Validate() error {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "ollama" && c.LLM.Endpoint == "" {
		c.LLM.Endpoint = DefaultOllamaEndpoint
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultModel(c.LLM.Provider)
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = DefaultUserAgent
	}
	if c.Feed.SiteName == "" {
		c.Feed.SiteName = SiteNameFromURL(c.Feed.URL)
	}

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DefaultUserAgent is sent on feed and page requests unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func defaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "claude":
		return "claude-3-7-sonnet-latest"
	case "gemini":
		return "gemini-2.5-flash"
	default:
		return "gemma3:12b"
	}
}

// SiteNameFromURL derives a display name from the feed host, "https://www.example.com/rss" -> "Example".
func SiteNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	name := strings.SplitN(host, ".", 2)[0]
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// fieldPath turns "Config.Feed.URL" into "Feed.URL".
func fieldPath(namespace string) string {
	return strings.TrimPrefix(namespace, "Config.")
}

// getEnvOrDefault returns the environment value for key, or defaultValue when unset.
func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
