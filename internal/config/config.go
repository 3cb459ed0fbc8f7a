// Package config manages application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Ledger backends.
const (
	LedgerSheets   = "sheets"
	LedgerFile     = "file"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Discovery strategies.
const (
	DiscoveryRSS = "rss"
	DiscoveryAPI = "api"
)

// Delivery policies.
const (
	DeliveryBestEffort = "best_effort"
	DeliveryStrict     = "strict"
)

// DefaultPrompt is sent to the model when no prompt is configured.
const DefaultPrompt = `你是一位精通聖經與教會信息的助理。請針對提供的影片逐字稿進行分析。
請給我最新信息的重點，劉奎元和李俊輝弟兄分享的重點，及能夠幫助聖徒進入經歷分享的突破點，
對應的經文請附在相關的段落，並列出經文本文。以及可供反思的三個問題。
格式要求：使用清晰的 Markdown 標題與條列式。`

// Defaults for the text around the transcript and the summary.
const (
	DefaultTranscriptLeadIn = "以下是逐字稿內容："
	DefaultMessageHeader    = "【新影片分析】"
)

// ErrNoChannels is returned when the source list is empty.
var ErrNoChannels = errors.New("config: no channels configured (set YOUTUBE_CHANNEL_ID or YTDIGEST_CHANNELS)")

// ErrMissingCredentials is returned by RequireCredentials.
var ErrMissingCredentials = errors.New("config: missing credentials")

// Config holds all application configuration.
type Config struct {
	// Channels is the ordered source list. Entries are channel ids, channel
	// URLs or @handles.
	Channels []string `yaml:"channels"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Ledger    LedgerConfig    `yaml:"ledger"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Acquire   AcquireConfig   `yaml:"acquire"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	LINE      LINEConfig      `yaml:"line"`
	HTTP      HTTPConfig      `yaml:"http"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LedgerConfig selects and configures the dedup store.
type LedgerConfig struct {
	Backend string `yaml:"backend"`

	SheetID    string `yaml:"sheet_id"`
	SheetRange string `yaml:"sheet_range"`
	// ServiceAccountJSON is the raw service account key, never a path.
	ServiceAccountJSON string `yaml:"-"`

	File string `yaml:"file"`

	DatabaseURL string `yaml:"database_url"`

	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
}

// DiscoveryConfig selects how the newest video of a channel is found.
type DiscoveryConfig struct {
	Strategy string `yaml:"strategy"`
	APIKey   string `yaml:"-"`
}

// AcquireConfig configures transcript and audio acquisition.
type AcquireConfig struct {
	Languages       []string      `yaml:"languages"`
	YtdlpPath       string        `yaml:"ytdlp_path"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	StagingDir      string        `yaml:"staging_dir"`
	// Cookies is a Netscape cookie file blob used by yt-dlp.
	Cookies string `yaml:"-"`
}

// GeminiConfig configures the analyzer.
type GeminiConfig struct {
	APIKey            string        `yaml:"-"`
	Model             string        `yaml:"model"`
	Prompt            string        `yaml:"prompt"`
	PromptFile        string        `yaml:"prompt_file"`
	TranscriptLeadIn  string        `yaml:"transcript_lead_in"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxProcessingWait time.Duration `yaml:"max_processing_wait"`
}

// LINEConfig configures the notifier.
type LINEConfig struct {
	AccessToken      string `yaml:"-"`
	UserID           string `yaml:"user_id"`
	Endpoint         string `yaml:"endpoint"`
	MaxMessageLength int    `yaml:"max_message_length"`
	DeliveryPolicy   string `yaml:"delivery_policy"`
	// Header starts every message, before the channel label.
	Header string `yaml:"header"`
}

// HTTPConfig tunes the shared HTTP client.
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Ledger: LedgerConfig{
			Backend:    LedgerSheets,
			SheetRange: "A:C",
			File:       "ytdigest-ledger.json",
			RedisKey:   "ytdigest:processed",
		},
		Discovery: DiscoveryConfig{
			Strategy: DiscoveryRSS,
		},
		Acquire: AcquireConfig{
			Languages:       []string{"zh-TW", "zh-Hant", "zh", "en"},
			YtdlpPath:       "yt-dlp",
			DownloadTimeout: 10 * time.Minute,
		},
		Gemini: GeminiConfig{
			Model:             "gemini-1.5-flash",
			Prompt:            DefaultPrompt,
			TranscriptLeadIn:  DefaultTranscriptLeadIn,
			PollInterval:      5 * time.Second,
			MaxProcessingWait: 5 * time.Minute,
		},
		LINE: LINEConfig{
			Endpoint:         "https://api.line.me/v2/bot/message/push",
			MaxMessageLength: 2000,
			DeliveryPolicy:   DeliveryBestEffort,
			Header:           DefaultMessageHeader,
		},
		HTTP: HTTPConfig{
			Timeout:           30 * time.Second,
			MaxRetries:        3,
			RequestsPerSecond: 2,
		},
		Metrics: MetricsConfig{
			Job: "ytdigest",
		},
	}
}

// Load loads configuration from environment variables, config file, and applies defaults.
// Priority: env vars > config file > defaults
func Load() (*Config, error) {
	cfg, err := LoadSettings()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateSources(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSettings is Load without the channel list requirement, for commands
// that act on a single video or channel given on the command line.
func LoadSettings() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		// Config file is optional
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.loadPrompt(); err != nil {
		return nil, err
	}

	if err := cfg.validateSettings(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// filePaths lists candidate config files in lookup order.
func filePaths() []string {
	var paths []string
	if p := os.Getenv("YTDIGEST_CONFIG"); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, "ytdigest.yaml")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ytdigest", "ytdigest.yaml"))
	}
	return paths
}

// loadFromFile loads the first config file that exists.
func (c *Config) loadFromFile() error {
	for _, path := range filePaths() {
		err := c.LoadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return err
	}
	return os.ErrNotExist
}

// LoadFile merges the YAML file at path into c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv(getenv func(string) string) error {
	var errs []error

	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	if v := getenv("YTDIGEST_CHANNELS"); v != "" {
		c.Channels = SplitList(v)
	} else if v := getenv("YOUTUBE_CHANNEL_ID"); v != "" {
		c.Channels = SplitList(v)
	}

	str("YTDIGEST_LOG_LEVEL", &c.LogLevel)
	str("YTDIGEST_LOG_FORMAT", &c.LogFormat)

	str("YTDIGEST_LEDGER", &c.Ledger.Backend)
	str("GOOGLE_SHEET_ID", &c.Ledger.SheetID)
	str("GCP_SA_KEY", &c.Ledger.ServiceAccountJSON)
	str("YTDIGEST_SHEET_RANGE", &c.Ledger.SheetRange)
	str("YTDIGEST_LEDGER_FILE", &c.Ledger.File)
	str("DATABASE_URL", &c.Ledger.DatabaseURL)
	str("REDIS_ADDR", &c.Ledger.RedisAddr)
	str("YTDIGEST_REDIS_KEY", &c.Ledger.RedisKey)

	str("YTDIGEST_DISCOVERY", &c.Discovery.Strategy)
	str("YOUTUBE_API_KEY", &c.Discovery.APIKey)

	if v := getenv("YTDIGEST_LANGUAGES"); v != "" {
		c.Acquire.Languages = SplitList(v)
	}
	str("YTDIGEST_YTDLP_PATH", &c.Acquire.YtdlpPath)
	dur("YTDIGEST_DOWNLOAD_TIMEOUT", &c.Acquire.DownloadTimeout)
	str("YTDIGEST_STAGING_DIR", &c.Acquire.StagingDir)
	str("YOUTUBE_COOKIES", &c.Acquire.Cookies)

	str("GEMINI_API_KEY", &c.Gemini.APIKey)
	str("YTDIGEST_GEMINI_MODEL", &c.Gemini.Model)
	str("YTDIGEST_PROMPT_FILE", &c.Gemini.PromptFile)
	dur("YTDIGEST_POLL_INTERVAL", &c.Gemini.PollInterval)
	dur("YTDIGEST_MAX_PROCESSING_WAIT", &c.Gemini.MaxProcessingWait)

	str("LINE_ACCESS_TOKEN", &c.LINE.AccessToken)
	str("LINE_USER_ID", &c.LINE.UserID)
	str("YTDIGEST_LINE_ENDPOINT", &c.LINE.Endpoint)
	num("YTDIGEST_MAX_MESSAGE_LENGTH", &c.LINE.MaxMessageLength)
	str("YTDIGEST_DELIVERY_POLICY", &c.LINE.DeliveryPolicy)

	str("YTDIGEST_PUSHGATEWAY_URL", &c.Metrics.PushgatewayURL)

	return errors.Join(errs...)
}

// loadPrompt replaces Prompt with the contents of PromptFile when one is set.
func (c *Config) loadPrompt() error {
	if c.Gemini.PromptFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.Gemini.PromptFile)
	if err != nil {
		return fmt.Errorf("read prompt file: %w", err)
	}
	if p := strings.TrimSpace(string(data)); p != "" {
		c.Gemini.Prompt = p
	}
	return nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if err := c.ValidateSources(); err != nil {
		return err
	}
	return c.validateSettings()
}

// ValidateSources checks that at least one channel is configured.
func (c *Config) ValidateSources() error {
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}
	return nil
}

func (c *Config) validateSettings() error {
	switch c.Ledger.Backend {
	case LedgerSheets, LedgerFile, LedgerPostgres, LedgerRedis:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	switch c.Discovery.Strategy {
	case DiscoveryRSS:
	case DiscoveryAPI:
		if c.Discovery.APIKey == "" {
			return fmt.Errorf("api discovery requires YOUTUBE_API_KEY")
		}
	default:
		return fmt.Errorf("unknown discovery strategy %q", c.Discovery.Strategy)
	}
	if len(c.Acquire.Languages) == 0 {
		return fmt.Errorf("languages must not be empty")
	}
	if c.Acquire.DownloadTimeout <= 0 {
		return fmt.Errorf("download_timeout must be positive")
	}
	if strings.TrimSpace(c.Gemini.Prompt) == "" {
		return fmt.Errorf("prompt must not be empty")
	}
	if c.Gemini.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.Gemini.MaxProcessingWait < c.Gemini.PollInterval {
		return fmt.Errorf("max_processing_wait must be >= poll_interval")
	}
	if c.LINE.MaxMessageLength <= 0 {
		return fmt.Errorf("max_message_length must be positive")
	}
	switch c.LINE.DeliveryPolicy {
	case DeliveryBestEffort, DeliveryStrict:
	default:
		return fmt.Errorf("unknown delivery policy %q", c.LINE.DeliveryPolicy)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http max_retries must be non-negative")
	}
	return nil
}

// RequireCredentials reports missing analyzer or notifier credentials.
// Only the run command needs them.
func (c *Config) RequireCredentials() error {
	var missing []string
	if c.Gemini.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.LINE.AccessToken == "" {
		missing = append(missing, "LINE_ACCESS_TOKEN")
	}
	if c.LINE.UserID == "" {
		missing = append(missing, "LINE_USER_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// SplitList splits a comma separated list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
