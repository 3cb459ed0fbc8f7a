package ytdigest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ytdigest/internal/acquire"
	"ytdigest/internal/analyzer"
	"ytdigest/internal/config"
	"ytdigest/internal/domain"
	httpc "ytdigest/internal/http"
	"ytdigest/internal/metrics"
	"ytdigest/internal/notify"
	"ytdigest/internal/pipeline"
	"ytdigest/internal/storage"
	"ytdigest/internal/youtube"
)

// Aliases for types library users handle directly.
type (
	Config  = config.Config
	Item    = domain.Item
	Marker  = domain.Marker
	Report  = pipeline.Report
	Outcome = pipeline.Outcome
	State   = pipeline.State
)

// LoadConfig loads configuration from defaults, the config file and the
// environment.
func LoadConfig() (*Config, error) {
	return config.Load()
}

// App holds the components shared by every command. The analyzer and the
// notifier need credentials and are only built by Pipeline.
type App struct {
	cfg     *Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	HTTP        *httpc.Client
	Discovery   *youtube.Discovery
	Transcripts *youtube.TranscriptFetcher
	Audio       *youtube.AudioDownloader
	Ledger      *storage.Ledger

	closers []func() error
}

// NewApp builds the credential-free components. m may be nil.
func NewApp(ctx context.Context, cfg *Config, logger *zap.Logger, m *metrics.Metrics) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, metrics: m}

	hc := httpc.DefaultConfig()
	hc.Timeout = cfg.HTTP.Timeout
	hc.Retry.MaxRetries = cfg.HTTP.MaxRetries
	if cfg.HTTP.RequestsPerSecond > 0 {
		hc.RateLimiter.DefaultRPS = cfg.HTTP.RequestsPerSecond
	}
	a.HTTP = httpc.New(hc)
	a.closers = append(a.closers, a.HTTP.Close)

	lister, err := a.lister(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Discovery = youtube.NewDiscovery(lister, youtube.NewHandleResolver(a.HTTP), logger.Named("discovery"))
	a.Transcripts = youtube.NewTranscriptFetcher(a.HTTP)

	a.Audio = youtube.NewAudioDownloader()
	a.Audio.YtdlpPath = cfg.Acquire.YtdlpPath
	a.Audio.Timeout = cfg.Acquire.DownloadTimeout
	a.Audio.StagingRoot = cfg.Acquire.StagingDir
	a.Audio.Cookies = cfg.Acquire.Cookies

	backend := storage.Open(ctx, cfg.Ledger, logger.Named("ledger"))
	a.Ledger = storage.NewLedger(backend, logger.Named("ledger"))
	a.closers = append(a.closers, a.Ledger.Close)

	return a, nil
}

func (a *App) lister(ctx context.Context) (youtube.Lister, error) {
	switch a.cfg.Discovery.Strategy {
	case config.DiscoveryAPI:
		return youtube.NewAPILister(ctx, a.cfg.Discovery.APIKey)
	default:
		return youtube.NewFeedLister(a.HTTP), nil
	}
}

// Pipeline builds the analyzer and notifier and wires a pipeline over all
// configured sources. Metrics hooks are attached when the App has metrics.
func (a *App) Pipeline(ctx context.Context, runID string) (*pipeline.Pipeline, error) {
	if err := a.cfg.RequireCredentials(); err != nil {
		return nil, err
	}

	gemini, err := analyzer.NewGeminiClient(ctx, a.cfg.Gemini.APIKey, a.cfg.Gemini.Model)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, gemini.Close)

	an := analyzer.New(gemini, analyzer.Config{
		Prompt:            a.cfg.Gemini.Prompt,
		LeadIn:            a.cfg.Gemini.TranscriptLeadIn,
		PollInterval:      a.cfg.Gemini.PollInterval,
		MaxProcessingWait: a.cfg.Gemini.MaxProcessingWait,
	}, a.logger.Named("analyzer"))

	notifier := notify.NewLINE(a.HTTP, notify.Config{
		Endpoint:         a.cfg.LINE.Endpoint,
		AccessToken:      a.cfg.LINE.AccessToken,
		UserID:           a.cfg.LINE.UserID,
		MaxMessageLength: a.cfg.LINE.MaxMessageLength,
	}, a.logger.Named("notify"))

	chain := acquire.NewChain(a.logger.Named("acquire"),
		&acquire.TranscriptStrategy{Fetcher: a.Transcripts, Languages: a.cfg.Acquire.Languages},
		&acquire.AudioStrategy{Downloader: a.Audio},
	)

	return pipeline.New(pipeline.Config{
		Sources:        a.cfg.Channels,
		DeliveryPolicy: pipeline.DeliveryPolicy(a.cfg.LINE.DeliveryPolicy),
		RunID:          runID,
		MessageHeader:  a.cfg.LINE.Header,
	}, pipeline.Components{
		Discovery: a.Discovery,
		Ledger:    a.Ledger,
		Acquirer:  chain,
		Analyzer:  an,
		Notifier:  notifier,
	}, a.hooks(), a.logger.Named("pipeline")), nil
}

func (a *App) hooks() pipeline.Hooks {
	if a.metrics == nil {
		return pipeline.Hooks{}
	}
	m := a.metrics
	return pipeline.Hooks{
		OnState: func(s pipeline.State) {
			if s.Terminal() {
				m.ObserveState(string(s))
			}
		},
		OnContent: func(k domain.ContentKind) { m.ObserveContent(string(k)) },
		OnStage:   m.ObserveStage,
	}
}

// Close releases everything the App opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
