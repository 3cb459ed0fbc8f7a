// Package analyzer asks a generative model to summarize acquired content.
//
// Transcripts are sent inline with the prompt. Audio is uploaded first, then
// polled until the service has finished processing it, then referenced by
// URI in the generation request.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"ytdigest/internal/domain"
)

var (
	// ErrAnalysisFailed wraps every analyzer failure.
	ErrAnalysisFailed = errors.New("analyzer: analysis failed")
	// ErrEmptySummary indicates the model returned no text.
	ErrEmptySummary = errors.New("analyzer: empty summary")
	// ErrProcessingTimeout indicates uploaded media stayed in the processing
	// state longer than MaxProcessingWait.
	ErrProcessingTimeout = errors.New("analyzer: media processing timed out")
	// ErrProcessingFailed indicates the service rejected uploaded media.
	ErrProcessingFailed = errors.New("analyzer: media processing failed")
)

// Model is the subset of the Gemini API the analyzer drives.
type Model interface {
	Generate(ctx context.Context, parts ...genai.Part) (string, error)
	Upload(ctx context.Context, path, mimeType string) (*genai.File, error)
	GetFile(ctx context.Context, name string) (*genai.File, error)
	DeleteFile(ctx context.Context, name string) error
}

// DefaultLeadIn separates the prompt from the transcript text.
const DefaultLeadIn = "以下是逐字稿內容："

// Config holds analyzer settings.
type Config struct {
	Prompt            string
	LeadIn            string
	PollInterval      time.Duration
	MaxProcessingWait time.Duration
}

// Analyzer produces summaries.
type Analyzer struct {
	model  Model
	cfg    Config
	logger *zap.Logger
}

// New creates an Analyzer. Zero durations fall back to 5s polling and a
// 5 minute processing limit; an empty LeadIn means DefaultLeadIn.
func New(model Model, cfg Config, logger *zap.Logger) *Analyzer {
	if cfg.LeadIn == "" {
		cfg.LeadIn = DefaultLeadIn
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxProcessingWait <= 0 {
		cfg.MaxProcessingWait = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{model: model, cfg: cfg, logger: logger}
}

// Analyze returns the model's summary of c.
func (a *Analyzer) Analyze(ctx context.Context, c *domain.Content) (string, error) {
	var (
		summary string
		err     error
	)
	switch {
	case c == nil:
		err = errors.New("no content")
	case c.Kind == domain.KindTranscript:
		summary, err = a.model.Generate(ctx, genai.Text(TranscriptPrompt(a.cfg.Prompt, a.cfg.LeadIn, c.Text)))
	case c.Kind == domain.KindAudio:
		summary, err = a.analyzeAudio(ctx, c)
	default:
		err = fmt.Errorf("unsupported content kind %q", c.Kind)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("%w: %w", ErrAnalysisFailed, ErrEmptySummary)
	}
	return summary, nil
}

// TranscriptPrompt builds the single-shot prompt for transcript content.
func TranscriptPrompt(prompt, leadIn, transcript string) string {
	return prompt + "\n\n" + leadIn + "\n" + transcript
}

func (a *Analyzer) analyzeAudio(ctx context.Context, c *domain.Content) (string, error) {
	f, err := a.model.Upload(ctx, c.Path, c.MIMEType)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer a.deleteRemote(ctx, f.Name)

	a.logger.Debug("audio uploaded",
		zap.String("file", f.Name), zap.Int64("size", c.Size))

	f, err = a.awaitActive(ctx, f)
	if err != nil {
		return "", err
	}
	return a.model.Generate(ctx, genai.Text(a.cfg.Prompt), genai.FileData{MIMEType: f.MIMEType, URI: f.URI})
}

// awaitActive polls until f leaves the processing state or the wait bound
// expires.
func (a *Analyzer) awaitActive(ctx context.Context, f *genai.File) (*genai.File, error) {
	deadline := time.NewTimer(a.cfg.MaxProcessingWait)
	defer deadline.Stop()
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for f.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w after %s", ErrProcessingTimeout, a.cfg.MaxProcessingWait)
		case <-ticker.C:
		}

		next, err := a.model.GetFile(ctx, f.Name)
		if err != nil {
			return nil, fmt.Errorf("get file %s: %w", f.Name, err)
		}
		f = next
	}

	switch f.State {
	case genai.FileStateActive:
		return f, nil
	case genai.FileStateFailed:
		return nil, fmt.Errorf("%w: %s", ErrProcessingFailed, f.Name)
	default:
		return nil, fmt.Errorf("%w: %s in state %v", ErrProcessingFailed, f.Name, f.State)
	}
}

func (a *Analyzer) deleteRemote(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := a.model.DeleteFile(ctx, name); err != nil {
		a.logger.Warn("failed to delete uploaded file", zap.String("file", name), zap.Error(err))
	}
}
