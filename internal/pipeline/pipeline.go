// Package pipeline runs one pass over the configured sources: discover the
// newest item, skip it if already processed, otherwise acquire, analyze,
// notify and commit it.
//
// Each source is isolated. A failure or panic while handling one source is
// recorded in the report and the next source still runs. An item is only
// committed to the ledger once the notification step has been reached, so
// any earlier failure leaves it eligible for the next run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"ytdigest/internal/domain"
	"ytdigest/internal/notify"
)

// State is a step of the per-item state machine.
type State string

const (
	StateDiscovered        State = "discovered"
	StateDedupChecked      State = "dedup_checked"
	StateSkipped           State = "skipped"
	StateContentAcquired   State = "content_acquired"
	StateAcquisitionFailed State = "acquisition_failed"
	StateAnalyzed          State = "analyzed"
	StateAnalysisFailed    State = "analysis_failed"
	StateNotified          State = "notified"
	StateDeliveryFailed    State = "delivery_failed"
	StateCommitted         State = "committed"
	StateCommitFailed      State = "commit_failed"
	StateNoItem            State = "no_item"
	StateSourceFailed      State = "source_failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateSkipped, StateAcquisitionFailed, StateAnalysisFailed, StateDeliveryFailed,
		StateCommitted, StateCommitFailed, StateNoItem, StateSourceFailed:
		return true
	}
	return false
}

// Failed reports whether s is a terminal failure.
func (s State) Failed() bool {
	switch s {
	case StateAcquisitionFailed, StateAnalysisFailed, StateDeliveryFailed,
		StateCommitFailed, StateSourceFailed:
		return true
	}
	return false
}

// DeliveryPolicy decides whether a failed notification still commits.
type DeliveryPolicy string

const (
	// BestEffort logs a failed delivery and commits anyway.
	BestEffort DeliveryPolicy = "best_effort"
	// Strict leaves the item uncommitted so the next run retries it.
	Strict DeliveryPolicy = "strict"
)

// Discoverer finds the newest item of a source; false means none.
type Discoverer interface {
	Latest(ctx context.Context, source string) (*domain.Item, bool)
}

// Ledger is the dedup store.
type Ledger interface {
	IsProcessed(ctx context.Context, id string) bool
	Commit(ctx context.Context, m domain.Marker) error
}

// Acquirer produces content for an item.
type Acquirer interface {
	Acquire(ctx context.Context, item domain.Item) (*domain.Content, error)
}

// Analyzer summarizes content.
type Analyzer interface {
	Analyze(ctx context.Context, c *domain.Content) (string, error)
}

// Notifier delivers a message.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Components are the collaborators the pipeline drives.
type Components struct {
	Discovery Discoverer
	Ledger    Ledger
	Acquirer  Acquirer
	Analyzer  Analyzer
	Notifier  Notifier
}

// Hooks observe the run. Every field is optional.
type Hooks struct {
	OnState   func(state State)
	OnContent func(kind domain.ContentKind)
	OnStage   func(stage string, d time.Duration)
}

func (h Hooks) state(s State) {
	if h.OnState != nil {
		h.OnState(s)
	}
}

func (h Hooks) content(k domain.ContentKind) {
	if h.OnContent != nil {
		h.OnContent(k)
	}
}

func (h Hooks) stage(name string, start time.Time) {
	if h.OnStage != nil {
		h.OnStage(name, time.Since(start))
	}
}

// Config holds per-run settings.
type Config struct {
	Sources        []string
	DeliveryPolicy DeliveryPolicy
	RunID          string
	// MessageHeader opens each notification; empty means notify.DefaultHeader.
	MessageHeader string
}

// Pipeline processes sources sequentially.
type Pipeline struct {
	cfg    Config
	c      Components
	hooks  Hooks
	logger *zap.Logger
}

// New creates a pipeline. An empty delivery policy means BestEffort.
func New(cfg Config, c Components, hooks Hooks, logger *zap.Logger) *Pipeline {
	if cfg.DeliveryPolicy == "" {
		cfg.DeliveryPolicy = BestEffort
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RunID != "" {
		logger = logger.With(zap.String("run_id", cfg.RunID))
	}
	return &Pipeline{cfg: cfg, c: c, hooks: hooks, logger: logger}
}

// Run processes every source once, in order.
func (p *Pipeline) Run(ctx context.Context) Report {
	report := Report{RunID: p.cfg.RunID, Started: time.Now()}
	p.logger.Info("run started", zap.Int("sources", len(p.cfg.Sources)))

	for _, source := range p.cfg.Sources {
		if err := ctx.Err(); err != nil {
			report.Outcomes = append(report.Outcomes, Outcome{Source: source, State: StateSourceFailed, Err: err})
			continue
		}
		report.Outcomes = append(report.Outcomes, p.processSource(ctx, source))
	}

	report.Finished = time.Now()
	p.logger.Info("run finished",
		zap.Int("committed", report.Count(StateCommitted)),
		zap.Int("skipped", report.Count(StateSkipped)),
		zap.Int("failed", report.Failures()),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)))
	return report
}

// processSource never panics; a panic becomes a source_failed outcome.
func (p *Pipeline) processSource(ctx context.Context, source string) (out Outcome) {
	out.Source = source
	log := p.logger.With(zap.String("source", source))

	defer func() {
		if r := recover(); r != nil {
			out.State = StateSourceFailed
			out.Err = fmt.Errorf("panic: %v", r)
			p.hooks.state(StateSourceFailed)
			log.Error("source panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	start := time.Now()
	item, ok := p.c.Discovery.Latest(ctx, source)
	p.hooks.stage("discover", start)
	if !ok || item == nil {
		out.State = StateNoItem
		p.hooks.state(StateNoItem)
		log.Info("no item discovered")
		return out
	}

	out.ItemID, out.Title = item.ID, item.Title
	p.processItem(ctx, *item, &out, log.With(zap.String("item_id", item.ID)))
	return out
}

func (p *Pipeline) processItem(ctx context.Context, item domain.Item, out *Outcome, log *zap.Logger) {
	set := func(s State, err error) {
		out.State, out.Err = s, err
		p.hooks.state(s)
	}
	set(StateDiscovered, nil)

	if p.c.Ledger.IsProcessed(ctx, item.ID) {
		set(StateSkipped, nil)
		log.Info("item already processed")
		return
	}
	set(StateDedupChecked, nil)

	start := time.Now()
	content, err := p.c.Acquirer.Acquire(ctx, item)
	p.hooks.stage("acquire", start)
	if err != nil {
		set(StateAcquisitionFailed, err)
		log.Warn("content acquisition failed", zap.Error(err))
		return
	}
	defer func() {
		if err := content.Release(); err != nil {
			log.Warn("failed to release staged content", zap.Error(err))
		}
	}()
	out.Kind = content.Kind
	p.hooks.content(content.Kind)
	set(StateContentAcquired, nil)
	log.Info("content acquired", zap.String("kind", string(content.Kind)), zap.Int64("size", content.Size))

	start = time.Now()
	summary, err := p.c.Analyzer.Analyze(ctx, content)
	p.hooks.stage("analyze", start)
	if err != nil {
		set(StateAnalysisFailed, err)
		log.Warn("analysis failed", zap.Error(err))
		return
	}
	set(StateAnalyzed, nil)

	start = time.Now()
	err = p.c.Notifier.Send(ctx, notify.Format(p.cfg.MessageHeader, item, summary))
	p.hooks.stage("notify", start)
	if err != nil {
		if p.cfg.DeliveryPolicy == Strict {
			set(StateDeliveryFailed, err)
			log.Warn("delivery failed, item left uncommitted", zap.Error(err))
			return
		}
		log.Warn("delivery failed, committing anyway", zap.Error(err))
	}
	set(StateNotified, nil)
	deliveryErr := err

	start = time.Now()
	err = p.c.Ledger.Commit(ctx, domain.Marker{
		ItemID: item.ID,
		Title:  item.Title,
		Status: domain.StatusFor(content.Kind),
	})
	p.hooks.stage("commit", start)
	if err != nil {
		set(StateCommitFailed, errors.Join(deliveryErr, err))
		log.Error("commit failed", zap.Error(err))
		return
	}
	set(StateCommitted, deliveryErr)
	log.Info("item committed", zap.String("kind", string(content.Kind)))
}
