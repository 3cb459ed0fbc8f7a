package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ytdigest/internal/acquire"
	"ytdigest/internal/domain"
	"ytdigest/internal/storage"
	"ytdigest/internal/youtube"
)

type fakeDiscovery struct {
	items map[string]*domain.Item
	panic map[string]bool
}

func (f *fakeDiscovery) Latest(ctx context.Context, source string) (*domain.Item, bool) {
	if f.panic[source] {
		panic("feed parser exploded")
	}
	item, ok := f.items[source]
	return item, ok
}

// recordingBackend is a storage.Backend that records every append.
type recordingBackend struct {
	markers   map[string]domain.Marker
	appended  []domain.Marker
	appendErr error
}

func newRecordingBackend(ids ...string) *recordingBackend {
	b := &recordingBackend{markers: make(map[string]domain.Marker)}
	for _, id := range ids {
		b.markers[id] = domain.Marker{ItemID: id, Status: domain.StatusProcessed}
	}
	return b
}

func (b *recordingBackend) Processed(ctx context.Context, id string) (bool, error) {
	_, ok := b.markers[id]
	return ok, nil
}

func (b *recordingBackend) Append(ctx context.Context, m domain.Marker) error {
	if b.appendErr != nil {
		return b.appendErr
	}
	b.appended = append(b.appended, m)
	b.markers[m.ItemID] = m
	return nil
}

func (b *recordingBackend) Close() error { return nil }

type fakeAcquirer struct {
	content func() (*domain.Content, error)
	calls   int
}

func (f *fakeAcquirer) Acquire(ctx context.Context, item domain.Item) (*domain.Content, error) {
	f.calls++
	return f.content()
}

type fakeAnalyzer struct {
	summary string
	err     error
	calls   int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, c *domain.Content) (string, error) {
	f.calls++
	return f.summary, f.err
}

type fakeNotifier struct {
	messages []string
	err      error
}

func (f *fakeNotifier) Send(ctx context.Context, message string) error {
	f.messages = append(f.messages, message)
	return f.err
}

func transcriptContent() (*domain.Content, error) {
	return domain.NewTranscript("some words", "en"), nil
}

func item(id, title string) *domain.Item {
	return &domain.Item{ID: id, Title: title, Link: domain.WatchURL(id), SourceLabel: "Channel " + id}
}

type harness struct {
	discovery *fakeDiscovery
	backend   *recordingBackend
	acquirer  *fakeAcquirer
	analyzer  *fakeAnalyzer
	notifier  *fakeNotifier
	states    []State
}

func newHarness() *harness {
	return &harness{
		discovery: &fakeDiscovery{items: map[string]*domain.Item{}, panic: map[string]bool{}},
		backend:   newRecordingBackend(),
		acquirer:  &fakeAcquirer{content: transcriptContent},
		analyzer:  &fakeAnalyzer{summary: "the summary"},
		notifier:  &fakeNotifier{},
	}
}

func (h *harness) pipeline(cfg Config, logger *zap.Logger) *Pipeline {
	return New(cfg, Components{
		Discovery: h.discovery,
		Ledger:    storage.NewLedger(h.backend, nil),
		Acquirer:  h.acquirer,
		Analyzer:  h.analyzer,
		Notifier:  h.notifier,
	}, Hooks{OnState: func(s State) { h.states = append(h.states, s) }}, logger)
}

func TestRun_HappyPath(t *testing.T) {
	h := newHarness()
	h.discovery.items["UC1"] = item("v1", "First talk")

	report := h.pipeline(Config{Sources: []string{"UC1"}}, nil).Run(context.Background())

	if len(report.Outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(report.Outcomes))
	}
	out := report.Outcomes[0]
	if out.State != StateCommitted || out.Err != nil {
		t.Fatalf("outcome = %+v, want committed", out)
	}
	if out.Kind != domain.KindTranscript || out.ItemID != "v1" {
		t.Errorf("outcome = %+v", out)
	}

	wantStates := []State{StateDiscovered, StateDedupChecked, StateContentAcquired, StateAnalyzed, StateNotified, StateCommitted}
	if strings.Join(statesToStrings(h.states), ",") != strings.Join(statesToStrings(wantStates), ",") {
		t.Errorf("states = %v, want %v", h.states, wantStates)
	}

	if len(h.backend.appended) != 1 {
		t.Fatalf("appends = %d, want 1", len(h.backend.appended))
	}
	m := h.backend.appended[0]
	if m.ItemID != "v1" || m.Title != "First talk" || m.Status != domain.StatusProcessed {
		t.Errorf("marker = %+v", m)
	}
	if m.ProcessedAt.IsZero() {
		t.Error("marker has no timestamp")
	}
	if len(h.notifier.messages) != 1 || !strings.Contains(h.notifier.messages[0], "the summary") {
		t.Errorf("messages = %q", h.notifier.messages)
	}
}

func TestRun_MessageHeader(t *testing.T) {
	h := newHarness()
	h.discovery.items["UC1"] = item("v1", "First talk")

	h.pipeline(Config{Sources: []string{"UC1"}, MessageHeader: "[New video] "}, nil).Run(context.Background())

	if len(h.notifier.messages) != 1 || !strings.HasPrefix(h.notifier.messages[0], "[New video] Channel v1\nFirst talk\n") {
		t.Errorf("messages = %q", h.notifier.messages)
	}
}

func statesToStrings(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func TestRun_Idempotent(t *testing.T) {
	h := newHarness()
	h.discovery.items["UC1"] = item("v1", "First talk")
	p := h.pipeline(Config{Sources: []string{"UC1"}}, nil)

	p.Run(context.Background())
	second := p.Run(context.Background())

	if second.Outcomes[0].State != StateSkipped {
		t.Errorf("second run state = %s, want skipped", second.Outcomes[0].State)
	}
	if len(h.notifier.messages) != 1 {
		t.Errorf("notifications = %d, want 1", len(h.notifier.messages))
	}
	if len(h.backend.appended) != 1 {
		t.Errorf("appends = %d, want 1", len(h.backend.appended))
	}
}

func TestRun_NoMarkOnFailure(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness)
		wantState State
		wantSends int
	}{
		{
			name: "acquisition failed",
			setup: func(h *harness) {
				h.acquirer.content = func() (*domain.Content, error) { return nil, acquire.ErrContentUnavailable }
			},
			wantState: StateAcquisitionFailed,
		},
		{
			name:      "analysis failed",
			setup:     func(h *harness) { h.analyzer.err = errors.New("model overloaded") },
			wantState: StateAnalysisFailed,
		},
		{
			name:      "strict delivery failed",
			setup:     func(h *harness) { h.notifier.err = errors.New("line down") },
			wantState: StateDeliveryFailed,
			wantSends: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.discovery.items["UC1"] = item("v1", "t")
			tt.setup(h)

			report := h.pipeline(Config{Sources: []string{"UC1"}, DeliveryPolicy: Strict}, nil).Run(context.Background())

			out := report.Outcomes[0]
			if out.State != tt.wantState {
				t.Errorf("state = %s, want %s", out.State, tt.wantState)
			}
			if out.Err == nil {
				t.Error("failed outcome carries no error")
			}
			if len(h.backend.appended) != 0 {
				t.Errorf("marker written on failure: %+v", h.backend.appended)
			}
			if len(h.notifier.messages) != tt.wantSends {
				t.Errorf("notifications = %d, want %d", len(h.notifier.messages), tt.wantSends)
			}
		})
	}
}

func TestRun_AcquisitionFailureSkipsAnalyzer(t *testing.T) {
	h := newHarness()
	h.discovery.items["UC1"] = item("v1", "t")
	h.acquirer.content = func() (*domain.Content, error) { return nil, errors.New("nothing") }

	h.pipeline(Config{Sources: []string{"UC1"}}, nil).Run(context.Background())
	if h.analyzer.calls != 0 {
		t.Errorf("analyzer called %d times after acquisition failure", h.analyzer.calls)
	}
}

func TestRun_BestEffortDeliveryStillCommits(t *testing.T) {
	h := newHarness()
	h.discovery.items["UC1"] = item("v1", "t")
	deliveryErr := errors.New("line down")
	h.notifier.err = deliveryErr

	report := h.pipeline(Config{Sources: []string{"UC1"}}, nil).Run(context.Background())

	out := report.Outcomes[0]
	if out.State != StateCommitted {
		t.Fatalf("state = %s, want committed", out.State)
	}
	if !errors.Is(out.Err, deliveryErr) {
		t.Errorf("outcome error = %v, want the delivery error", out.Err)
	}
	if len(h.backend.appended) != 1 {
		t.Errorf("appends = %d, want 1", len(h.backend.appended))
	}
}

func TestRun_CommitFailed(t *testing.T) {
	h := newHarness()
	h.discovery.items["UC1"] = item("v1", "t")
	h.backend.appendErr = errors.New("sheet quota")

	report := h.pipeline(Config{Sources: []string{"UC1"}}, nil).Run(context.Background())
	if got := report.Outcomes[0].State; got != StateCommitFailed {
		t.Errorf("state = %s, want commit_failed", got)
	}
	if len(h.notifier.messages) != 1 {
		t.Error("notification should precede the failed commit")
	}
}

func TestRun_AudioMarkerAndRelease(t *testing.T) {
	h := newHarness()
	h.discovery.items["UC1"] = item("v1", "t")
	dir := filepath.Join(t.TempDir(), "stage")
	h.acquirer.content = func() (*domain.Content, error) {
		os.MkdirAll(dir, 0755)
		path := filepath.Join(dir, "v1.mp3")
		os.WriteFile(path, []byte("ID3"), 0644)
		return domain.NewAudio(path, dir, "")
	}

	report := h.pipeline(Config{Sources: []string{"UC1"}}, nil).Run(context.Background())

	if report.Outcomes[0].Kind != domain.KindAudio {
		t.Errorf("kind = %q, want audio", report.Outcomes[0].Kind)
	}
	if h.backend.appended[0].Status != domain.StatusProcessedAudio {
		t.Errorf("status = %q, want %q", h.backend.appended[0].Status, domain.StatusProcessedAudio)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("staged audio not released after the run")
	}
}

func TestRun_ReleasesAudioOnAnalysisFailure(t *testing.T) {
	h := newHarness()
	h.discovery.items["UC1"] = item("v1", "t")
	h.analyzer.err = errors.New("processing failed")
	dir := filepath.Join(t.TempDir(), "stage")
	h.acquirer.content = func() (*domain.Content, error) {
		os.MkdirAll(dir, 0755)
		path := filepath.Join(dir, "v1.mp3")
		os.WriteFile(path, []byte("ID3"), 0644)
		return domain.NewAudio(path, dir, "")
	}

	h.pipeline(Config{Sources: []string{"UC1"}}, nil).Run(context.Background())
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("staged audio not released after analysis failure")
	}
}

func TestRun_SourceIsolation(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := newHarness()
	h.discovery.panic["UCbad"] = true
	h.discovery.items["UCgood"] = item("v2", "Good")

	report := h.pipeline(Config{Sources: []string{"UCbad", "UCempty", "UCgood"}}, zap.New(core)).Run(context.Background())

	if len(report.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(report.Outcomes))
	}
	if report.Outcomes[0].State != StateSourceFailed || report.Outcomes[0].Err == nil {
		t.Errorf("panicking source outcome = %+v", report.Outcomes[0])
	}
	if report.Outcomes[1].State != StateNoItem {
		t.Errorf("empty source state = %s, want no_item", report.Outcomes[1].State)
	}
	if report.Outcomes[2].State != StateCommitted {
		t.Errorf("good source state = %s, want committed", report.Outcomes[2].State)
	}
	if logs.FilterMessage("source panicked").Len() != 1 {
		t.Errorf("panic not logged: %v", logs.All())
	}
	if report.Failures() != 1 || report.Count(StateCommitted) != 1 {
		t.Errorf("Failures() = %d, Count(committed) = %d", report.Failures(), report.Count(StateCommitted))
	}
}

func TestRun_CanceledContext(t *testing.T) {
	h := newHarness()
	h.discovery.items["UC1"] = item("v1", "t")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := h.pipeline(Config{Sources: []string{"UC1"}}, nil).Run(ctx)
	if out := report.Outcomes[0]; out.State != StateSourceFailed || !errors.Is(out.Err, context.Canceled) {
		t.Errorf("outcome = %+v", out)
	}
	if h.acquirer.calls != 0 {
		t.Error("work started after cancellation")
	}
}

// captionsOnlyIn serves a transcript for a single language.
type captionsOnlyIn struct {
	lang  string
	tried []string
}

func (c *captionsOnlyIn) Fetch(ctx context.Context, videoID string, languages []string) (*youtube.Transcript, error) {
	c.tried = append(c.tried, languages...)
	for _, l := range languages {
		if l == c.lang {
			return &youtube.Transcript{Text: "generic words", Language: l}, nil
		}
	}
	return nil, youtube.ErrNoTranscript
}

// TestRun_TwoSourceScenario: A's latest item is already marked, B's has a
// transcript only in the last-resort language.
func TestRun_TwoSourceScenario(t *testing.T) {
	discovery := &fakeDiscovery{items: map[string]*domain.Item{
		"A": item("v1", "Old news"),
		"B": item("v2", "Fresh talk"),
	}}
	backend := newRecordingBackend("v1")
	analyzer := &fakeAnalyzer{summary: "B summary"}
	notifier := &fakeNotifier{}
	noAudio := &fakeAcquirer{content: func() (*domain.Content, error) { return nil, errors.New("unused") }}
	captions := &captionsOnlyIn{lang: "en"}

	chain := acquire.NewChain(nil,
		&acquire.TranscriptStrategy{Fetcher: captions, Languages: youtube.DefaultLanguages},
		&acquire.AudioStrategy{Downloader: downloaderFunc(func(ctx context.Context, id string) (*domain.Content, error) {
			return noAudio.Acquire(ctx, domain.Item{ID: id})
		})},
	)

	p := New(Config{Sources: []string{"A", "B"}}, Components{
		Discovery: discovery,
		Ledger:    storage.NewLedger(backend, nil),
		Acquirer:  chain,
		Analyzer:  analyzer,
		Notifier:  notifier,
	}, Hooks{}, nil)

	report := p.Run(context.Background())

	if report.Outcomes[0].State != StateSkipped {
		t.Errorf("A state = %s, want skipped", report.Outcomes[0].State)
	}
	if report.Outcomes[1].State != StateCommitted || report.Outcomes[1].Kind != domain.KindTranscript {
		t.Errorf("B outcome = %+v", report.Outcomes[1])
	}
	if analyzer.calls != 1 {
		t.Errorf("analyzer calls = %d, want 1", analyzer.calls)
	}
	if noAudio.calls != 0 {
		t.Error("audio fallback used although a transcript existed")
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("notifier calls = %d, want 1", len(notifier.messages))
	}
	msg := notifier.messages[0]
	for _, want := range []string{"Fresh talk", domain.WatchURL("v2"), "B summary"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
	if len(backend.appended) != 1 {
		t.Fatalf("commits = %d, want 1", len(backend.appended))
	}
	if m := backend.appended[0]; m.ItemID != "v2" || m.Title != "Fresh talk" || m.Status != "Processed" {
		t.Errorf("commit = %+v", m)
	}
}

type downloaderFunc func(ctx context.Context, id string) (*domain.Content, error)

func (f downloaderFunc) Download(ctx context.Context, id string) (*domain.Content, error) {
	return f(ctx, id)
}

func TestStateClassification(t *testing.T) {
	if StateNotified.Terminal() || StateDiscovered.Terminal() {
		t.Error("intermediate states reported terminal")
	}
	if !StateSkipped.Terminal() || StateSkipped.Failed() {
		t.Error("skipped should be terminal and not failed")
	}
	if !StateCommitFailed.Failed() {
		t.Error("commit_failed should be a failure")
	}
}

func TestReport_WriteTable(t *testing.T) {
	r := Report{Outcomes: []Outcome{
		{Source: "UC1", ItemID: "v1", State: StateCommitted, Kind: domain.KindAudio},
		{Source: "UC2", State: StateNoItem},
		{Source: "UC3", ItemID: "v3", State: StateAnalysisFailed, Err: errors.New("boom")},
	}}
	var buf bytes.Buffer
	if err := r.WriteTable(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"SOURCE", "committed", "audio", "no_item", "boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestHooks_Stages(t *testing.T) {
	h := newHarness()
	h.discovery.items["UC1"] = item("v1", "t")
	stages := map[string]int{}
	kinds := map[domain.ContentKind]int{}

	p := New(Config{Sources: []string{"UC1"}}, Components{
		Discovery: h.discovery,
		Ledger:    storage.NewLedger(h.backend, nil),
		Acquirer:  h.acquirer,
		Analyzer:  h.analyzer,
		Notifier:  h.notifier,
	}, Hooks{
		OnStage:   func(stage string, d time.Duration) { stages[stage]++ },
		OnContent: func(k domain.ContentKind) { kinds[k]++ },
	}, nil)
	p.Run(context.Background())

	for _, s := range []string{"discover", "acquire", "analyze", "notify", "commit"} {
		if stages[s] != 1 {
			t.Errorf("stage %q observed %d times, want 1", s, stages[s])
		}
	}
	if kinds[domain.KindTranscript] != 1 {
		t.Errorf("content kinds = %v", kinds)
	}
}
