package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ytdigest/internal/acquire"
	"ytdigest/internal/domain"
	httpc "ytdigest/internal/http"
	"ytdigest/internal/retry"
	"ytdigest/internal/storage"
	"ytdigest/internal/youtube"
)

const (
	channelA = "UCaaaaaaaaaaaaaaaaaaaaaa"
	channelB = "UCbbbbbbbbbbbbbbbbbbbbbb"
)

const channelFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <title>%[1]s</title>
  <entry>
    <id>yt:video:%[2]s</id>
    <yt:videoId>%[2]s</yt:videoId>
    <yt:channelId>%[1]s</yt:channelId>
    <title>Upload %[2]s</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=%[2]s"/>
    <published>2024-03-08T10:00:00+00:00</published>
  </entry>
</feed>`

const captionsJSON3 = `{"events": [{"tStartMs": 0, "segs": [{"utf8": "hello"}, {"utf8": " there"}]}]}`

// youtubeStub serves both channel feeds, fails every caption request for
// vidA with a 500 and serves zh-TW captions for vidB.
func youtubeStub(t *testing.T) (*httptest.Server, func(string) int) {
	t.Helper()
	var mu sync.Mutex
	hits := map[string]int{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/feeds/videos.xml":
			videos := map[string]string{channelA: "vidA", channelB: "vidB"}
			id, ok := videos[q.Get("channel_id")]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprintf(w, channelFeed, q.Get("channel_id"), id)
		case "/api/timedtext":
			mu.Lock()
			hits[q.Get("v")]++
			mu.Unlock()
			switch {
			case q.Get("v") == "vidA":
				w.WriteHeader(http.StatusInternalServerError)
			case q.Get("lang") == "zh-TW" && q.Get("kind") == "":
				w.Write([]byte(captionsJSON3))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	return server, func(v string) int {
		mu.Lock()
		defer mu.Unlock()
		return hits[v]
	}
}

func TestRun_CaptionFailuresDoNotBlockNextSource(t *testing.T) {
	server, hits := youtubeStub(t)

	cfg := httpc.DefaultConfig()
	cfg.Retry = retry.Config{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2}
	cfg.RateLimiter = httpc.RateLimiterConfig{InitialBackoff: time.Millisecond}
	cfg.CircuitBreaker.FailureThreshold = 5
	cfg.CircuitBreaker.RecoveryTimeout = time.Hour
	client := httpc.New(cfg)

	lister := youtube.NewFeedLister(client)
	lister.FeedURL = server.URL + "/feeds/videos.xml"
	captions := youtube.NewTranscriptFetcher(client)
	captions.BaseURL = server.URL + "/api/timedtext"

	chain := acquire.NewChain(nil,
		&acquire.TranscriptStrategy{Fetcher: captions},
		&acquire.AudioStrategy{Downloader: downloaderFunc(func(ctx context.Context, id string) (*domain.Content, error) {
			return nil, errors.New("yt-dlp unavailable")
		})},
	)
	backend := newRecordingBackend()
	notifier := &fakeNotifier{}

	p := New(Config{Sources: []string{channelA, channelB}}, Components{
		Discovery: youtube.NewDiscovery(lister, nil, nil),
		Ledger:    storage.NewLedger(backend, nil),
		Acquirer:  chain,
		Analyzer:  &fakeAnalyzer{summary: "summary"},
		Notifier:  notifier,
	}, Hooks{}, nil)

	report := p.Run(context.Background())

	if got := report.Outcomes[0]; got.State != StateAcquisitionFailed || got.ItemID != "vidA" {
		t.Errorf("A outcome = %+v, want acquisition_failed for vidA", got)
	}
	if got := report.Outcomes[1]; got.State != StateCommitted || got.ItemID != "vidB" || got.Kind != domain.KindTranscript {
		t.Errorf("B outcome = %+v, want committed transcript for vidB", got)
	}
	if len(notifier.messages) != 1 {
		t.Errorf("notifications = %d, want 1", len(notifier.messages))
	}
	// vidA's own circuit opens after the threshold and stops its remaining tracks.
	if n := hits("vidA"); n != 5 {
		t.Errorf("vidA caption requests = %d, want 5", n)
	}
}
