package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	httpc "ytdigest/internal/http"
)

// DefaultTimedtextURL is YouTube's caption endpoint.
const DefaultTimedtextURL = "https://www.youtube.com/api/timedtext"

// DefaultLanguages is the caption preference, most specific first.
var DefaultLanguages = []string{"zh-TW", "zh-Hant", "zh", "en"}

// Transcript is caption text for one video.
type Transcript struct {
	Text     string
	Language string
	// Generated reports whether the captions were auto-generated (ASR).
	Generated bool
}

// TranscriptFetcher reads captions from the timedtext endpoint in json3 format.
type TranscriptFetcher struct {
	client  *httpc.Client
	BaseURL string
}

// NewTranscriptFetcher creates a fetcher that requests through client.
func NewTranscriptFetcher(client *httpc.Client) *TranscriptFetcher {
	return &TranscriptFetcher{client: client, BaseURL: DefaultTimedtextURL}
}

// Fetch tries each language in order, manual captions before auto-generated
// ones, and returns the first non-empty transcript. When nothing matches the
// error wraps ErrNoTranscript together with every per-track failure.
func (f *TranscriptFetcher) Fetch(ctx context.Context, videoID string, languages []string) (*Transcript, error) {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	// Track failures trip a circuit for this video only.
	ctx = httpc.WithCircuit(ctx, "timedtext/"+videoID)

	errs := []error{ErrNoTranscript}
	for _, lang := range languages {
		for _, generated := range []bool{false, true} {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			text, err := f.fetchTrack(ctx, videoID, lang, generated)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if text == "" {
				continue
			}
			return &Transcript{Text: text, Language: lang, Generated: generated}, nil
		}
	}
	return nil, fmt.Errorf("video %s: %w", videoID, errors.Join(errs...))
}

func (f *TranscriptFetcher) fetchTrack(ctx context.Context, videoID, lang string, generated bool) (string, error) {
	params := url.Values{}
	params.Set("v", videoID)
	params.Set("lang", lang)
	params.Set("fmt", "json3")
	if generated {
		params.Set("kind", "asr")
	}

	resp, err := f.client.Get(ctx, f.BaseURL+"?"+params.Encode())
	if err != nil {
		return "", fmt.Errorf("timedtext %s: %w", lang, err)
	}
	if len(strings.TrimSpace(string(resp.Body))) == 0 {
		return "", nil
	}
	return parseJSON3(resp.Body)
}

// json3 is the timedtext response shape. Events without segments carry
// window metadata only.
type json3 struct {
	Events []struct {
		TStartMs int64 `json:"tStartMs"`
		Segs     []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// parseJSON3 joins every caption event into one line of text, events
// separated by a single space.
func parseJSON3(data []byte) (string, error) {
	var doc json3
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse json3: %w", err)
	}

	parts := make([]string, 0, len(doc.Events))
	for _, ev := range doc.Events {
		var sb strings.Builder
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}
		if text := strings.Join(strings.Fields(sb.String()), " "); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
