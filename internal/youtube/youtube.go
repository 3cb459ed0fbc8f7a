// Package youtube talks to YouTube: it finds the newest upload of a channel,
// fetches caption transcripts and downloads audio with yt-dlp.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"ytdigest/internal/domain"
)

// Sentinel errors.
var (
	ErrChannelNotFound   = errors.New("youtube: channel not found")
	ErrNoVideos          = errors.New("youtube: channel has no videos")
	ErrInvalidChannel    = errors.New("youtube: invalid channel identifier")
	ErrNoTranscript      = errors.New("youtube: no transcript available")
	ErrDownloadFailed    = errors.New("youtube: download failed")
	ErrYtdlpNotInstalled = errors.New("youtube: yt-dlp not installed")
)

// ListerError wraps errors with context about the discovery operation.
type ListerError struct {
	Source  string // "rss", "api" or "handle"
	Channel string
	Err     error
}

func (e *ListerError) Error() string {
	return "youtube: " + e.Source + " listing " + e.Channel + ": " + e.Err.Error()
}

func (e *ListerError) Unwrap() error { return e.Err }

// Lister returns the newest upload of a channel identified by its UC... id.
type Lister interface {
	Latest(ctx context.Context, channelID string) (*domain.Item, error)
}

// channelIDRegex matches YouTube channel IDs (UC followed by 22 base64 chars).
var channelIDRegex = regexp.MustCompile(`UC[a-zA-Z0-9_-]{22}`)

// handleRegex matches the handle part of "@name" or ".../@name/...".
var handleRegex = regexp.MustCompile(`@([a-zA-Z0-9._-]{3,30})`)

// ParseSource splits a configured source into a channel id or a handle.
// Exactly one of the results is non-empty on success.
func ParseSource(raw string) (channelID, handle string, err error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "@") || strings.Contains(s, "youtube.com/@") {
		if m := handleRegex.FindStringSubmatch(s); m != nil {
			return "", m[1], nil
		}
		return "", "", fmt.Errorf("%w: %q", ErrInvalidChannel, raw)
	}
	if id := channelIDRegex.FindString(s); id != "" {
		if id == s || strings.Contains(s, "youtube.com/channel/"+id) {
			return id, "", nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidChannel, raw)
}

// Discovery resolves configured sources and reports their newest upload.
// Failures never propagate: they are logged and reported as "nothing new".
type Discovery struct {
	lister   Lister
	resolver *HandleResolver
	logger   *zap.Logger
}

// NewDiscovery wires a lister and an optional handle resolver.
func NewDiscovery(lister Lister, resolver *HandleResolver, logger *zap.Logger) *Discovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discovery{lister: lister, resolver: resolver, logger: logger}
}

// Latest returns the most recently published upload of source.
func (d *Discovery) Latest(ctx context.Context, source string) (*domain.Item, bool) {
	item, err := d.Lookup(ctx, source)
	if err != nil {
		d.logger.Warn("discovery failed", zap.String("source", source), zap.Error(err))
		return nil, false
	}
	return item, true
}

// Resolve turns a source into a channel id, resolving handles when needed.
func (d *Discovery) Resolve(ctx context.Context, source string) (string, error) {
	channelID, handle, err := ParseSource(source)
	if err != nil {
		return "", err
	}
	if handle == "" {
		return channelID, nil
	}
	if d.resolver == nil {
		return "", &ListerError{Source: "handle", Channel: source, Err: ErrInvalidChannel}
	}
	return d.resolver.Resolve(ctx, handle)
}

// Lookup is Latest with the failure returned instead of logged.
func (d *Discovery) Lookup(ctx context.Context, source string) (*domain.Item, error) {
	channelID, err := d.Resolve(ctx, source)
	if err != nil {
		return nil, err
	}
	item, err := d.lister.Latest(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if item.SourceLabel == "" {
		item.SourceLabel = source
	}
	return item, nil
}
