// Package notify delivers summaries to a LINE user through the Messaging
// API push endpoint.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ytdigest/internal/domain"
	httpc "ytdigest/internal/http"
)

const (
	DefaultEndpoint         = "https://api.line.me/v2/bot/message/push"
	DefaultMaxMessageLength = 2000
)

// ErrDeliveryFailed wraps every failed push.
var ErrDeliveryFailed = errors.New("notify: delivery failed")

// Config holds LINE push settings.
type Config struct {
	Endpoint         string
	AccessToken      string
	UserID           string
	MaxMessageLength int
}

// LINENotifier pushes text messages to one user.
type LINENotifier struct {
	client *httpc.Client
	cfg    Config
	logger *zap.Logger
}

// NewLINE creates a notifier. Empty endpoint and length use the defaults.
func NewLINE(client *httpc.Client, cfg Config, logger *zap.Logger) *LINENotifier {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LINENotifier{client: client, cfg: cfg, logger: logger}
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send pushes message, truncated to MaxMessageLength characters.
func (n *LINENotifier) Send(ctx context.Context, message string) error {
	if n.cfg.AccessToken == "" || n.cfg.UserID == "" {
		return fmt.Errorf("%w: missing access token or user id", ErrDeliveryFailed)
	}

	text := Truncate(message, n.cfg.MaxMessageLength)
	if text != message {
		n.logger.Debug("message truncated",
			zap.Int("runes", len([]rune(message))),
			zap.Int("limit", n.cfg.MaxMessageLength))
	}

	body, err := json.Marshal(pushRequest{
		To:       n.cfg.UserID,
		Messages: []textMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrDeliveryFailed, err)
	}

	// The retry key stays fixed across transport retries so LINE can
	// drop duplicates.
	headers := map[string]string{
		"Authorization":    "Bearer " + n.cfg.AccessToken,
		"X-Line-Retry-Key": uuid.NewString(),
	}
	_, err = n.client.Post(ctx, n.cfg.Endpoint, "application/json", body, headers)
	if err != nil {
		// 409 means a request with this retry key was already accepted.
		if httpc.StatusCode(err) == http.StatusConflict {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// DefaultHeader opens every message when no header is configured.
const DefaultHeader = "【新影片分析】"

// Format renders the notification for an analyzed item. An empty header
// means DefaultHeader.
func Format(header string, item domain.Item, summary string) string {
	if header == "" {
		header = DefaultHeader
	}
	label := item.SourceLabel
	if label == "" {
		label = item.ChannelID
	}
	link := item.Link
	if link == "" {
		link = domain.WatchURL(item.ID)
	}
	return fmt.Sprintf("%s%s\n%s\n%s\n\n%s", header, label, item.Title, link, summary)
}
