package youtube

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	httpc "ytdigest/internal/http"
)

// HandleResolver maps @handles to channel ids by reading the channel page.
type HandleResolver struct {
	client *httpc.Client
	// BaseURL is the site root; the handle page is BaseURL + "/@" + handle.
	BaseURL string

	mu    sync.Mutex
	cache map[string]string
}

// NewHandleResolver creates a resolver that fetches through client.
func NewHandleResolver(client *httpc.Client) *HandleResolver {
	return &HandleResolver{
		client:  client,
		BaseURL: "https://www.youtube.com",
		cache:   make(map[string]string),
	}
}

// Resolve returns the channel id behind handle (with or without the "@").
func (h *HandleResolver) Resolve(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(handle, "@")

	h.mu.Lock()
	id, ok := h.cache[handle]
	h.mu.Unlock()
	if ok {
		return id, nil
	}

	resp, err := h.client.Get(ctx, h.BaseURL+"/@"+url.PathEscape(handle))
	if err != nil {
		if httpc.StatusCode(err) == 404 {
			err = ErrChannelNotFound
		}
		return "", &ListerError{Source: "handle", Channel: "@" + handle, Err: err}
	}

	id, err = channelIDFromPage(resp.Body)
	if err != nil {
		return "", &ListerError{Source: "handle", Channel: "@" + handle, Err: err}
	}

	h.mu.Lock()
	h.cache[handle] = id
	h.mu.Unlock()
	return id, nil
}

// channelIDFromPage reads the channel id from the page's itemprop metadata,
// falling back to the canonical link.
func channelIDFromPage(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse channel page: %w", err)
	}

	candidates := []string{
		doc.Find(`meta[itemprop="channelId"]`).AttrOr("content", ""),
		doc.Find(`meta[itemprop="identifier"]`).AttrOr("content", ""),
		doc.Find(`link[rel="canonical"]`).AttrOr("href", ""),
		doc.Find(`meta[property="og:url"]`).AttrOr("content", ""),
	}
	for _, c := range candidates {
		if id := channelIDRegex.FindString(c); id != "" {
			return id, nil
		}
	}
	return "", ErrChannelNotFound
}
