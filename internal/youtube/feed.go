package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"ytdigest/internal/domain"
	httpc "ytdigest/internal/http"
)

// DefaultFeedURL is YouTube's public per-channel Atom feed.
const DefaultFeedURL = "https://www.youtube.com/feeds/videos.xml"

// FeedLister finds the newest upload through the channel's Atom feed.
// The feed carries only the 15 most recent uploads, which is all discovery needs.
type FeedLister struct {
	client *httpc.Client
	parser *gofeed.Parser
	// FeedURL is the feed endpoint; channel_id is appended as a query parameter.
	FeedURL string
}

// NewFeedLister creates a feed lister that fetches through client.
func NewFeedLister(client *httpc.Client) *FeedLister {
	return &FeedLister{
		client:  client,
		parser:  gofeed.NewParser(),
		FeedURL: DefaultFeedURL,
	}
}

// Latest fetches the feed and returns its most recently published entry.
func (f *FeedLister) Latest(ctx context.Context, channelID string) (*domain.Item, error) {
	feedURL := f.FeedURL + "?channel_id=" + url.QueryEscape(channelID)

	resp, err := f.client.Get(ctx, feedURL)
	if err != nil {
		if httpc.StatusCode(err) == 404 {
			err = ErrChannelNotFound
		}
		return nil, &ListerError{Source: "rss", Channel: channelID, Err: err}
	}

	feed, err := f.parser.ParseString(string(resp.Body))
	if err != nil {
		return nil, &ListerError{Source: "rss", Channel: channelID, Err: fmt.Errorf("parse feed: %w", err)}
	}

	item := newestFeedItem(feed, channelID)
	if item == nil {
		return nil, &ListerError{Source: "rss", Channel: channelID, Err: ErrNoVideos}
	}
	return item, nil
}

// newestFeedItem picks the entry with the latest published time. Entries
// without a parsable id are skipped; ties keep feed order.
func newestFeedItem(feed *gofeed.Feed, channelID string) *domain.Item {
	label := feedLabel(feed)

	var best *domain.Item
	for _, entry := range feed.Items {
		id := feedVideoID(entry)
		if id == "" {
			continue
		}
		item := &domain.Item{
			ID:          id,
			Title:       strings.TrimSpace(entry.Title),
			Link:        entry.Link,
			SourceLabel: label,
			ChannelID:   channelID,
		}
		if item.Link == "" {
			item.Link = domain.WatchURL(id)
		}
		if entry.PublishedParsed != nil {
			item.Published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			item.Published = *entry.UpdatedParsed
		}
		if best == nil || item.Published.After(best.Published) {
			best = item
		}
	}
	return best
}

// feedVideoID reads yt:videoId, falling back to the "yt:video:" entry id.
func feedVideoID(entry *gofeed.Item) string {
	if yt, ok := entry.Extensions["yt"]; ok {
		if ids := yt["videoId"]; len(ids) > 0 && ids[0].Value != "" {
			return strings.TrimSpace(ids[0].Value)
		}
	}
	if strings.HasPrefix(entry.GUID, "yt:video:") {
		return strings.TrimPrefix(entry.GUID, "yt:video:")
	}
	return ""
}

func feedLabel(feed *gofeed.Feed) string {
	if len(feed.Authors) > 0 && feed.Authors[0].Name != "" {
		return feed.Authors[0].Name
	}
	return strings.TrimSpace(feed.Title)
}
