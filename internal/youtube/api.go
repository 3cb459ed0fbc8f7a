package youtube

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"ytdigest/internal/domain"
	"ytdigest/internal/retry"
)

// APILister finds the newest upload with the YouTube Data API v3: the
// channel's uploads playlist lists newest first.
type APILister struct {
	service     *ytapi.Service
	RetryConfig retry.Config
}

// NewAPILister creates an API lister. Extra options are appended after the
// API key, which lets tests point the client at a local endpoint.
func NewAPILister(ctx context.Context, apiKey string, opts ...option.ClientOption) (*APILister, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube: api key required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &APILister{service: service, RetryConfig: retry.DefaultConfig()}, nil
}

// Latest returns the first item of the channel's uploads playlist.
func (a *APILister) Latest(ctx context.Context, channelID string) (*domain.Item, error) {
	playlistID, channelName, err := a.uploadsPlaylist(ctx, channelID)
	if err != nil {
		return nil, &ListerError{Source: "api", Channel: channelID, Err: err}
	}

	var item *domain.Item
	err = retry.Do(ctx, a.RetryConfig, apiErrorClassifier, func(ctx context.Context) error {
		resp, err := a.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(5).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		item = newestPlaylistItem(resp.Items, channelID, channelName)
		return nil
	})
	if err != nil {
		return nil, &ListerError{Source: "api", Channel: channelID, Err: err}
	}
	if item == nil {
		return nil, &ListerError{Source: "api", Channel: channelID, Err: ErrNoVideos}
	}
	return item, nil
}

func (a *APILister) uploadsPlaylist(ctx context.Context, channelID string) (playlistID, channelName string, err error) {
	err = retry.Do(ctx, a.RetryConfig, apiErrorClassifier, func(ctx context.Context) error {
		resp, err := a.service.Channels.List([]string{"contentDetails", "snippet"}).
			Id(channelID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return ErrChannelNotFound
		}
		ch := resp.Items[0]
		if ch.ContentDetails == nil || ch.ContentDetails.RelatedPlaylists == nil ||
			ch.ContentDetails.RelatedPlaylists.Uploads == "" {
			return ErrNoVideos
		}
		playlistID = ch.ContentDetails.RelatedPlaylists.Uploads
		if ch.Snippet != nil {
			channelName = ch.Snippet.Title
		}
		return nil
	})
	return playlistID, channelName, err
}

func newestPlaylistItem(items []*ytapi.PlaylistItem, channelID, channelName string) *domain.Item {
	var best *domain.Item
	for _, it := range items {
		if it.ContentDetails == nil || it.ContentDetails.VideoId == "" {
			continue
		}
		id := it.ContentDetails.VideoId
		item := &domain.Item{
			ID:          id,
			Link:        domain.WatchURL(id),
			SourceLabel: channelName,
			ChannelID:   channelID,
		}
		if it.Snippet != nil {
			item.Title = it.Snippet.Title
			published := it.ContentDetails.VideoPublishedAt
			if published == "" {
				published = it.Snippet.PublishedAt
			}
			if t, err := time.Parse(time.RFC3339, published); err == nil {
				item.Published = t
			}
		}
		if best == nil || item.Published.After(best.Published) {
			best = item
		}
	}
	return best
}

// apiErrorClassifier retries everything except missing channels and
// client errors reported by the API.
func apiErrorClassifier(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	switch err {
	case ErrChannelNotFound, ErrNoVideos:
		return false
	}
	if code := googleErrorCode(err); code >= 400 && code < 500 && code != 429 {
		return false
	}
	return true
}

func googleErrorCode(err error) int {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}
