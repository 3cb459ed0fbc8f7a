package acquire

import (
	"context"

	"ytdigest/internal/domain"
	"ytdigest/internal/youtube"
)

// TranscriptFetcher is satisfied by *youtube.TranscriptFetcher.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string, languages []string) (*youtube.Transcript, error)
}

// TranscriptStrategy uses published captions, most preferred language first.
type TranscriptStrategy struct {
	Fetcher   TranscriptFetcher
	Languages []string
}

func (s *TranscriptStrategy) Name() string { return "transcript" }

func (s *TranscriptStrategy) Acquire(ctx context.Context, item domain.Item) (*domain.Content, error) {
	langs := s.Languages
	if len(langs) == 0 {
		langs = youtube.DefaultLanguages
	}
	t, err := s.Fetcher.Fetch(ctx, item.ID, langs)
	if err != nil {
		return nil, err
	}
	return domain.NewTranscript(t.Text, t.Language), nil
}

// AudioDownloader is satisfied by *youtube.AudioDownloader.
type AudioDownloader interface {
	Download(ctx context.Context, videoID string) (*domain.Content, error)
}

// AudioStrategy downloads the audio track for direct analysis.
type AudioStrategy struct {
	Downloader AudioDownloader
}

func (s *AudioStrategy) Name() string { return "audio" }

func (s *AudioStrategy) Acquire(ctx context.Context, item domain.Item) (*domain.Content, error) {
	return s.Downloader.Download(ctx, item.ID)
}
