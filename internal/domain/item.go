// Package domain holds the types that flow through the digest pipeline.
package domain

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Item is one discovered video. Its ID is the dedup key and is stable across runs.
type Item struct {
	// ID is the YouTube video ID (e.g., "dQw4w9WgXcQ").
	ID string `json:"id"`
	// Title is the video title.
	Title string `json:"title"`
	// Link is the canonical watch URL.
	Link string `json:"link"`
	// SourceLabel is the human readable channel name.
	SourceLabel string `json:"source_label"`
	// ChannelID is the YouTube channel ID the item was discovered on.
	ChannelID string `json:"channel_id,omitempty"`
	// Published is when the video was published. May be zero.
	Published time.Time `json:"published,omitempty"`
}

// WatchURL returns the watch URL for a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// ContentKind records which acquisition strategy produced a Content.
type ContentKind string

const (
	KindTranscript ContentKind = "transcript"
	KindAudio      ContentKind = "audio"
)

// Content is the analyzable payload derived from an Item.
//
// Transcript content carries Text. Audio content carries Path, a file staged
// on local disk that must be released once analysis is over.
type Content struct {
	Kind ContentKind
	// Text is the transcript when Kind is KindTranscript.
	Text string
	// Language is the caption language that produced Text.
	Language string
	// Path is the staged media file when Kind is KindAudio.
	Path string
	// MIMEType describes the staged media.
	MIMEType string
	// Size is the length of Text or the size of the file at Path, in bytes.
	Size int64

	// stagingDir is removed together with Path on Release.
	stagingDir string
	once       sync.Once
	releaseErr error
}

// NewTranscript builds transcript content.
func NewTranscript(text, language string) *Content {
	return &Content{
		Kind:     KindTranscript,
		Text:     text,
		Language: language,
		Size:     int64(len(text)),
	}
}

// NewAudio builds audio content for a file staged inside stagingDir.
// stagingDir may be empty, in which case only the file is removed on Release.
func NewAudio(path, stagingDir, mimeType string) (*Content, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("domain: staged media is a directory")
	}
	if mimeType == "" {
		mimeType = MIMETypeForPath(path)
	}
	return &Content{
		Kind:       KindAudio,
		Path:       path,
		MIMEType:   mimeType,
		Size:       info.Size(),
		stagingDir: stagingDir,
	}, nil
}

// Release deletes staged media. It is a no-op for transcripts and safe to
// call more than once; only the first call does any work.
func (c *Content) Release() error {
	if c == nil || c.Kind != KindAudio {
		return nil
	}
	c.once.Do(func() {
		if c.stagingDir != "" {
			c.releaseErr = os.RemoveAll(c.stagingDir)
			return
		}
		if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.releaseErr = err
		}
	})
	return c.releaseErr
}

// MIMETypeForPath guesses an audio MIME type from the file extension.
func MIMETypeForPath(path string) string {
	switch filepath.Ext(path) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
