package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"ytdigest/internal/domain"
)

// AudioDownloader extracts a video's audio track with yt-dlp.
type AudioDownloader struct {
	// YtdlpPath is the yt-dlp executable. Defaults to "yt-dlp" on PATH.
	YtdlpPath string
	// Timeout bounds a single download.
	Timeout time.Duration
	// StagingRoot is the parent for per-download staging directories.
	// Empty means the system temp dir.
	StagingRoot string
	// Cookies is a Netscape-format cookie blob passed to yt-dlp when set.
	Cookies string
	// AudioFormat is the extraction target. Defaults to mp3.
	AudioFormat string
}

// NewAudioDownloader creates a downloader with default settings.
func NewAudioDownloader() *AudioDownloader {
	return &AudioDownloader{
		YtdlpPath:   "yt-dlp",
		Timeout:     10 * time.Minute,
		AudioFormat: "mp3",
	}
}

// Download stages the audio of videoID in a fresh directory and returns it as
// audio content. The caller owns the result and must Release it. On failure
// nothing is left on disk.
func (d *AudioDownloader) Download(ctx context.Context, videoID string) (*domain.Content, error) {
	stagingDir, err := os.MkdirTemp(d.StagingRoot, "ytdigest-audio-")
	if err != nil {
		return nil, fmt.Errorf("%w: create staging dir: %v", ErrDownloadFailed, err)
	}

	content, err := d.download(ctx, videoID, stagingDir)
	if err != nil {
		os.RemoveAll(stagingDir)
		return nil, err
	}
	return content, nil
}

func (d *AudioDownloader) download(ctx context.Context, videoID, stagingDir string) (*domain.Content, error) {
	format := d.AudioFormat
	if format == "" {
		format = "mp3"
	}
	args := []string{
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", format,
		"--no-playlist",
		"--no-warnings",
		"-o", filepath.Join(stagingDir, videoID+".%(ext)s"),
		"--print", "after_move:filepath",
	}

	if d.Cookies != "" {
		cookiePath, cleanup, err := stageCookies(d.Cookies)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
		defer cleanup()
		args = append(args, "--cookies", cookiePath)
	}
	args = append(args, domain.WatchURL(videoID))

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, d.path(), args...)
	cmd.WaitDelay = 5 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ErrYtdlpNotInstalled
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, ctxErr)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %v: %s", ErrDownloadFailed, err, msg)
		}
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	path := downloadedPath(stdout.String(), stagingDir, videoID)
	if path == "" {
		return nil, fmt.Errorf("%w: yt-dlp produced no file", ErrDownloadFailed)
	}
	content, err := domain.NewAudio(path, stagingDir, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return content, nil
}

func (d *AudioDownloader) path() string {
	if d.YtdlpPath != "" {
		return d.YtdlpPath
	}
	return "yt-dlp"
}

// downloadedPath takes the last printed path that exists inside stagingDir,
// falling back to any file named after the video.
func downloadedPath(stdout, stagingDir, videoID string) string {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || !strings.HasPrefix(filepath.Clean(line), filepath.Clean(stagingDir)) {
			continue
		}
		if info, err := os.Stat(line); err == nil && !info.IsDir() {
			return line
		}
	}
	matches, _ := filepath.Glob(filepath.Join(stagingDir, videoID+".*"))
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && !info.IsDir() && !strings.HasSuffix(m, ".part") {
			return m
		}
	}
	return ""
}
