package youtube

import (
	"fmt"
	"os"
)

// stageCookies writes a cookie blob to a private temp file for yt-dlp and
// returns a cleanup func that deletes it.
func stageCookies(blob string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "ytdigest-cookies-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("stage cookies: %w", err)
	}
	path = f.Name()
	cleanup = func() { os.Remove(path) }

	if err := f.Chmod(0600); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("stage cookies: %w", err)
	}
	if _, err := f.WriteString(blob); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("stage cookies: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("stage cookies: %w", err)
	}
	return path, cleanup, nil
}
