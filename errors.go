package ytdigest

import (
	"ytdigest/internal/acquire"
	"ytdigest/internal/analyzer"
	"ytdigest/internal/config"
	httpc "ytdigest/internal/http"
	"ytdigest/internal/notify"
	"ytdigest/internal/retry"
	"ytdigest/internal/storage"
	"ytdigest/internal/youtube"
)

// Error handling types exported for library users.
//
// Sentinels work with errors.Is:
//
//	if errors.Is(out.Err, ytdigest.ErrContentUnavailable) {
//		fmt.Println("no captions and no audio")
//	}
//
// Typed errors work with errors.As:
//
//	var serr *ytdigest.StorageError
//	if errors.As(err, &serr) {
//		fmt.Printf("%s %s failed: %v\n", serr.Backend, serr.Op, serr.Err)
//	}

// Type aliases for wrapped errors.
type (
	// ListerError wraps discovery failures for one channel.
	ListerError = youtube.ListerError
	// StorageError wraps ledger backend failures.
	StorageError = storage.StorageError
	// HTTPError is a non-2xx response.
	HTTPError = httpc.HTTPError
	// RateLimitError is a throttled response.
	RateLimitError = httpc.RateLimitError
	// RetryableError wraps the last failure once retries are exhausted.
	RetryableError = retry.RetryableError
)

// Sentinel errors exported from sub-packages.
var (
	ErrNoChannels         = config.ErrNoChannels
	ErrMissingCredentials = config.ErrMissingCredentials

	// Discovery
	ErrChannelNotFound = youtube.ErrChannelNotFound
	ErrNoVideos        = youtube.ErrNoVideos
	ErrInvalidChannel  = youtube.ErrInvalidChannel

	// Acquisition
	ErrContentUnavailable = acquire.ErrContentUnavailable
	ErrNoTranscript       = youtube.ErrNoTranscript
	ErrDownloadFailed     = youtube.ErrDownloadFailed
	ErrYtdlpNotInstalled  = youtube.ErrYtdlpNotInstalled

	// Analysis
	ErrAnalysisFailed    = analyzer.ErrAnalysisFailed
	ErrEmptySummary      = analyzer.ErrEmptySummary
	ErrProcessingTimeout = analyzer.ErrProcessingTimeout
	ErrProcessingFailed  = analyzer.ErrProcessingFailed

	// Delivery
	ErrDeliveryFailed = notify.ErrDeliveryFailed
	ErrCircuitOpen    = httpc.ErrCircuitOpen

	// Ledger
	ErrUnavailable    = storage.ErrUnavailable
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	ErrLockTimeout    = storage.ErrLockTimeout
)

// IsRetryable reports whether err is worth retrying in a later run.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
