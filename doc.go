// Package ytdigest watches YouTube channels and pushes an AI summary of each
// new upload to a LINE user.
//
// Overview
//
// One run visits every configured channel once:
//
//  1. Discovery finds the newest upload (RSS feed, or the Data API when an
//     API key is configured).
//  2. The dedup ledger is consulted; already processed uploads are skipped.
//  3. Content is acquired: captions in the preferred languages, or the audio
//     track via yt-dlp when no captions exist.
//  4. Gemini summarizes the transcript or the uploaded audio.
//  5. The summary is pushed to LINE.
//  6. A marker is committed to the ledger.
//
// A failure before step 6 leaves the upload unmarked, so the next run
// retries it. A failing channel never stops the others.
//
// Quick Start
//
//	cfg, err := ytdigest.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	app, err := ytdigest.NewApp(ctx, cfg, logger, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer app.Close()
//
//	p, err := app.Pipeline(ctx, uuid.NewString())
//	if err != nil {
//		log.Fatal(err)
//	}
//	report := p.Run(ctx)
//	report.WriteTable(os.Stdout)
//
// Configuration
//
// Settings are layered: defaults, then a YAML file ($YTDIGEST_CONFIG,
// ./ytdigest.yaml or ~/.config/ytdigest/ytdigest.yaml), then environment
// variables. The most common variables:
//
//   - YOUTUBE_CHANNEL_ID / YTDIGEST_CHANNELS: comma-separated channels
//   - GEMINI_API_KEY: analyzer credentials
//   - LINE_ACCESS_TOKEN, LINE_USER_ID: notifier credentials
//   - YTDIGEST_LEDGER: sheets (default), file, postgres or redis
//   - GOOGLE_SHEET_ID, GCP_SA_KEY: Google Sheets ledger
//   - YTDIGEST_DELIVERY_POLICY: best_effort (default) or strict
//
// Dependencies
//
// The audio fallback requires yt-dlp on PATH or at YTDIGEST_YTDLP_PATH.
package ytdigest
