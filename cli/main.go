package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ytdigest"
	"ytdigest/internal/config"
	"ytdigest/internal/logging"
	"ytdigest/internal/metrics"
	"ytdigest/internal/youtube"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	command := "run"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "run":
		return cmdRun(ctx, args, stdout, stderr)
	case "check":
		return cmdCheck(ctx, args, stdout, stderr)
	case "transcript":
		return cmdTranscript(ctx, args, stdout, stderr)
	case "latest":
		return cmdLatest(ctx, args, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", command)
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `ytdigest - summarize new YouTube uploads and push them to LINE

Usage:
  ytdigest [run]                          Process every configured channel once
  ytdigest check <video-id>...            Report whether videos are in the ledger
  ytdigest transcript [flags] <video-id>  Print a video's transcript
  ytdigest latest <channel>               Print a channel's newest upload
  ytdigest help                           Show this help message

Channels are read from YOUTUBE_CHANNEL_ID or YTDIGEST_CHANNELS (comma-separated),
or from the channels list in ytdigest.yaml.

Examples:
  ytdigest                                       # run once
  ytdigest check dQw4w9WgXcQ                     # already notified?
  ytdigest transcript --lang en,ja dQw4w9WgXcQ   # caption text
  ytdigest latest @somechannel                   # newest upload
`)
}

// setup loads settings and builds a logger. requireSources selects between
// config.Load and config.LoadSettings.
func setup(stderr io.Writer, requireSources bool) (*config.Config, *zap.Logger, bool) {
	load := config.LoadSettings
	if requireSources {
		load = config.Load
	}
	cfg, err := load()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return nil, nil, false
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating logger: %v\n", err)
		return nil, nil, false
	}
	return cfg, logger, true
}

func cmdRun(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	quiet := fs.Bool("quiet", false, "Do not print the summary table")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, logger, ok := setup(stderr, true)
	if !ok {
		return 1
	}
	defer logger.Sync()

	m := metrics.New()
	app, err := ytdigest.NewApp(ctx, cfg, logger, m)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer app.Close()

	runID := uuid.NewString()
	p, err := app.Pipeline(ctx, runID)
	if err != nil {
		if errors.Is(err, config.ErrMissingCredentials) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		} else {
			fmt.Fprintf(stderr, "Error building pipeline: %v\n", err)
		}
		return 1
	}

	report := p.Run(ctx)
	m.MarkRun(report.Finished)

	if !*quiet {
		report.WriteTable(stdout)
	}

	if cfg.Metrics.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := m.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			logger.Warn("metrics push failed", zap.String("run_id", runID), zap.Error(err))
		}
	}

	// Per-source failures are in the report; the run itself succeeded.
	return 0
}

func cmdCheck(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ytdigest check <video-id>...\n")
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(stderr, "Error: missing video-id\n")
		fs.Usage()
		return 1
	}

	cfg, logger, ok := setup(stderr, false)
	if !ok {
		return 1
	}
	defer logger.Sync()

	app, err := ytdigest.NewApp(ctx, cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer app.Close()

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VIDEO ID\tPROCESSED")
	code := 0
	for _, id := range fs.Args() {
		processed, err := app.Ledger.Check(ctx, id)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", id, err)
			code = 1
			continue
		}
		fmt.Fprintf(w, "%s\t%v\n", id, processed)
	}
	w.Flush()
	return code
}

func cmdTranscript(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("transcript", flag.ContinueOnError)
	fs.SetOutput(stderr)
	langStr := fs.String("lang", "", "Comma-separated language preference (default from config)")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ytdigest transcript [flags] <video-id>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(stderr, "Error: missing video-id\n")
		fs.Usage()
		return 1
	}
	videoID := fs.Arg(0)

	cfg, logger, ok := setup(stderr, false)
	if !ok {
		return 1
	}
	defer logger.Sync()

	languages := cfg.Acquire.Languages
	if *langStr != "" {
		languages = config.SplitList(*langStr)
	}

	app, err := ytdigest.NewApp(ctx, cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer app.Close()

	fmt.Fprintf(stderr, "Fetching transcript for %s...\n", videoID)
	t, err := app.Transcripts.Fetch(ctx, videoID, languages)
	if err != nil {
		if errors.Is(err, youtube.ErrNoTranscript) {
			fmt.Fprintf(stderr, "No transcript in %v for %s\n", languages, videoID)
		} else {
			fmt.Fprintf(stderr, "Error fetching transcript: %v\n", err)
		}
		return 1
	}

	fmt.Fprintf(stderr, "Language: %s (auto-generated: %v)\n\n", t.Language, t.Generated)
	fmt.Fprintln(stdout, t.Text)
	return 0
}

func cmdLatest(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("latest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ytdigest latest <channel-id | channel-url | @handle>\n")
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(stderr, "Error: missing channel\n")
		fs.Usage()
		return 1
	}

	cfg, logger, ok := setup(stderr, false)
	if !ok {
		return 1
	}
	defer logger.Sync()

	app, err := ytdigest.NewApp(ctx, cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer app.Close()

	item, err := app.Discovery.Lookup(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	processed, lookupErr := app.Ledger.Check(ctx, item.ID)

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Video ID:\t%s\n", item.ID)
	fmt.Fprintf(w, "Title:\t%s\n", item.Title)
	fmt.Fprintf(w, "Channel:\t%s (%s)\n", item.SourceLabel, item.ChannelID)
	fmt.Fprintf(w, "Link:\t%s\n", item.Link)
	if !item.Published.IsZero() {
		fmt.Fprintf(w, "Published:\t%s\n", item.Published.Format(time.RFC3339))
	}
	if lookupErr != nil {
		fmt.Fprintf(w, "Processed:\tunknown (%v)\n", lookupErr)
	} else {
		fmt.Fprintf(w, "Processed:\t%v\n", processed)
	}
	w.Flush()
	return 0
}
