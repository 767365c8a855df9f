// Command ingest-dir drives the tabular pipeline across a local directory
// of CSV files, without an event trigger. Database settings come from the
// environment, same as the event-driven entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/config"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/db"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/loader"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/metrics"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/metrics/prompush"
)

func main() {
	var (
		dir             = flag.String("dir", ".", "directory holding the input files")
		pattern         = flag.String("pattern", "*.csv", "filename glob to ingest")
		continueOnError = flag.Bool("continue-on-error", true, "record per-file failures and keep going")
	)
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if cfg.PushgatewayURL != "" {
		backend, err := prompush.NewBackend("mba_ingest_dir", cfg.PushgatewayURL)
		if err != nil {
			logger.Error("metrics backend init failed", "error", err)
			os.Exit(1)
		}
		metrics.SetBackend(backend)
	}

	ctx := context.Background()
	client, err := db.Open(ctx, cfg.DB)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	pipeline := loader.NewPipeline(client, loader.Options{
		SampleRows:       cfg.SampleRows,
		MaxVarchar:       cfg.MaxVarchar,
		ChunkSize:        cfg.ChunkSize,
		Truncate:         cfg.CSVTruncate,
		IgnoreDuplicates: cfg.IgnoreDuplicates(),
	}, nil, logger)

	summary, runErr := pipeline.IngestDirectory(ctx, *dir, *pattern, *continueOnError)
	if flushErr := metrics.Flush(); flushErr != nil {
		logger.Warn("metrics flush failed", "error", flushErr)
	}

	if summary != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
	}
	if runErr != nil {
		logger.Error("directory run aborted", "error", runErr)
		os.Exit(1)
	}
	if summary.Failed > 0 {
		os.Exit(1)
	}
}
