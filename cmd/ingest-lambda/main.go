// Command ingest-lambda is the event-driven entry point: it receives S3
// object-created notifications and routes each record to the tabular or
// document pipeline.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/textract"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/audit"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/blob"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/config"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/db"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/extract"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/loader"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/metrics"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/metrics/prompush"
	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/router"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if cfg.PushgatewayURL != "" {
		backend, err := prompush.NewBackend("mba_ingest", cfg.PushgatewayURL)
		if err != nil {
			logger.Error("metrics backend init failed", "error", err)
			os.Exit(1)
		}
		metrics.SetBackend(backend)
	}

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Error("aws config load failed", "error", err)
		os.Exit(1)
	}

	client, err := db.Open(ctx, cfg.DB)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}

	store := blob.New(awsCfg, cfg, logger)
	pipeline := loader.NewPipeline(client, loader.Options{
		SampleRows:       cfg.SampleRows,
		MaxVarchar:       cfg.MaxVarchar,
		ChunkSize:        cfg.ChunkSize,
		Truncate:         cfg.CSVTruncate,
		IgnoreDuplicates: cfg.IgnoreDuplicates(),
	}, nil, logger)

	poller := extract.NewPoller(textract.NewFromConfig(awsCfg), store, extract.Options{
		OutputBucket: cfg.Bucket,
		OutputPrefix: cfg.OutputPrefix,
		Features:     cfg.Features,
		InitialDelay: cfg.PollInitial,
		MaxDelay:     cfg.PollMaxDelay,
		Timeout:      cfg.PollTimeout,
	}, logger)

	jobType := extract.JobTypeAnalysis
	if len(cfg.Features) == 0 {
		jobType = extract.JobTypeText
	}

	auditor := audit.NewWriter(store, cfg.Bucket, cfg.AuditPrefix, logger)
	handler := router.NewHandler(
		router.Rules{CSVPrefix: cfg.CSVPrefix, PDFPrefix: cfg.PDFPrefix},
		store, pipeline, poller, auditor,
		jobType, cfg.MinRemaining, logger,
	)

	lambda.Start(handler.Handle)
}
