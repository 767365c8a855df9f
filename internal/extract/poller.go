// Package extract drives asynchronous Textract jobs against documents
// dropped in S3: start the job, poll it with exponential backoff up to a
// hard wall-clock budget, drain the paginated results, and persist a
// manifest plus per-page payloads back to the object store.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"golang.org/x/sync/errgroup"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/metrics"
)

// JobType selects the Textract operation family.
type JobType string

const (
	// JobTypeText runs plain text detection.
	JobTypeText JobType = "TEXT"
	// JobTypeAnalysis runs document analysis with a feature set (tables,
	// forms, ...).
	JobTypeAnalysis JobType = "ANALYSIS"
)

// backoffFactor multiplies the poll delay after every status check.
const backoffFactor = 1.5

// persistConcurrency bounds the parallel page uploads during Persist.
const persistConcurrency = 4

// API is the slice of the Textract client the poller uses. Tests substitute
// a scripted fake; production passes *textract.Client.
type API interface {
	StartDocumentTextDetection(ctx context.Context, in *textract.StartDocumentTextDetectionInput, opts ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error)
	GetDocumentTextDetection(ctx context.Context, in *textract.GetDocumentTextDetectionInput, opts ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error)
	StartDocumentAnalysis(ctx context.Context, in *textract.StartDocumentAnalysisInput, opts ...func(*textract.Options)) (*textract.StartDocumentAnalysisOutput, error)
	GetDocumentAnalysis(ctx context.Context, in *textract.GetDocumentAnalysisInput, opts ...func(*textract.Options)) (*textract.GetDocumentAnalysisOutput, error)
}

// BlobStore is the persistence surface Persist needs. *blob.Client
// satisfies it.
type BlobStore interface {
	UploadJSON(ctx context.Context, bucket, key string, v any) error
}

// Error is a job-scoped extraction failure: submission, remote FAILED
// status, or a mid-drain transport error.
type Error struct {
	JobID string
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("extract: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("extract: job %s: %s: %v", e.JobID, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TimeoutError reports a job still pending when the wall-clock budget
// elapsed. It is the only case that converts a remote-pending job into a
// local failure.
type TimeoutError struct {
	JobID   string
	Budget  time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("extract: job %s: still %s after %s (budget %s)",
		e.JobID, types.JobStatusInProgress, e.Elapsed.Truncate(time.Second), e.Budget)
}

// Options tune the poller. Zero durations are invalid; callers build
// Options from the validated process configuration.
type Options struct {
	OutputBucket string
	OutputPrefix string
	// Features is the analysis feature set used by JobTypeAnalysis.
	Features     []string
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Timeout      time.Duration
}

// Job identifies one running extraction.
type Job struct {
	ID           string
	Type         JobType
	SourceBucket string
	SourceKey    string
}

// Manifest is the job summary written next to the page payloads.
type Manifest struct {
	JobID        string `json:"job_id"`
	JobType      string `json:"job_type"`
	SourceBucket string `json:"source_bucket"`
	SourceKey    string `json:"source_key"`
	PageCount    int    `json:"page_count"`
	Status       string `json:"status"`
}

// Poller runs the start → poll → fetch → persist state machine for one
// extraction job at a time.
type Poller struct {
	api    API
	store  BlobStore
	opts   Options
	logger *slog.Logger

	// Time seams for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewPoller wires a Poller over the Textract API and the blob store.
func NewPoller(api API, store BlobStore, opts Options, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		api:    api,
		store:  store,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Process runs the whole state machine for one source document and returns
// the manifest plus the output folder the results were persisted under.
func (p *Poller) Process(ctx context.Context, bucket, key string, jobType JobType) (*Manifest, string, error) {
	job, err := p.Start(ctx, bucket, key, jobType)
	if err != nil {
		return nil, "", err
	}

	status, err := p.Poll(ctx, job)
	if err != nil {
		return nil, "", err
	}

	pages, err := p.Fetch(ctx, job, status)
	if err != nil {
		return nil, "", err
	}

	manifest := &Manifest{
		JobID:        job.ID,
		JobType:      string(job.Type),
		SourceBucket: job.SourceBucket,
		SourceKey:    job.SourceKey,
		PageCount:    len(pages),
		Status:       string(status),
	}
	folder, err := p.Persist(ctx, job, manifest, pages)
	if err != nil {
		return nil, "", err
	}
	return manifest, folder, nil
}

// Start submits the job and returns its remote id. There is no retry at
// this layer: a submission failure is an *Error.
func (p *Poller) Start(ctx context.Context, bucket, key string, jobType JobType) (Job, error) {
	loc := &types.DocumentLocation{
		S3Object: &types.S3Object{
			Bucket: aws.String(bucket),
			Name:   aws.String(key),
		},
	}

	var jobID string
	switch jobType {
	case JobTypeAnalysis:
		out, err := p.api.StartDocumentAnalysis(ctx, &textract.StartDocumentAnalysisInput{
			DocumentLocation: loc,
			FeatureTypes:     featureTypes(p.opts.Features),
		})
		if err != nil {
			return Job{}, &Error{Op: "start analysis", Err: err}
		}
		jobID = aws.ToString(out.JobId)
	default:
		out, err := p.api.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
			DocumentLocation: loc,
		})
		if err != nil {
			return Job{}, &Error{Op: "start text detection", Err: err}
		}
		jobID = aws.ToString(out.JobId)
	}

	job := Job{ID: jobID, Type: jobType, SourceBucket: bucket, SourceKey: key}
	p.logger.Info("extraction job started",
		"job_id", job.ID,
		"job_type", job.Type,
		"source", fmt.Sprintf("s3://%s/%s", bucket, key))
	return job, nil
}

// Poll queries the job status with exponential backoff (delay × 1.5 per
// iteration, capped at MaxDelay) until a terminal status is observed or the
// wall-clock budget elapses. Transient describe failures are treated as
// not-yet-terminal: logged and folded into the same backoff loop. The
// deadline is the only way out of a never-terminal job.
func (p *Poller) Poll(ctx context.Context, job Job) (types.JobStatus, error) {
	start := p.now()
	deadline := start.Add(p.opts.Timeout)
	delay := p.opts.InitialDelay

	for {
		status, err := p.describe(ctx, job)
		metrics.RecordPoll(string(job.Type))
		if err != nil {
			p.logger.Warn("status poll failed; retrying", "job_id", job.ID, "error", err)
		} else if isTerminal(status) {
			p.logger.Info("extraction job finished",
				"job_id", job.ID,
				"status", status,
				"elapsed", p.now().Sub(start).Truncate(time.Second))
			return status, nil
		}

		if p.now().Add(delay).After(deadline) {
			return "", &TimeoutError{
				JobID:   job.ID,
				Budget:  p.opts.Timeout,
				Elapsed: p.now().Sub(start),
			}
		}
		p.sleep(delay)

		delay = time.Duration(float64(delay) * backoffFactor)
		if delay > p.opts.MaxDelay {
			delay = p.opts.MaxDelay
		}
	}
}

// Fetch drains every result page by following the continuation token until
// absent, in order. FAILED jobs and mid-drain transport errors are fatal to
// the fetch; nothing partial is returned.
func (p *Poller) Fetch(ctx context.Context, job Job, status types.JobStatus) ([]any, error) {
	if status == types.JobStatusFailed {
		return nil, &Error{JobID: job.ID, Op: "fetch", Err: fmt.Errorf("job finished with status %s", status)}
	}

	var (
		pages []any
		token *string
	)
	for {
		page, next, err := p.getPage(ctx, job, token)
		if err != nil {
			return nil, &Error{JobID: job.ID, Op: "fetch page", Err: err}
		}
		pages = append(pages, page)
		if next == nil || *next == "" {
			return pages, nil
		}
		token = next
	}
}

// Persist writes the manifest then one file per page under a folder derived
// from the source key and the job id. Embedding the job id keeps reruns of
// the same source key from ever colliding with a prior run's output.
func (p *Poller) Persist(ctx context.Context, job Job, manifest *Manifest, pages []any) (string, error) {
	folder := path.Join(p.opts.OutputPrefix, job.SourceKey, job.ID) + "/"

	if err := p.store.UploadJSON(ctx, p.opts.OutputBucket, folder+"manifest.json", manifest); err != nil {
		return "", &Error{JobID: job.ID, Op: "persist manifest", Err: err}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(persistConcurrency)
	for i, page := range pages {
		key := fmt.Sprintf("%spage_%04d.json", folder, i+1)
		page := page
		g.Go(func() error {
			return p.store.UploadJSON(gctx, p.opts.OutputBucket, key, page)
		})
	}
	if err := g.Wait(); err != nil {
		return "", &Error{JobID: job.ID, Op: "persist pages", Err: err}
	}

	p.logger.Info("extraction output persisted",
		"job_id", job.ID,
		"folder", folder,
		"pages", len(pages))
	return folder, nil
}

func (p *Poller) describe(ctx context.Context, job Job) (types.JobStatus, error) {
	if job.Type == JobTypeAnalysis {
		out, err := p.api.GetDocumentAnalysis(ctx, &textract.GetDocumentAnalysisInput{
			JobId:      aws.String(job.ID),
			MaxResults: aws.Int32(1),
		})
		if err != nil {
			return "", err
		}
		return out.JobStatus, nil
	}
	out, err := p.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
		JobId:      aws.String(job.ID),
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return "", err
	}
	return out.JobStatus, nil
}

// getPage fetches one result page. The raw SDK output is persisted
// verbatim, so the page payload stays `any`.
func (p *Poller) getPage(ctx context.Context, job Job, token *string) (any, *string, error) {
	if job.Type == JobTypeAnalysis {
		out, err := p.api.GetDocumentAnalysis(ctx, &textract.GetDocumentAnalysisInput{
			JobId:     aws.String(job.ID),
			NextToken: token,
		})
		if err != nil {
			return nil, nil, err
		}
		return out, out.NextToken, nil
	}
	out, err := p.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
		JobId:     aws.String(job.ID),
		NextToken: token,
	})
	if err != nil {
		return nil, nil, err
	}
	return out, out.NextToken, nil
}

func isTerminal(s types.JobStatus) bool {
	switch s {
	case types.JobStatusSucceeded, types.JobStatusFailed, types.JobStatusPartialSuccess:
		return true
	}
	return false
}

func featureTypes(names []string) []types.FeatureType {
	out := make([]types.FeatureType, 0, len(names))
	for _, n := range names {
		out = append(out, types.FeatureType(n))
	}
	return out
}
