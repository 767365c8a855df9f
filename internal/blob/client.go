// Package blob wraps the S3 client used for all object-store traffic:
// downloading inbound files, persisting extraction output, and writing
// audit records.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/zeebo/xxh3"

	"github.com/rohitsmagdum13/MBA-CT-sub000/internal/config"
)

// retryMaxAttempts bounds the SDK-level retry of transient S3 failures.
const retryMaxAttempts = 4

// API is the slice of the S3 client the package uses. Tests substitute a
// fake; production passes *s3.Client.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Object is a downloaded blob plus the metadata the pipeline cares about.
type Object struct {
	Bucket      string
	Key         string
	Body        []byte
	ContentType string
	// Hash is the xxh3 content hash, surfaced in audit records so duplicate
	// drops of the same file are traceable after the fact.
	Hash string
}

// Client uploads and downloads byte blobs by key.
type Client struct {
	api    API
	logger *slog.Logger
}

// New builds a Client from the resolved AWS SDK config. An S3_ENDPOINT
// override switches to path-style addressing for S3-compatible stores.
func New(awsCfg aws.Config, cfg *config.Config, logger *slog.Logger) *Client {
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = retryMaxAttempts
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithAPI(api, logger)
}

// NewWithAPI wires an explicit API implementation; used by tests.
func NewWithAPI(api API, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger}
}

// Download fetches bucket/key and returns the body together with its
// content hash and detected content type.
func (c *Client) Download(ctx context.Context, bucket, key string) (*Object, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("download s3://%s/%s: read body: %w", bucket, key, err)
	}

	ct := aws.ToString(out.ContentType)
	if ct == "" || ct == "binary/octet-stream" || ct == "application/octet-stream" {
		ct = DetectContentType(key, body)
	}

	c.logger.Debug("downloaded object", "bucket", bucket, "key", key, "bytes", len(body))
	return &Object{
		Bucket:      bucket,
		Key:         key,
		Body:        body,
		ContentType: ct,
		Hash:        fmt.Sprintf("%016x", xxh3.Hash(body)),
	}, nil
}

// Upload writes body to bucket/key with the given content type.
func (c *Client) Upload(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if contentType == "" {
		contentType = DetectContentType(key, body)
	}
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}
	c.logger.Debug("uploaded object", "bucket", bucket, "key", key, "bytes", len(body))
	return nil
}

// UploadJSON marshals v and uploads it as application/json.
func (c *Client) UploadJSON(ctx context.Context, bucket, key string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: marshal: %w", bucket, key, err)
	}
	return c.Upload(ctx, bucket, key, body, "application/json")
}

// DetectContentType resolves a content type from the key's extension first,
// then from the leading bytes.
func DetectContentType(key string, body []byte) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	}
	return http.DetectContentType(body)
}
