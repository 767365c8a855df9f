// Package config defines the environment-driven configuration model for the
// ingestion pipeline. All settings are resolved once at process start; there
// is no config file and no CLI override for pipeline behavior.
//
// Design goals:
//
//  1. Fail fast: missing database credentials abort startup before any
//     pipeline work begins.
//  2. Explicitness: every knob is a named struct field with a documented
//     default, not an ad-hoc os.Getenv scattered through the codebase.
//  3. Minimalism: decoding is performed by the standard library.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied by FromEnv when the corresponding variable is unset.
const (
	DefaultCSVPrefix    = "mba/csv/"
	DefaultPDFPrefix    = "mba/pdf/"
	DefaultOutputPrefix = "mba/textract/"
	DefaultAuditPrefix  = "mba/audit/"

	DefaultChunkSize  = 1000
	DefaultSampleRows = 1000
	DefaultMaxVarchar = 1024
	DefaultPoolSize   = 5

	DefaultPollInitialDelay = 2 * time.Second
	DefaultPollMaxDelay     = 30 * time.Second
	DefaultPollTimeout      = 10 * time.Minute

	// DefaultMinRemaining is the execution-time budget the router requires
	// before it starts processing another event record.
	DefaultMinRemaining = 10 * time.Second
)

// Error is a fatal configuration error. The process cannot proceed without
// the named setting, so Error always propagates to the process boundary.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// DB holds MySQL connection settings. All fields except Port are required.
type DB struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	PoolSize int
}

// Config is the resolved process configuration.
type Config struct {
	Region     string
	Bucket     string
	S3Endpoint string // optional endpoint override (MinIO/localstack)

	CSVPrefix    string
	PDFPrefix    string
	OutputPrefix string
	AuditPrefix  string

	DB DB

	ChunkSize    int
	SampleRows   int
	MaxVarchar   int
	CSVTruncate  bool
	OnDuplicate  string // "error" (default) or "ignore"
	PollInitial  time.Duration
	PollMaxDelay time.Duration
	PollTimeout  time.Duration
	MinRemaining time.Duration

	// Features selects the Textract analysis feature set for the ANALYSIS
	// job type (comma-separated in the environment, e.g. "TABLES,FORMS").
	Features []string

	PushgatewayURL string
	LogLevel       string
}

// SlogLevel maps LogLevel onto an slog.Level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IgnoreDuplicates reports whether duplicate-key collisions should be
// silently skipped (INSERT IGNORE) instead of failing the chunk.
func (c *Config) IgnoreDuplicates() bool {
	return strings.EqualFold(c.OnDuplicate, "ignore")
}

// FromEnv loads and validates configuration from the environment.
//
// Required: MBA_BUCKET, DB_HOST, DB_USER, DB_PASSWORD, DB_NAME. A missing
// required value returns a *Error and the process must not continue.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Region:     envOr("AWS_REGION", "us-east-1"),
		Bucket:     os.Getenv("MBA_BUCKET"),
		S3Endpoint: os.Getenv("S3_ENDPOINT"),

		CSVPrefix:    envOr("CSV_PREFIX", DefaultCSVPrefix),
		PDFPrefix:    envOr("PDF_PREFIX", DefaultPDFPrefix),
		OutputPrefix: envOr("OUTPUT_PREFIX", DefaultOutputPrefix),
		AuditPrefix:  envOr("AUDIT_PREFIX", DefaultAuditPrefix),

		DB: DB{
			Host:     os.Getenv("DB_HOST"),
			Port:     envInt("DB_PORT", 3306),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Database: os.Getenv("DB_NAME"),
			PoolSize: envInt("DB_POOL_SIZE", DefaultPoolSize),
		},

		ChunkSize:    envInt("CSV_CHUNK_SIZE", DefaultChunkSize),
		SampleRows:   envInt("SCHEMA_SAMPLE_ROWS", DefaultSampleRows),
		MaxVarchar:   envInt("SCHEMA_MAX_VARCHAR", DefaultMaxVarchar),
		CSVTruncate:  envBool("CSV_TRUNCATE", false),
		OnDuplicate:  envOr("CSV_ON_DUPLICATE", "error"),
		PollInitial:  envDuration("POLL_INITIAL_DELAY", DefaultPollInitialDelay),
		PollMaxDelay: envDuration("POLL_MAX_DELAY", DefaultPollMaxDelay),
		PollTimeout:  envDuration("POLL_TIMEOUT", DefaultPollTimeout),
		MinRemaining: envDuration("ROUTER_MIN_REMAINING", DefaultMinRemaining),

		Features: splitList(envOr("TEXTRACT_FEATURES", "TABLES,FORMS")),

		PushgatewayURL: os.Getenv("METRICS_PUSHGATEWAY_URL"),
		LogLevel:       envOr("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Bucket == "" {
		return &Error{Field: "MBA_BUCKET", Reason: "bucket name is required"}
	}
	required := []struct{ field, val string }{
		{"DB_HOST", c.DB.Host},
		{"DB_USER", c.DB.User},
		{"DB_PASSWORD", c.DB.Password},
		{"DB_NAME", c.DB.Database},
	}
	for _, r := range required {
		if r.val == "" {
			return &Error{Field: r.field, Reason: "database credential is required"}
		}
	}
	if c.ChunkSize <= 0 {
		return &Error{Field: "CSV_CHUNK_SIZE", Reason: "must be > 0"}
	}
	if c.SampleRows <= 0 {
		return &Error{Field: "SCHEMA_SAMPLE_ROWS", Reason: "must be > 0"}
	}
	if c.PollInitial <= 0 || c.PollMaxDelay < c.PollInitial {
		return &Error{Field: "POLL_MAX_DELAY", Reason: "delays must be positive and max >= initial"}
	}
	if c.PollTimeout <= 0 {
		return &Error{Field: "POLL_TIMEOUT", Reason: "must be > 0"}
	}
	switch strings.ToLower(c.OnDuplicate) {
	case "error", "ignore":
	default:
		return &Error{Field: "CSV_ON_DUPLICATE", Reason: `must be "error" or "ignore"`}
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
