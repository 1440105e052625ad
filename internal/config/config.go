// Package config loads server settings from the environment. A .env file in
// the working directory is read first when present; real environment
// variables win over it, and command-line flags bound into the viper
// instance win over both.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/alfredjeanlab/shoutboard/internal/scheduler"
)

// Keys, as environment variable names.
const (
	KeyEnv                 = "ENV"
	KeyLogLevel            = "LOG_LEVEL"
	KeyInstanceID          = "INSTANCE_ID"
	KeyDatabaseURL         = "DATABASE_URL"
	KeyBroadcastURL        = "BROADCAST_URL"
	KeyHTTPAddr            = "HTTP_ADDR"
	KeyGRPCAddr            = "GRPC_ADDR"
	KeySchedulerEnabled    = "SCHEDULER_ENABLED"
	KeyMaxActive           = "MAX_ACTIVE"
	KeyDisplayDurationMS   = "DISPLAY_DURATION_MS"
	KeyReconcileIntervalMS = "RECONCILE_INTERVAL_MS"
	KeyResurfacePolicy     = "RESURFACE_POLICY"
	KeyMaxBodyLength       = "MAX_BODY_LENGTH"
	KeyMaxAuthorLength     = "MAX_AUTHOR_LENGTH"
	KeyCORSOrigins         = "CORS_ORIGINS"
	KeySubmitRatePerMinute = "SUBMIT_RATE_PER_MINUTE"
	KeySubmitBurst         = "SUBMIT_BURST"
	KeyArchiveSchedule     = "ARCHIVE_SCHEDULE"
	KeyArchiveS3Bucket     = "ARCHIVE_S3_BUCKET"
	KeyArchiveS3Key        = "ARCHIVE_S3_KEY"
	KeyArchiveS3Region     = "ARCHIVE_S3_REGION"
	KeyArchiveS3Endpoint   = "ARCHIVE_S3_ENDPOINT"
	KeyArchiveFile         = "ARCHIVE_FILE"
)

// EnvDevelopment is the default environment name.
const EnvDevelopment = "development"

var defaults = map[string]any{
	KeyEnv:                 EnvDevelopment,
	KeyLogLevel:            "info",
	KeyInstanceID:          "",
	KeyDatabaseURL:         "",
	KeyBroadcastURL:        "",
	KeyHTTPAddr:            ":8080",
	KeyGRPCAddr:            "",
	KeySchedulerEnabled:    true,
	KeyMaxActive:           10,
	KeyDisplayDurationMS:   60000,
	KeyReconcileIntervalMS: 2000,
	KeyResurfacePolicy:     string(scheduler.ResurfaceRandom),
	KeyMaxBodyLength:       140,
	KeyMaxAuthorLength:     100,
	KeyCORSOrigins:         "*",
	KeySubmitRatePerMinute: 30,
	KeySubmitBurst:         5,
	KeyArchiveSchedule:     "",
	KeyArchiveS3Bucket:     "",
	KeyArchiveS3Key:        "shoutboard/archive.jsonl",
	KeyArchiveS3Region:     "us-east-1",
	KeyArchiveS3Endpoint:   "",
	KeyArchiveFile:         "",
}

// Config is the resolved server configuration.
type Config struct {
	Env        string
	LogLevel   string
	InstanceID string

	DatabaseURL  string // store backend, by scheme
	BroadcastURL string // nats:// or redis://; empty = in-process

	HTTPAddr string
	GRPCAddr string // empty = no gRPC health server

	SchedulerEnabled  bool
	MaxActive         int
	DisplayDuration   time.Duration
	ReconcileInterval time.Duration
	ResurfacePolicy   scheduler.ResurfacePolicy

	MaxBodyLength   int
	MaxAuthorLength int

	CORSOrigins         []string
	SubmitRatePerMinute int // 0 disables the limiter
	SubmitBurst         int

	Archive Archive
}

// Archive configures the periodic JSONL export.
type Archive struct {
	Schedule   string // cron spec; empty disables
	S3Bucket   string // enables S3 when set
	S3Key      string
	S3Region   string
	S3Endpoint string // custom endpoint for MinIO
	File       string // enables a local copy when set
}

// Enabled reports whether any archive destination is configured.
func (a Archive) Enabled() bool {
	return a.Schedule != "" && (a.S3Bucket != "" || a.File != "")
}

// NewViper returns a viper instance bound to the environment with every
// default registered.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromViper(NewViper())
}

// FromViper resolves and validates a configuration.
func FromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		Env:                 strings.ToLower(strings.TrimSpace(v.GetString(KeyEnv))),
		LogLevel:            v.GetString(KeyLogLevel),
		InstanceID:          v.GetString(KeyInstanceID),
		DatabaseURL:         strings.TrimSpace(v.GetString(KeyDatabaseURL)),
		BroadcastURL:        strings.TrimSpace(v.GetString(KeyBroadcastURL)),
		HTTPAddr:            v.GetString(KeyHTTPAddr),
		GRPCAddr:            v.GetString(KeyGRPCAddr),
		SchedulerEnabled:    v.GetBool(KeySchedulerEnabled),
		MaxActive:           v.GetInt(KeyMaxActive),
		DisplayDuration:     time.Duration(v.GetInt64(KeyDisplayDurationMS)) * time.Millisecond,
		ReconcileInterval:   time.Duration(v.GetInt64(KeyReconcileIntervalMS)) * time.Millisecond,
		MaxBodyLength:       v.GetInt(KeyMaxBodyLength),
		MaxAuthorLength:     v.GetInt(KeyMaxAuthorLength),
		CORSOrigins:         splitList(v.GetString(KeyCORSOrigins)),
		SubmitRatePerMinute: v.GetInt(KeySubmitRatePerMinute),
		SubmitBurst:         v.GetInt(KeySubmitBurst),
		Archive: Archive{
			Schedule:   strings.TrimSpace(v.GetString(KeyArchiveSchedule)),
			S3Bucket:   v.GetString(KeyArchiveS3Bucket),
			S3Key:      v.GetString(KeyArchiveS3Key),
			S3Region:   v.GetString(KeyArchiveS3Region),
			S3Endpoint: v.GetString(KeyArchiveS3Endpoint),
			File:       v.GetString(KeyArchiveFile),
		},
	}

	policy, err := scheduler.ParseResurfacePolicy(v.GetString(KeyResurfacePolicy))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyResurfacePolicy, err)
	}
	c.ResurfacePolicy = policy

	if c.InstanceID == "" {
		if host, err := os.Hostname(); err == nil {
			c.InstanceID = host
		}
	}
	if c.DatabaseURL == "" && c.IsDevelopment() {
		c.DatabaseURL = "memory://"
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks ranges and required settings.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("%s is required outside development", KeyDatabaseURL))
	}
	if c.MaxActive < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", KeyMaxActive, c.MaxActive))
	}
	if c.DisplayDuration <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyDisplayDurationMS))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyReconcileIntervalMS))
	}
	if c.MaxBodyLength < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", KeyMaxBodyLength))
	}
	if c.MaxAuthorLength < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", KeyMaxAuthorLength))
	}
	if c.SubmitRatePerMinute < 0 || c.SubmitBurst < 0 {
		errs = append(errs, fmt.Errorf("%s and %s must not be negative", KeySubmitRatePerMinute, KeySubmitBurst))
	}
	if c.Archive.Schedule != "" && c.Archive.S3Bucket == "" && c.Archive.File == "" {
		errs = append(errs, fmt.Errorf("%s is set but neither %s nor %s is", KeyArchiveSchedule, KeyArchiveS3Bucket, KeyArchiveFile))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
