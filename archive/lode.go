package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config holds configuration for the S3 storage backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (MinIO, R2). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// LodeArchiver writes records to a lode dataset.
type LodeArchiver struct {
	dataset lode.Dataset
	config  Config
}

// NewFS creates an archiver backed by the local filesystem under root.
func NewFS(cfg Config, root string) (*LodeArchiver, error) {
	return NewWithFactory(cfg, lode.NewFSFactory(root))
}

// NewWithFactory creates an archiver with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewWithFactory(cfg Config, factory lode.StoreFactory) (*LodeArchiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := OpenDataset(cfg.dataset(), factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.dataset())
	}
	return &LodeArchiver{dataset: ds, config: cfg}, nil
}

// NewS3 creates an archiver backed by S3.
// Uses the AWS SDK default credential chain (env vars, shared config, IAM role).
func NewS3(ctx context.Context, cfg Config, s3cfg S3Config) (*LodeArchiver, error) {
	factory, err := S3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewWithFactory(cfg, factory)
}

// S3Factory builds a lode store factory for the given bucket.
func S3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, WrapInitError(fmt.Errorf("load AWS config: %w", err), s3cfg.Bucket)
	}

	var s3Opts []func(*s3.Options)
	if s3cfg.Endpoint != "" {
		endpoint := s3cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if s3cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: s3cfg.Bucket,
			Prefix: s3cfg.Prefix,
		})
	}, nil
}

// ParseS3Path splits "bucket/prefix" into its parts. A leading s3:// is
// accepted.
func ParseS3Path(path string) (bucket, prefix string) {
	path = strings.TrimPrefix(path, "s3://")
	parts := strings.SplitN(path, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = strings.Trim(parts[1], "/")
	}
	return bucket, prefix
}

// Target names the storage a dataset lives on.
type Target struct {
	// Backend is "fs" or "s3". Empty means fs.
	Backend string
	// Path is a directory (fs) or bucket/prefix (s3).
	Path string
	// Region, Endpoint and UsePathStyle apply to s3 only.
	Region       string
	Endpoint     string
	UsePathStyle bool
}

func (t Target) s3Config() S3Config {
	bucket, prefix := ParseS3Path(t.Path)
	return S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       t.Region,
		Endpoint:     t.Endpoint,
		UsePathStyle: t.UsePathStyle,
	}
}

// Factory returns the lode store factory for t.
func (t Target) Factory(ctx context.Context) (lode.StoreFactory, error) {
	switch t.Backend {
	case "", "fs":
		if t.Path == "" {
			return nil, errors.New("archive path is required")
		}
		return lode.NewFSFactory(t.Path), nil
	case "s3":
		return S3Factory(ctx, t.s3Config())
	default:
		return nil, fmt.Errorf("unknown archive backend %q (must be fs or s3)", t.Backend)
	}
}

// Location renders where dataset lives on t, as a file:// or s3:// URI.
// Unknown backends yield the bare dataset path.
func (t Target) Location(dataset string) string {
	if dataset == "" {
		dataset = DefaultDataset
	}
	rel := "datasets/" + dataset
	switch t.Backend {
	case "", "fs":
		abs, err := filepath.Abs(t.Path)
		if err != nil {
			abs = t.Path
		}
		return "file://" + filepath.ToSlash(filepath.Join(abs, rel))
	case "s3":
		s3cfg := t.s3Config()
		if s3cfg.Prefix == "" {
			return fmt.Sprintf("s3://%s/%s", s3cfg.Bucket, rel)
		}
		return fmt.Sprintf("s3://%s/%s/%s", s3cfg.Bucket, s3cfg.Prefix, rel)
	default:
		return rel
	}
}

// New creates an archiver on t.
func New(ctx context.Context, cfg Config, t Target) (*LodeArchiver, error) {
	switch t.Backend {
	case "", "fs":
		if t.Path == "" {
			return nil, errors.New("archive path is required")
		}
		return NewFS(cfg, t.Path)
	case "s3":
		return NewS3(ctx, cfg, t.s3Config())
	default:
		return nil, fmt.Errorf("unknown archive backend %q (must be fs or s3)", t.Backend)
	}
}

// OpenDataset opens a dataset with the archive layout and codec.
// The read path uses it too, so both sides agree on layout.
func OpenDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Write stores one record as a single-record snapshot.
func (a *LodeArchiver) Write(ctx context.Context, rec *Record) error {
	if rec.Kind != KindFacts && rec.Kind != KindReport {
		return fmt.Errorf("archive: unknown record kind %q", rec.Kind)
	}
	archivedAt := rec.ArchivedAt
	if archivedAt.IsZero() {
		archivedAt = time.Now()
	}

	row := map[string]any{
		"kind":        rec.Kind,
		"day":         a.config.Day,
		"run_id":      a.config.RunID,
		"host":        rec.Host,
		"url":         rec.URL,
		"delivered":   rec.Delivered,
		"document":    rec.Document,
		"archived_at": archivedAt.UTC().Format(time.RFC3339Nano),
	}
	if rec.Error != "" {
		row["error"] = rec.Error
	}

	if _, err := a.dataset.Write(ctx, []any{row}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, fmt.Sprintf("%s/%s/%s", a.config.dataset(), rec.Kind, rec.Host))
	}
	return nil
}

// Close releases archiver resources.
func (a *LodeArchiver) Close() error {
	return nil
}

var _ Archiver = (*LodeArchiver)(nil)
