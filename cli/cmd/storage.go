package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canv/cli/config"
	"github.com/justapithecus/canv/lode"
)

// storageChoice holds the resolved run report storage settings.
type storageChoice struct {
	dataset   string
	backend   string
	path      string
	region    string
	endpoint  string
	pathStyle bool
}

// resolveStorage merges storage flags over the config file.
func resolveStorage(c *cli.Context, cfg *config.Config) storageChoice {
	return storageChoice{
		dataset:   resolveString(c, "storage-dataset", configVal(cfg, func(c *config.Config) string { return c.Storage.Dataset })),
		backend:   resolveString(c, "storage-backend", configVal(cfg, func(c *config.Config) string { return c.Storage.Backend })),
		path:      resolveString(c, "storage-path", configVal(cfg, func(c *config.Config) string { return c.Storage.Path })),
		region:    resolveString(c, "storage-region", configVal(cfg, func(c *config.Config) string { return c.Storage.Region })),
		endpoint:  resolveString(c, "storage-endpoint", configVal(cfg, func(c *config.Config) string { return c.Storage.Endpoint })),
		pathStyle: resolveBool(c, "storage-s3-path-style", configVal(cfg, func(c *config.Config) bool { return c.Storage.S3PathStyle })),
	}
}

// enabled reports whether a run report was requested.
func (s storageChoice) enabled() bool { return s.backend != "" || s.path != "" }

// validate requires backend and path together.
func (s storageChoice) validate() error {
	if !s.enabled() {
		return nil
	}
	if s.backend == "" || s.path == "" {
		return errors.New("both --storage-backend and --storage-path are required for run reports")
	}
	if !slices.Contains(config.StorageBackends, s.backend) {
		return fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", s.backend)
	}
	if s.dataset == "" {
		return errors.New("--storage-dataset must not be empty")
	}
	return nil
}

// backendName is the metrics dimension for the storage backend.
func (s storageChoice) backendName() string {
	if !s.enabled() {
		return "none"
	}
	return s.backend
}

func (s storageChoice) s3Config() lode.S3Config {
	bucket, prefix := lode.ParseS3Path(s.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       s.region,
		Endpoint:     s.endpoint,
		UsePathStyle: s.pathStyle,
	}
}

// buildClient creates a write client partitioned for one run.
func (s storageChoice) buildClient(ctx context.Context, source, runID string, startTime time.Time) (lode.Client, error) {
	cfg := lode.Config{
		Dataset: s.dataset,
		Source:  source,
		Day:     lode.DeriveDay(startTime),
		RunID:   runID,
	}
	switch s.backend {
	case "fs":
		return lode.NewLodeClient(cfg, s.path)
	case "s3":
		return lode.NewLodeS3Client(ctx, cfg, s.s3Config())
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", s.backend)
	}
}

// buildReadDataset creates a Lode Dataset for reading.
func (s storageChoice) buildReadDataset(ctx context.Context) (lodelibrary.Dataset, error) {
	switch s.backend {
	case "fs":
		return lode.NewReadDatasetFS(s.dataset, s.path)
	case "s3":
		return lode.NewReadDatasetS3(ctx, s.dataset, s.s3Config())
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", s.backend)
	}
}
