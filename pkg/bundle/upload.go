package bundle

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/proofrun/proofrun/pkg/run"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

// UploadConfig configures the optional object-store destination for
// finished bundles.
type UploadConfig struct {
	// Endpoint is host:port, without a URL scheme.
	Endpoint string `yaml:"endpoint"`

	// AccessKey and SecretKey authenticate against the store.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// Region is the bucket region.
	Region string `yaml:"region"`

	// UseSSL selects TLS transport.
	UseSSL bool `yaml:"use_ssl"`

	// Bucket receives the bundles.
	Bucket string `yaml:"bucket"`

	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`
}

// Validate checks the configuration for an enabled uploader.
func (c UploadConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("object store endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("object store endpoint must not include a scheme: %s", c.Endpoint)
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("object store credentials are required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("object store bucket is required")
	}
	return nil
}

// Enabled reports whether an upload destination is configured at all.
func (c UploadConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Uploader ships bundles to an S3-compatible object store.
type Uploader struct {
	client *minio.Client
	config UploadConfig
	logger *telemetry.Logger
}

// NewUploader validates the configuration and builds the store client.
func NewUploader(cfg UploadConfig, logger *telemetry.Logger) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &Uploader{
		client: client,
		config: cfg,
		logger: logger.NewComponentLogger("bundle-uploader"),
	}, nil
}

// EnsureBucket creates the destination bucket when it does not exist.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.config.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", u.config.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.config.Bucket, minio.MakeBucketOptions{Region: u.config.Region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", u.config.Bucket, err)
	}
	return nil
}

// Upload ships one finished bundle, keyed by run id. An upload failure
// is a bundling error for the caller but the local archive stays put.
func (u *Uploader) Upload(ctx context.Context, runID, bundlePath string) (string, error) {
	key := path.Join(u.config.Prefix, runID+".zip")

	info, err := u.client.FPutObject(ctx, u.config.Bucket, key, bundlePath,
		minio.PutObjectOptions{ContentType: "application/zip"})
	if err != nil {
		return "", run.NewBundlingError(fmt.Sprintf("failed to upload bundle to %s/%s", u.config.Bucket, key), err)
	}

	u.logger.WithField("bucket", u.config.Bucket).
		WithField("key", key).
		Infof("bundle uploaded (%d bytes)", info.Size)
	return key, nil
}
