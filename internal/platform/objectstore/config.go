package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lensworks/mediagate/internal/platform/env"
)

// Config describes the optional MinIO/S3 attachment. An empty Endpoint
// disables the object store entirely: s3 image refs are rejected and
// output archival is off.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	UseSSL        bool
	BucketOutputs string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("MEDIAGATE_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:      env.String("MEDIAGATE_MINIO_ENDPOINT", ""),
		AccessKey:     env.String("MEDIAGATE_MINIO_ACCESS_KEY", ""),
		SecretKey:     env.String("MEDIAGATE_MINIO_SECRET_KEY", ""),
		Region:        env.String("MEDIAGATE_MINIO_REGION", "us-east-1"),
		UseSSL:        useSSL,
		BucketOutputs: env.String("MEDIAGATE_MINIO_BUCKET_OUTPUTS", "outputs"),
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketOutputs) == "" {
		return errors.New("outputs bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
