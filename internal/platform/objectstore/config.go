package objectstore

import (
	"errors"
	"strings"

	"github.com/vesper-ml/vesper-go/internal/platform/env"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("VESPER_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  env.String("VESPER_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey: env.String("VESPER_MINIO_ACCESS_KEY", "vesper"),
		SecretKey: env.String("VESPER_MINIO_SECRET_KEY", "vesperminio"),
		Region:    env.String("VESPER_MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.String("VESPER_MINIO_BUCKET", "vesper-models"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return errors.New("endpoint must not include a scheme")
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
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	return nil
}
