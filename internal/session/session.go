// Package session carries the platform handles a workflow step needs to
// stage artifacts: the object store, the default bucket, and the region.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vesper-ml/vesper-go/internal/storage/objectstore"
)

type Config struct {
	Bucket string
	Region string
	Store  objectstore.Store
}

type Session struct {
	bucket string
	region string
	store  objectstore.Store
}

func New(cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("object store is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("default bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	return &Session{bucket: bucket, region: region, store: cfg.Store}, nil
}

func (s *Session) Bucket() string { return s.bucket }

func (s *Session) Region() string { return s.region }

func (s *Session) Store() objectstore.Store { return s.store }

// OutputPath is the default location job outputs land in, including the
// trailing slash the orchestrator contract expects.
func (s *Session) OutputPath() string {
	return "s3://" + s.bucket + "/"
}

// Upload writes an object under the default bucket and returns its URI.
func (s *Session) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("object key is required")
	}
	if err := s.store.Put(ctx, s.bucket, key, body, size, contentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return objectstore.URI(s.bucket, key), nil
}

// Download opens an object by its s3:// reference, from any bucket.
func (s *Session) Download(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := objectstore.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	body, _, err := s.store.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", uri, err)
	}
	return body, nil
}
