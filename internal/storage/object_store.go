package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// UploadResult is the stable reference to a stored object.
type UploadResult struct {
	URL string
	Key string
}

// ObjectStore persists uploaded inputs and generated outputs. Used both
// to pre-upload oversized provider inputs and to keep final artifacts.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, filename, contentType, folder string) (*UploadResult, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// MinioConfig holds S3-compatible store settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL is the externally reachable prefix for stored
	// objects, e.g. a CDN origin. Defaults to the endpoint itself.
	PublicBaseURL string
}

// MinioStore stores objects in any S3-compatible backend.
type MinioStore struct {
	client *minio.Client
	cfg    MinioConfig
}

var _ ObjectStore = (*MinioStore)(nil)

func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage: endpoint is required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "pixelmint-assets"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &MinioStore{client: client, cfg: cfg}, nil
}

func (s *MinioStore) Upload(ctx context.Context, data []byte, filename, contentType, folder string) (*UploadResult, error) {
	key := strings.Trim(folder, "/") + "/" + filename
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: upload %s: %w", key, err)
	}
	return &UploadResult{URL: s.publicURL(key), Key: key}, nil
}

func (s *MinioStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: fetch %s: %w", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, nil
}

func (s *MinioStore) publicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.cfg.Endpoint, s.cfg.Bucket, key)
}
