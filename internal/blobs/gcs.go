package blobs

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
)

const defaultGCSBaseURL = "https://storage.googleapis.com"

type GCSStoreConfig struct {
	Client  *storage.Client
	Bucket  string
	BaseURL string
}

// GCSStore uploads objects to a Google Cloud Storage bucket.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewGCSStore(cfg GCSStoreConfig) (*GCSStore, error) {
	if cfg.Client == nil {
		return nil, ErrMissingClient
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, ErrMissingBucket
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGCSBaseURL + "/" + bucket
	}
	return &GCSStore{client: cfg.Client, bucket: bucket, baseURL: baseURL}, nil
}

// Put streams data to the bucket. The writer's progress callback drives progress.
func (s *GCSStore) Put(ctx context.Context, objectPath, contentType string, data []byte, progress func(percent float64)) (string, error) {
	cleaned, err := cleanObjectPath(objectPath)
	if err != nil {
		return "", err
	}
	writer := s.client.Bucket(s.bucket).Object(cleaned).NewWriter(ctx)
	writer.ContentType = contentType
	writer.ChunkSize = writeChunkSize
	if progress != nil && len(data) > 0 {
		total := float64(len(data))
		writer.ProgressFunc = func(sent int64) {
			progress(float64(sent) * 100 / total)
		}
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return "", fmt.Errorf("blobs: gcs write %s: %w", cleaned, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("blobs: gcs close %s: %w", cleaned, err)
	}
	if progress != nil {
		progress(100)
	}
	return s.baseURL + "/" + escapeObjectPath(cleaned), nil
}

func escapeObjectPath(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for index, segment := range segments {
		segments[index] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
