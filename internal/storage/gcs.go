package storage

import (
	"context"
	"errors"
	"fmt"

	gcs "cloud.google.com/go/storage"
)

// GCSStore persists assets in a Google Cloud Storage bucket using
// application default credentials.
type GCSStore struct {
	client *gcs.Client
	bucket string
}

// Ensure GCSStore implements the ObjectStorage interface
var _ ObjectStorage = (*GCSStore)(nil)

// NewGCSStore creates a GCSStore writing into the named bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: create GCS client: %w", err)
	}

	return &GCSStore{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Write stores data under key in the bucket and returns the object's public
// URL.
func (s *GCSStore) Write(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyData
	}

	w := s.client.Bucket(s.bucket).Object(cleanKey).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: write object %q: %w", cleanKey, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: finalize object %q: %w", cleanKey, err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, cleanKey), nil
}
