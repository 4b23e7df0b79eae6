// Package storage provides the object-storage boundary used by the pipeline
// workers for binary assets (images, narration audio). Batch uploads are
// explicitly partial-failure tolerant: each source succeeds or fails on its
// own and the caller decides which failures matter.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Common errors returned by the storage package
var (
	// ErrEmptyKey is returned when an upload destination is empty.
	ErrEmptyKey = errors.New("storage key cannot be empty")

	// ErrEmptyData is returned when there are no bytes to upload.
	ErrEmptyData = errors.New("upload data cannot be empty")

	// ErrUnsupportedSource is returned for source references that are not
	// http(s) URLs.
	ErrUnsupportedSource = errors.New("unsupported media source reference")

	// ErrFetchFailed is returned when a media source cannot be retrieved.
	ErrFetchFailed = errors.New("failed to fetch media source")
)

// maxSourceBytes caps how much is read from a single media source.
const maxSourceBytes = 32 << 20 // 32 MiB

// ObjectStorage is the minimal surface the workers need: write raw bytes to
// a key and get back a publicly addressable URL.
type ObjectStorage interface {
	// Write stores data under key and returns the public URL of the object.
	Write(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// UploadOutcome records the result of uploading one source reference.
type UploadOutcome struct {
	Source string
	URL    string
	Err    error
}

// UploadResult is the outcome of a batch upload, index-aligned with the
// source list that produced it.
type UploadResult struct {
	Outcomes []UploadOutcome
}

// URLs returns the URLs of the successful uploads, in source order.
func (r *UploadResult) URLs() []string {
	var urls []string
	for _, o := range r.Outcomes {
		if o.Err == nil {
			urls = append(urls, o.URL)
		}
	}
	return urls
}

// Failed returns the outcomes that carry errors.
func (r *UploadResult) Failed() []UploadOutcome {
	var failed []UploadOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// PrimaryErr returns the error of the first (primary) source, or nil.
func (r *UploadResult) PrimaryErr() error {
	if len(r.Outcomes) == 0 {
		return nil
	}
	return r.Outcomes[0].Err
}

// Uploader fetches media source references and writes them to an
// ObjectStorage backend.
type Uploader struct {
	store  ObjectStorage
	client *http.Client
}

// NewUploader creates an Uploader over the given backend.
func NewUploader(store ObjectStorage) *Uploader {
	return &Uploader{
		store: store,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// UploadAll fetches every source and writes it under destPath. Individual
// failures do not abort the batch; they are recorded per source in the
// result. The caller inspects PrimaryErr to decide whether the batch is
// usable at all.
func (u *Uploader) UploadAll(ctx context.Context, sources []string, destPath string) *UploadResult {
	result := &UploadResult{Outcomes: make([]UploadOutcome, len(sources))}

	for i, source := range sources {
		url, err := u.uploadOne(ctx, source, destPath, i)
		result.Outcomes[i] = UploadOutcome{Source: source, URL: url, Err: err}
	}

	return result
}

// uploadOne fetches a single source and writes it to the backend.
func (u *Uploader) uploadOne(ctx context.Context, source, destPath string, index int) (string, error) {
	data, contentType, err := u.fetch(ctx, source)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s/%d%s", strings.TrimSuffix(destPath, "/"), index, extensionFor(contentType))
	return u.store.Write(ctx, key, data, contentType)
}

// fetch retrieves the bytes behind an http(s) source reference.
func (u *Uploader) fetch(ctx context.Context, source string) ([]byte, string, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d from %q", ErrFetchFailed, resp.StatusCode, source)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty body from %q", ErrFetchFailed, source)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// extensionFor maps common content types to file extensions.
func extensionFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(contentType, "image/gif"):
		return ".gif"
	case strings.HasPrefix(contentType, "audio/mpeg"):
		return ".mp3"
	default:
		return ""
	}
}
