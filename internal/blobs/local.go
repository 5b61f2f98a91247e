// Package blobs stores uploaded image bytes and hands back download URLs.
package blobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const writeChunkSize = 64 << 10

var (
	ErrMissingRoot    = errors.New("blobs: root directory required")
	ErrMissingBaseURL = errors.New("blobs: public base url required")
	ErrMissingBucket  = errors.New("blobs: bucket required")
	ErrMissingClient  = errors.New("blobs: storage client required")
	ErrInvalidPath    = errors.New("blobs: invalid object path")
)

type LocalStoreConfig struct {
	Root    string
	BaseURL string
}

// LocalStore writes objects under a directory. The HTTP server serves that directory at BaseURL.
type LocalStore struct {
	root    string
	baseURL string
}

func NewLocalStore(cfg LocalStoreConfig) (*LocalStore, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, ErrMissingRoot
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobs: create root: %w", err)
	}
	return &LocalStore{root: root, baseURL: baseURL}, nil
}

// Put writes data in chunks, reporting progress after each one, and renames the file into place.
func (s *LocalStore) Put(ctx context.Context, objectPath, contentType string, data []byte, progress func(percent float64)) (string, error) {
	cleaned, err := cleanObjectPath(objectPath)
	if err != nil {
		return "", err
	}
	target := filepath.Join(s.root, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("blobs: create directory: %w", err)
	}
	temp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("blobs: create temp file: %w", err)
	}
	defer os.Remove(temp.Name())

	written := 0
	for written < len(data) {
		if err := ctx.Err(); err != nil {
			temp.Close()
			return "", err
		}
		end := min(written+writeChunkSize, len(data))
		if _, err := temp.Write(data[written:end]); err != nil {
			temp.Close()
			return "", fmt.Errorf("blobs: write: %w", err)
		}
		written = end
		if progress != nil {
			progress(float64(written) * 100 / float64(len(data)))
		}
	}
	if err := temp.Close(); err != nil {
		return "", fmt.Errorf("blobs: close: %w", err)
	}
	if err := os.Rename(temp.Name(), target); err != nil {
		return "", fmt.Errorf("blobs: rename: %w", err)
	}
	return s.baseURL + "/" + cleaned, nil
}

// Path maps an object path to its file on disk.
func (s *LocalStore) Path(objectPath string) (string, error) {
	cleaned, err := cleanObjectPath(objectPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func cleanObjectPath(objectPath string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(objectPath), "/")
	if trimmed == "" {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}
