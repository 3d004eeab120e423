package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage implements Storage interface for local filesystem
type LocalStorage struct {
	basePath string
	baseURL  string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(cfg Config) (*LocalStorage, error) {
	if cfg.BasePath == "" {
		cfg.BasePath = "./exports"
	}

	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: cfg.BasePath,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
	}, nil
}

// resolve не дает выйти за пределы basePath
func (s *LocalStorage) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if clean == "/" {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.basePath, clean), nil
}

// Save stores a file locally
func (s *LocalStorage) Save(ctx context.Context, path string, reader io.Reader, contentType string) (int64, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	n, err := io.Copy(file, reader)
	if err != nil {
		return n, fmt.Errorf("failed to write file: %w", err)
	}
	return n, nil
}

// Get retrieves a file from local storage
func (s *LocalStorage) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes a file from local storage
func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetSignedURL - локально подписи нет, отдаем путь для скачивания через API
func (s *LocalStorage) GetSignedURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	if s.baseURL == "" {
		return fmt.Sprintf("/files/%s", path), nil
	}
	return fmt.Sprintf("%s/%s", s.baseURL, path), nil
}
