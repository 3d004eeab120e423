// Package storage хранит выгрузки (CSV экспорт контактов) локально или в S3-совместимом бакете.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"crm_backend/internal/config"
)

var ErrInvalidPath = errors.New("invalid storage path")

// Storage defines the interface for file storage operations
type Storage interface {
	// Save stores a file at the given path and returns the number of bytes written
	Save(ctx context.Context, path string, reader io.Reader, contentType string) (int64, error)

	// Get retrieves a file from the given path
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes a file at the given path
	Delete(ctx context.Context, path string) error

	// GetSignedURL returns a temporary download URL
	GetSignedURL(ctx context.Context, path string, expiry time.Duration) (string, error)
}

// Config holds storage configuration
type Config struct {
	Type      string // local, s3, cloudflare_r2
	BasePath  string // For local storage
	BaseURL   string // Public URL base
	Bucket    string // For S3/R2
	Region    string // For S3
	AccessKey string // For S3/R2
	SecretKey string // For S3/R2
	Endpoint  string // For R2 or custom S3
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Type:      cfg.Storage.Type,
		BasePath:  cfg.Storage.BasePath,
		BaseURL:   cfg.Storage.BaseURL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Endpoint:  cfg.Storage.Endpoint,
	}
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg)
	case "s3", "cloudflare_r2":
		return NewObjectStorage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
