package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// ObjectStorage - S3 и Cloudflare R2 (R2 S3-совместим, SDK тот же)
type ObjectStorage struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

func NewObjectStorage(cfg Config) (*ObjectStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required for %s storage", cfg.Type)
	}

	awsConfig := &aws.Config{
		Credentials: credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	}
	switch cfg.Type {
	case "cloudflare_r2":
		// R2 endpoint format: https://<account_id>.r2.cloudflarestorage.com
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("endpoint is required for Cloudflare R2")
		}
		awsConfig.Region = aws.String("auto")
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	default:
		awsConfig.Region = aws.String(cfg.Region)
		if cfg.Endpoint != "" {
			awsConfig.Endpoint = aws.String(cfg.Endpoint)
			awsConfig.S3ForcePathStyle = aws.Bool(true)
		}
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s session: %w", cfg.Type, err)
	}

	return &ObjectStorage{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
	}, nil
}

// Save uploads a file to the bucket
func (s *ObjectStorage) Save(ctx context.Context, path string, reader io.Reader, contentType string) (int64, error) {
	counter := &countingReader{r: reader}
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        counter,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload object: %w", err)
	}
	return counter.n, nil
}

// Get retrieves a file from the bucket
func (s *ObjectStorage) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return result.Body, nil
}

// Delete removes a file from the bucket
func (s *ObjectStorage) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// GetSignedURL returns a temporary signed URL
func (s *ObjectStorage) GetSignedURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	url, err := req.Presign(expiry)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return url, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
