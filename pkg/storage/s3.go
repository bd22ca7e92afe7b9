package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/config"
	"github.com/makemykankotri/kankotri/pkg/observability"
)

// Uploader is the subset of manager.Uploader used by S3Store
type Uploader interface {
	Upload(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3API is the subset of the S3 client used by S3Store
type S3API interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store stores assets in an S3 compatible bucket
type S3Store struct {
	client   S3API
	uploader Uploader
	cfg      config.StorageConfig
	logger   observability.Logger
}

// NewS3Store creates an S3Store from configuration. A custom endpoint
// (LocalStack, MinIO) is used when configured.
func NewS3Store(ctx context.Context, cfg config.StorageConfig, logger observability.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return NewS3StoreWithClient(client, manager.NewUploader(client), cfg, logger), nil
}

// NewS3StoreWithClient creates an S3Store over existing clients
func NewS3StoreWithClient(client S3API, uploader Uploader, cfg config.StorageConfig, logger observability.Logger) *S3Store {
	return &S3Store{
		client:   client,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}
}

// Put uploads body under key
func (s *S3Store) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	if !IsAllowedType(contentType) {
		return "", errors.Wrapf(ErrUnsupportedType, "%q", contentType)
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.cfg.Bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(normalizeType(contentType)),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to upload %s", key)
	}

	s.logger.Debug("Uploaded asset", map[string]interface{}{"bucket": s.cfg.Bucket, "key": key})
	return s.URL(key), nil
}

// Delete removes the object at key
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to delete %s", key)
	}
	return nil
}

// URL returns the public URL of key
func (s *S3Store) URL(key string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return joinURL(s.cfg.PublicBaseURL, key)
	case s.cfg.Endpoint != "" && s.cfg.ForcePathStyle:
		return joinURL(joinURL(s.cfg.Endpoint, s.cfg.Bucket), key)
	case s.cfg.Endpoint != "":
		return joinURL(s.cfg.Endpoint, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
	}
}

// New returns the store selected by cfg.Type ("memory" or "s3")
func New(ctx context.Context, cfg config.StorageConfig, logger observability.Logger) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(cfg.PublicBaseURL), nil
	case "s3":
		return NewS3Store(ctx, cfg, logger)
	default:
		return nil, errors.Errorf("unsupported storage type %q", cfg.Type)
	}
}
