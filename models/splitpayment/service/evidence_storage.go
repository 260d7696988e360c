package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3EvidenceStorage stores refund evidence in an S3-compatible bucket
// (AWS, R2, MinIO).
type S3EvidenceStorage struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

var _ EvidenceStorage = (*S3EvidenceStorage)(nil)

// NewS3EvidenceStorage builds a client from static credentials. A custom
// endpoint switches to path-style addressing, which R2 and MinIO expect.
func NewS3EvidenceStorage(ctx context.Context, cfg config.StorageConfig) (*S3EvidenceStorage, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3EvidenceStorage{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
	}, nil
}

// validateKey rejects storage keys containing path traversal segments.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty storage key")
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return fmt.Errorf("path traversal detected in storage key")
		}
	}
	return nil
}

func (s *S3EvidenceStorage) Save(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(key),
		Body:              body,
		ContentLength:     aws.Int64(size),
		ContentType:       aws.String(contentType),
		ChecksumAlgorithm: s3types.ChecksumAlgorithmCrc32,
	})
	if err != nil {
		return fmt.Errorf("evidence put object failed: %w", err)
	}
	return nil
}

func (s *S3EvidenceStorage) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("evidence delete object failed: %w", err)
	}
	return nil
}

// PresignGet returns a download URL that names the original file.
func (s *S3EvidenceStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	// Keys end in <unix nanos>_<file name>.
	baseName := filepath.Base(key)
	if idx := strings.Index(baseName, "_"); idx >= 0 {
		baseName = baseName[idx+1:]
	}
	disposition := fmt.Sprintf("attachment; filename=%q", baseName)
	result, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(disposition),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("evidence presign failed: %w", err)
	}
	return result.URL, nil
}
