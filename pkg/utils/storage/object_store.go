package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"tightship_backend/pkg/config"
)

// ObjectStore uploads product photos to an S3-compatible bucket (Cloudflare
// R2) and hands back CDN URLs.
type ObjectStore struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string
}

func NewObjectStore(ctx context.Context, cfg config.StorageConfig) (*ObjectStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
		o.UsePathStyle = true
		o.Region = "auto"
	})

	return &ObjectStore{
		client:     client,
		bucket:     cfg.Bucket,
		cdnBaseURL: strings.TrimSuffix(cfg.CDNBaseURL, "/"),
	}, nil
}

// UploadProductPhoto stores an already-processed image body under an
// organization/restaurant scoped key and returns the public CDN URL.
func (s *ObjectStore) UploadProductPhoto(ctx context.Context, body *bytes.Buffer, contentType, orgSlug, restaurantSlug, filename string) (string, error) {
	ext := filepath.Ext(filename)
	uniqueName := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.New().String(), ext)

	objectKey := filepath.Join(
		"orgs", slug.Make(orgSlug),
		"restaurants", slug.Make(restaurantSlug),
		"products", uniqueName,
	)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("could not upload file: %w", err)
	}

	return fmt.Sprintf("%s/%s", s.cdnBaseURL, objectKey), nil
}

// Delete removes an object previously returned by UploadProductPhoto.
func (s *ObjectStore) Delete(ctx context.Context, fullURL string) error {
	objectKey := strings.TrimPrefix(fullURL, s.cdnBaseURL+"/")

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("could not delete file: %w", err)
	}
	return nil
}
