// Package objectstore uploads player photos to an S3-compatible bucket and
// returns the public object URL stored on the registration record.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config configures the photo bucket.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Store is the photo storage contract consumed by the upload tool.
type Store interface {
	// PutPhoto uploads the image under a deterministic key derived from the
	// player identity and returns the object URL.
	PutPhoto(ctx context.Context, key string, data io.Reader, contentType string, metadata map[string]string) (string, error)

	// Health probes bucket reachability for the /health endpoint.
	Health(ctx context.Context) error
}

// S3Store stores photos in an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	public string
}

// NewS3Store creates the photo bucket client.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "eu-west-2"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	public := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	if endpoint != "" {
		public = strings.TrimRight(endpoint, "/") + "/" + bucket
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		public: public,
	}, nil
}

func (s *S3Store) PutPhoto(ctx context.Context, key string, data io.Reader, contentType string, metadata map[string]string) (string, error) {
	objectKey := s.objectKey(key)
	input := &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
		Body:   data,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if len(metadata) > 0 {
		input.Metadata = metadata
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return s.public + "/" + objectKey, nil
}

func (s *S3Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.bucket}); err != nil {
		return fmt.Errorf("s3 head bucket: %w", err)
	}
	return nil
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// PhotoKey builds the canonical object key for a player photo. Stored photos
// are always JPEG regardless of the uploaded format.
func PhotoKey(season, team, ageGroup, playerName string) string {
	slug := func(v string) string {
		v = strings.ToLower(strings.TrimSpace(v))
		return strings.ReplaceAll(v, " ", "-")
	}
	return fmt.Sprintf("player_photos/%s/%s/%s/%s.jpg", slug(season), slug(team), slug(ageGroup), slug(playerName))
}
