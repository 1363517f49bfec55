// Package archive uploads an auction's notification log and final snapshot
// to S3-compatible object storage (AWS S3, MinIO, R2).
package archive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds the connection settings for an S3-compatible store.
type ClientConfig struct {
	// Endpoint is the S3-compatible endpoint URL. Leave empty for AWS S3.
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool

	// ForcePathStyle puts the bucket in the path rather than the host name.
	// Required by MinIO and most S3-compatible providers.
	ForcePathStyle bool
}

// S3Writer uploads objects into one bucket.
type S3Writer struct {
	client *s3.Client
	bucket string
}

// NewS3Writer builds an S3 client with static credentials and optional
// endpoint override.
func NewS3Writer(ctx context.Context, cfg ClientConfig) (*S3Writer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("archive: region is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint, cfg.UseSSL)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Writer{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// Put uploads data as a single PutObject request.
func (w *S3Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("archive: put object %s: %w", path, err)
	}
	return nil
}

// Health issues HeadBucket to verify connectivity and permissions.
func (w *S3Writer) Health(ctx context.Context) error {
	if _, err := w.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(w.bucket)}); err != nil {
		return fmt.Errorf("archive: head bucket %s: %w", w.bucket, err)
	}
	return nil
}

// normaliseEndpoint prepends a scheme if the endpoint has none.
func normaliseEndpoint(endpoint string, useSSL bool) string {
	// "host:port" parses with the host as scheme, so require "://".
	if strings.Contains(endpoint, "://") {
		if _, err := url.Parse(endpoint); err == nil {
			return endpoint
		}
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
