package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds connection parameters for an S3-compatible object
// store hosting dataset documents. Endpoint is optional; set it for
// MinIO, R2, and similar providers.
type S3Config struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// ObjectStore fetches dataset documents from S3-compatible storage.
type ObjectStore struct {
	client *s3.Client
}

// NewObjectStore builds an ObjectStore from static credentials, with
// optional endpoint override and path-style addressing for
// S3-compatible providers.
func NewObjectStore(ctx context.Context, cfg S3Config) (*ObjectStore, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("dataset: s3 region is required")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("dataset: load aws config: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		opts = append(opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &ObjectStore{client: s3.NewFromConfig(awsCfg, opts...)}, nil
}

// Fetch downloads and decodes the dataset object at s3://bucket/key.
func (o *ObjectStore) Fetch(ctx context.Context, bucket, key string) (*Dataset, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("dataset: get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	ds, err := Decode(out.Body)
	if err != nil {
		return nil, fmt.Errorf("dataset: parse s3://%s/%s: %w", bucket, key, err)
	}
	return ds, nil
}

// IsS3URI reports whether path names an object store location.
func IsS3URI(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// SplitS3URI splits "s3://bucket/key" into bucket and key.
func SplitS3URI(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("dataset: malformed s3 uri %q", uri)
	}
	return bucket, key, nil
}
