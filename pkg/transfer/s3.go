package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/catalystpanel/catalyst/pkg/config"
)

// S3Client reads and writes backup artifacts in object storage for the s3
// transfer mode. One bucket, one object per backup, keyed
// <workloadID>/<backupName>.
type S3Client struct {
	bucket string
	client *s3.Client
}

// NewS3Client builds a client from the control plane's S3 settings. Custom
// endpoints (MinIO and friends) need path-style addressing.
func NewS3Client(ctx context.Context, cfg *config.Config) (*S3Client, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 transfer mode requires S3_BUCKET")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{bucket: cfg.S3Bucket, client: client}, nil
}

// Open returns a streaming reader for an object
func (c *S3Client) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s: %w", key, err)
	}
	return out.Body, nil
}

// DownloadToFile stages an object on local disk. The download manager
// parallelizes parts for large artifacts.
func (c *S3Client) DownloadToFile(ctx context.Context, key, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	downloader := manager.NewDownloader(c.client)
	n, err := downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("download s3 object %s: %w", key, err)
	}
	return n, nil
}

// Upload writes r to an object. Used by retention tooling and tests; during
// transfer the agents upload backups themselves.
func (c *S3Client) Upload(ctx context.Context, key string, r io.Reader) error {
	uploader := manager.NewUploader(c.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("upload s3 object %s: %w", key, err)
	}
	return nil
}

// Head reports an object's size, confirming the artifact exists before a
// restore is attempted.
func (c *S3Client) Head(ctx context.Context, key string) (int64, error) {
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("head s3 object %s: %w", key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}
