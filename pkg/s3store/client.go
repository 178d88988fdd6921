package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// objectAPI is the subset of the S3 client used here.
type objectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// uploadAPI streams an object body of unknown length.
type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// UploaderConfig configures the S3 Upload Manager.
type UploaderConfig struct {
	// Concurrency is the number of parts uploaded in parallel per object.
	// Default: min(4, NumCPU). Memory use is about Concurrency * PartSize.
	Concurrency int

	// PartSize is the multipart part size in bytes. Default: 16MB.
	PartSize int64
}

// DefaultUploaderConfig returns sensible defaults based on the current machine.
func DefaultUploaderConfig() UploaderConfig {
	concurrency := runtime.NumCPU()
	if concurrency > 4 {
		concurrency = 4
	}
	return UploaderConfig{
		Concurrency: concurrency,
		PartSize:    16 * 1024 * 1024, // 16MB
	}
}

// Client provides the S3 operations used by split runs.
type Client struct {
	api      objectAPI
	uploader uploadAPI
}

// NewClient creates a new S3 client using default AWS configuration.
func NewClient(ctx context.Context, cfg UploaderConfig) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewClientWithConfig(awsCfg, cfg), nil
}

// NewClientWithConfig creates a new S3 client with a custom AWS config.
func NewClientWithConfig(awsCfg aws.Config, cfg UploaderConfig) *Client {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultUploaderConfig().Concurrency
	}
	if cfg.PartSize <= 0 {
		cfg.PartSize = DefaultUploaderConfig().PartSize
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return &Client{
		api: s3Client,
		uploader: manager.NewUploader(s3Client, func(u *manager.Uploader) {
			u.Concurrency = cfg.Concurrency
			u.PartSize = cfg.PartSize
		}),
	}
}

// Open returns a reader for an S3 object.
func (c *Client) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object s3://%s/%s: %w", bucket, key, err)
	}
	return resp.Body, nil
}

// Exists reports whether an object exists.
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head object s3://%s/%s: %w", bucket, key, err)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}
