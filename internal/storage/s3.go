// Package storage stages PDF uploads in S3-compatible object storage so
// clients can send large documents straight to the bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrObjectTooLarge is returned by Download when a staged object exceeds the
// caller's limit.
var ErrObjectTooLarge = errors.New("object too large")

const defaultUploadURLExpiry = 15 * time.Minute

// S3ClientConfig holds connection settings. Endpoint is empty for AWS itself
// and set for RustFS or MinIO.
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
	UploadURLExpiry time.Duration
}

// S3Client is the staging area for PDFs uploaded through presigned URLs.
type S3Client struct {
	api     *s3.Client
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
}

// ObjectMetadata is what HeadObject reports about a staged PDF.
type ObjectMetadata struct {
	ContentLength int64
	ContentType   string
	ETag          string
}

func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	expiry := cfg.UploadURLExpiry
	if expiry <= 0 {
		expiry = defaultUploadURLExpiry
	}

	return &S3Client{
		api:     api,
		presign: s3.NewPresignClient(api),
		bucket:  cfg.Bucket,
		expiry:  expiry,
	}, nil
}

// GenerateUploadURL presigns a PUT for key. The client must send the same
// Content-Type or the signature will not match.
func (c *S3Client) GenerateUploadURL(ctx context.Context, key, contentType string) (string, error) {
	req, err := c.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(c.expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", key, err)
	}
	return req.URL, nil
}

// Download reads a staged object. With maxBytes > 0 an oversized object is
// rejected from its metadata, and the body read is capped in case it was
// replaced in between.
func (c *S3Client) Download(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 {
		meta, err := c.HeadObject(ctx, key)
		if err != nil {
			return nil, err
		}
		if meta.ContentLength > maxBytes {
			return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrObjectTooLarge, key, meta.ContentLength, maxBytes)
		}
	}

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer out.Body.Close()

	if maxBytes <= 0 {
		data, err := io.ReadAll(out.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(out.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrObjectTooLarge, key, maxBytes)
	}
	return data, nil
}

func (c *S3Client) DeleteObject(ctx context.Context, key string) error {
	if _, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (c *S3Client) HeadObject(ctx context.Context, key string) (*ObjectMetadata, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return &ObjectMetadata{
		ContentLength: aws.ToInt64(out.ContentLength),
		ContentType:   aws.ToString(out.ContentType),
		ETag:          aws.ToString(out.ETag),
	}, nil
}

// EnsureBucket creates the staging bucket on first start.
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err == nil {
		return nil
	}
	if _, err := c.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	return nil
}
