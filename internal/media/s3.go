package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sakif/bookworm/internal/config"
)

const backendS3 = "s3"

// s3API is the slice of *s3.Client used here; tests substitute a fake.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Host stores objects in a bucket under prefix/<uuid>. Objects are public
// at publicURL/prefix/<uuid> (a CDN or a public bucket endpoint).
type S3Host struct {
	client    s3API
	bucket    string
	prefix    string
	publicURL string
	logger    *slog.Logger

	attempts uint
	delay    time.Duration
}

var _ Host = (*S3Host)(nil)

// NewS3Host builds a client from static credentials when given, otherwise
// from the default AWS credential chain. Endpoint targets MinIO and other
// S3-compatible stores.
func NewS3Host(ctx context.Context, cfg config.S3Config, logger *slog.Logger) (*S3Host, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("media: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Host(client, cfg.Bucket, cfg.Prefix, cfg.PublicURL, logger), nil
}

func newS3Host(client s3API, bucket, prefix, publicURL string, logger *slog.Logger) *S3Host {
	return &S3Host{
		client:    client,
		bucket:    bucket,
		prefix:    strings.Trim(prefix, "/"),
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
		attempts:  3,
		delay:     200 * time.Millisecond,
	}
}

func (h *S3Host) key(publicID string) string {
	if h.prefix == "" {
		return publicID
	}
	return h.prefix + "/" + publicID
}

// Upload puts the object, retrying transient failures with backoff.
func (h *S3Host) Upload(ctx context.Context, data []byte, contentType string) (url string, err error) {
	defer func() { recordOp(backendS3, "upload", err) }()

	key := h.key(uuid.NewString())
	err = h.retry(ctx, "upload", func() error {
		_, err := h.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:       aws.String(h.bucket),
			Key:          aws.String(key),
			Body:         bytes.NewReader(data),
			ContentType:  aws.String(contentType),
			CacheControl: aws.String("public, max-age=31536000, immutable"),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("media: putting s3://%s/%s: %w", h.bucket, key, err)
	}
	UploadBytes.WithLabelValues(backendS3).Observe(float64(len(data)))
	return h.publicURL + "/" + key, nil
}

func (h *S3Host) Destroy(ctx context.Context, publicID string) (err error) {
	defer func() { recordOp(backendS3, "destroy", err) }()

	if !validName(publicID) {
		return fmt.Errorf("media: invalid public id %q", publicID)
	}
	key := h.key(publicID)
	err = h.retry(ctx, "destroy", func() error {
		_, err := h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(h.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("media: deleting s3://%s/%s: %w", h.bucket, key, err)
	}
	return nil
}

func (h *S3Host) Owns(url string) bool {
	return ownedBy(url, h.publicURL+"/"+h.key(""))
}

func (h *S3Host) retry(ctx context.Context, op string, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(h.attempts),
		retry.Delay(h.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			h.logger.Warn("retrying s3 operation",
				slog.String("op", op),
				slog.Uint64("attempt", uint64(n+1)),
				slog.Any("error", err),
			)
		}),
	)
}
