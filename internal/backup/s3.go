package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/config"
)

// Mirror copies stored media to an off-box location. key is the path
// relative to the content root, slash separated.
type Mirror interface {
	Mirror(ctx context.Context, localPath, key string) error
	Enabled() bool
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

type S3Mirror struct {
	bucket   string
	prefix   string
	uploader uploader
	logger   zerolog.Logger
}

// New returns an S3 mirror when a bucket is configured and a no-op
// otherwise.
func New(ctx context.Context, cfg config.BackupConfig, logger zerolog.Logger) (Mirror, error) {
	if cfg.S3Bucket == "" {
		return Noop{}, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info().Str("bucket", cfg.S3Bucket).Str("prefix", cfg.S3Prefix).Msg("s3 media mirror enabled")
	return newS3Mirror(cfg.S3Bucket, cfg.S3Prefix, manager.NewUploader(client), logger), nil
}

func newS3Mirror(bucket, prefix string, up uploader, logger zerolog.Logger) *S3Mirror {
	return &S3Mirror{
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		uploader: up,
		logger:   logger,
	}
}

func (m *S3Mirror) Enabled() bool { return true }

func (m *S3Mirror) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if m.prefix == "" {
		return key
	}
	return path.Join(m.prefix, key)
}

func (m *S3Mirror) Mirror(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	objectKey := m.objectKey(key)
	if _, err := m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(objectKey),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("uploading %s: %w", objectKey, err)
	}

	m.logger.Debug().Str("key", objectKey).Msg("mirrored to s3")
	return nil
}

type Noop struct{}

func (Noop) Mirror(context.Context, string, string) error { return nil }
func (Noop) Enabled() bool                                { return false }
