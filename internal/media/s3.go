// Package media 是图片管道：识别内容类型后上传到 S3 兼容的对象存储，返回可公开访问的 URL。
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"radiochat/internal/chat"
	"radiochat/internal/config"
	"radiochat/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

var ErrNotConfigured = errors.New("media storage is not configured")

type S3Store struct {
	client     *s3.Client
	bucket     string
	publicBase string
	maxBytes   int64
}

// NewS3Store 按配置创建上传客户端。设置了 Endpoint 时使用 path-style 地址（MinIO 等）。
func NewS3Store(ctx context.Context, cfg config.S3Config, maxBytes int64) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: publicBase(cfg),
		maxBytes:   maxBytes,
	}, nil
}

func publicBase(cfg config.S3Config) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

// Put 校验大小和内容类型（只接受 image/*），上传后返回对象 URL。
func (s *S3Store) Put(ctx context.Context, roomID string, data []byte) (string, error) {
	if len(data) == 0 {
		metrics.MediaUploads.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("%w: empty image", chat.ErrMediaRejected)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		metrics.MediaUploads.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("%w: image larger than %d bytes", chat.ErrMediaRejected, s.maxBytes)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		metrics.MediaUploads.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("%w: unsupported content type %s", chat.ErrMediaRejected, mt.String())
	}

	key := objectKey(roomID, mt.Extension())
	_, err := putObject(s.client, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mt.String()),
	})
	if err != nil {
		metrics.MediaUploads.WithLabelValues("error").Inc()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	metrics.MediaUploads.WithLabelValues("ok").Inc()
	log.Debug().Str("module", "media").Str("room_id", roomID).Str("key", key).Int("bytes", len(data)).Msg("image stored")
	return s.publicBase + "/" + key, nil
}

func objectKey(roomID, ext string) string {
	return fmt.Sprintf("rooms/%s/%s%s", roomID, uuid.NewString(), ext)
}
