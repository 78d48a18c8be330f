// Package archive сохраняет исходные события вебхука в S3-совместимое хранилище.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"ref-service/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const defaultRegion = "us-east-1"

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver складывает события в бакет по ключам prefix/YYYY/MM/DD/name
type S3Archiver struct {
	client putObjectAPI
	bucket string
	prefix string
	now    func() time.Time
	logger *zap.Logger
}

// NewS3Archiver создает архив по конфигурации
func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("не указан бакет архива")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("не указаны ключи доступа к архиву")
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания конфигурации AWS: %w", err)
	}

	var endpoint *string
	if cfg.Endpoint != "" {
		if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
			return nil, fmt.Errorf("некорректный адрес хранилища: %w", err)
		}
		endpoint = aws.String(cfg.Endpoint)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})

	logger.Info("архив событий включен",
		zap.String("bucket", cfg.Bucket),
		zap.String("prefix", cfg.Prefix))

	return newS3Archiver(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3Archiver(client putObjectAPI, bucket, prefix string, logger *zap.Logger) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
		logger: logger,
	}
}

// Archive сохраняет событие под именем name
func (a *S3Archiver) Archive(ctx context.Context, name string, payload []byte) error {
	key := a.objectKey(name)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("ошибка загрузки события %s: %w", key, err)
	}

	a.logger.Debug("событие сохранено в архив", zap.String("key", key), zap.Int("size", len(payload)))
	return nil
}

func (a *S3Archiver) objectKey(name string) string {
	day := a.now().UTC().Format("2006/01/02")
	if a.prefix == "" {
		return path.Join(day, name)
	}
	return path.Join(a.prefix, day, name)
}
