package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"datasethub/internal/logutils"
)

const (
	defaultTimeout = 30 * time.Second
	uploadTimeout  = 10 * time.Minute
)

// Client предоставляет методы для работы с S3-совместимым хранилищем с включенным версионированием
type Client struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	presignTTL time.Duration
}

// NewClient создает новый экземпляр клиента S3 и проверяет доступ к бакету
func NewClient(conf *Config) (*Client, error) {
	s3Client, err := newClient(conf)
	if err != nil {
		return nil, err
	}

	// Проверяем подключение к бакету
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	_, err = s3Client.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(conf.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", conf.Bucket, err)
	}

	return s3Client, nil
}

func newClient(conf *Config) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	if conf.AccessKeyID == "" || conf.SecretAccessKey == "" || conf.Bucket == "" {
		return nil, fmt.Errorf("missing required configuration: accessKeyID, secretAccessKey, and bucket are required")
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	client := s3.New(s3.Options{
		BaseEndpoint:               aws.String(conf.Endpoint),
		Region:                     conf.Region,
		Credentials:                creds,
		UsePathStyle:               conf.UsePathStyle,
		RetryMode:                  aws.RetryModeAdaptive,
		RetryMaxAttempts:           3,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})

	ttl := conf.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Client{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     conf.Bucket,
		presignTTL: ttl,
	}, nil
}

// EnsureVersioning включает версионирование бакета, если оно выключено
func (h *Client) EnsureVersioning(ctx context.Context) error {
	out, err := h.client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{
		Bucket: aws.String(h.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to get bucket versioning: %w", err)
	}
	if out.Status == types.BucketVersioningStatusEnabled {
		return nil
	}

	logutils.Component("s3").WithField("bucket", h.bucket).Warn("Bucket versioning is off, enabling")
	_, err = h.client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(h.bucket),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusEnabled,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to enable bucket versioning: %w", err)
	}
	return nil
}

// PutObject загружает данные и возвращает идентификатор созданной версии
func (h *Client) PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key is required")
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(h.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := h.client.PutObject(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to upload object to S3: %w", err)
	}

	versionID := aws.ToString(out.VersionId)
	if versionID == "" || versionID == "null" {
		return "", fmt.Errorf("%w: no version id returned for %s", ErrVersioningDisabled, key)
	}

	logutils.Component("s3").WithFields(logutils.Fields{
		"key":        key,
		"version_id": versionID,
		"size":       len(data),
	}).Debug("Object uploaded")

	return versionID, nil
}

// GetObject получает указанную версию объекта
func (h *Client) GetObject(ctx context.Context, key, versionID string) (Object, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	result, err := h.client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s@%s", ErrObjectNotFound, key, versionID)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}

	return NewObject(
		result.Body,
		aws.ToInt64(result.ContentLength),
		aws.ToString(result.ContentType),
		aws.ToString(result.VersionId),
	), nil
}

// PresignURL возвращает временную ссылку на скачивание конкретной версии
func (h *Client) PresignURL(ctx context.Context, key, versionID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = h.presignTTL
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	req, err := h.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchVersion", "NotFound":
			return true
		}
	}
	return false
}
