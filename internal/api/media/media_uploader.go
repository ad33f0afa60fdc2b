package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/FACorreiaa/go-account-service/config"
)

var ErrNoFile = errors.New("no file to upload")

var _ Uploader = (*S3Uploader)(nil)

// Uploader pushes a locally staged file to object storage and returns its
// public location.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (*UploadResult, error)
}

type UploadResult struct {
	URL string
	Key string
}

// objectPutter is the part of *s3.Client the uploader uses.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores media in an S3-compatible bucket (AWS, MinIO, R2).
type S3Uploader struct {
	client        objectPutter
	bucket        string
	publicBaseURL string
	logger        *slog.Logger
}

func NewS3Uploader(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Uploader(client, cfg.Bucket, cfg.PublicBaseURL, logger), nil
}

func newS3Uploader(client objectPutter, bucket, publicBaseURL string, logger *slog.Logger) *S3Uploader {
	return &S3Uploader{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

// Upload sends the file and removes the local copy whether or not the upload
// succeeded.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (*UploadResult, error) {
	if localPath == "" {
		return nil, ErrNoFile
	}
	l := u.logger.With(slog.String("method", "Upload"), slog.String("path", localPath))
	defer func() {
		if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.WarnContext(ctx, "Failed to remove staged file", slog.Any("error", err))
		}
	}()

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	contentType, err := sniffContentType(f)
	if err != nil {
		return nil, err
	}

	key := objectKey(localPath, time.Now())
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		l.ErrorContext(ctx, "Failed to upload object", slog.Any("error", err))
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	l.InfoContext(ctx, "Media uploaded", slog.String("key", key))
	return &UploadResult{URL: u.publicBaseURL + "/" + key, Key: key}, nil
}

func sniffContentType(f *os.File) (string, error) {
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", fmt.Errorf("read staged file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return "", fmt.Errorf("rewind staged file: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}

func objectKey(localPath string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(localPath))
	return path.Join("media", fmt.Sprintf("%d/%02d/%02d", now.Year(), now.Month(), now.Day()), uuid.NewString()+ext)
}
