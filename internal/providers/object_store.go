package providers

import (
	"bytes"
	"context"
	"fmt"

	"github.com/obralink/oraculo/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioUploader retains documents in S3-compatible object storage.
type minioUploader struct {
	client *minio.Client
	bucket string
}

func NewMinioUploader(cfg config.StorageConfig) (Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &minioUploader{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the retention bucket when it does not exist yet.
func EnsureBucket(ctx context.Context, u Uploader) error {
	m, ok := u.(*minioUploader)
	if !ok {
		return nil
	}
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (u *minioUploader) UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	_, err := u.client.PutObject(ctx, u.bucket, objectPath, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, objectPath), nil
}
