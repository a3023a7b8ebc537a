package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
)

// minioAPI is the slice of *minio.Client used here, so tests can run without a server.
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioImageStorage keeps generated dessert images in an S3-compatible bucket.
type MinioImageStorage struct {
	api           minioAPI
	bucket        string
	publicBaseURL string
}

var _ ImageStorage = (*MinioImageStorage)(nil)

func NewMinioImageStorage(ctx context.Context, client *minio.Client, bucket, publicBaseURL string) (*MinioImageStorage, error) {
	return NewMinioImageStorageWithAPI(ctx, client, bucket, publicBaseURL)
}

func NewMinioImageStorageWithAPI(ctx context.Context, api minioAPI, bucket, publicBaseURL string) (*MinioImageStorage, error) {
	s := &MinioImageStorage{
		api:           api,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}

	exists, err := api.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return s, nil
}

// UploadImage stores data under key and returns its public URL.
func (s *MinioImageStorage) UploadImage(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.api.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return s.PublicURL(key), nil
}

func (s *MinioImageStorage) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, key)
}
