package services

import (
	"context"
	"io"

	"dessert_generator_go_backend/internal/models"

	"github.com/google/generative-ai-go/genai"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
)

type MockDessertGenerator struct {
	mock.Mock
}

func (m *MockDessertGenerator) GenerateDessert(ctx context.Context, ingredients string, theme models.Theme, language string) (*GeneratedDessert, error) {
	args := m.Called(ctx, ingredients, theme, language)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GeneratedDessert), args.Error(1)
}

type MockRecipeWriter struct {
	mock.Mock
}

func (m *MockRecipeWriter) WriteRecipe(ctx context.Context, ingredients string, theme models.Theme, language string) (*models.Recipe, error) {
	args := m.Called(ctx, ingredients, theme, language)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Recipe), args.Error(1)
}

type MockImageGenerator struct {
	mock.Mock
}

func (m *MockImageGenerator) GenerateImage(ctx context.Context, prompt string) (*GeneratedImage, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GeneratedImage), args.Error(1)
}

type MockImageStorage struct {
	mock.Mock
}

func (m *MockImageStorage) UploadImage(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

type MockContentGenerator struct {
	mock.Mock
}

func (m *MockContentGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, parts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*genai.GenerateContentResponse), args.Error(1)
}

type MockMinioAPI struct {
	mock.Mock
}

func (m *MockMinioAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinioAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

func (m *MockMinioAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}
