package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/lmorrow/taskvault/internal/models"
)

// AvatarStorage defines the interface for profile image storage
type AvatarStorage interface {
	Upload(ctx context.Context, userID, filename, contentType string, body io.Reader, size int64) (*models.Avatar, error)
	Delete(ctx context.Context, key string) error
}

// S3AvatarStorage stores profile images in an S3 bucket
type S3AvatarStorage struct {
	client *s3.Client
	bucket string
	folder string
	region string
	logger *slog.Logger
}

func NewS3AvatarStorage(region, bucket, folder string, logger *slog.Logger) (*S3AvatarStorage, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3AvatarStorage{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		folder: strings.Trim(folder, "/"),
		region: region,
		logger: logger,
	}, nil
}

// Upload writes the image under a fresh key scoped to the account. The key
// is never derived from the client filename beyond its extension.
func (s *S3AvatarStorage) Upload(ctx context.Context, userID, filename, contentType string, body io.Reader, size int64) (*models.Avatar, error) {
	ext := strings.ToLower(path.Ext(filename))
	key := fmt.Sprintf("%s/%s/%s%s", s.folder, userID, uuid.New().String(), ext)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("failed to upload avatar",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to upload avatar: %w", err)
	}

	s.logger.Info("avatar uploaded",
		slog.String("user_id", userID),
		slog.String("key", key),
		slog.Int64("size", size))

	return &models.Avatar{
		Key:  key,
		URL:  fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key),
		Size: size,
	}, nil
}

// Delete removes a stored image. Deleting a missing key is not an error.
func (s *S3AvatarStorage) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error("failed to delete avatar", slog.String("key", key), slog.Any("error", err))
		return fmt.Errorf("failed to delete avatar: %w", err)
	}
	return nil
}
