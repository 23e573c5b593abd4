package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/lmorrow/taskvault/internal/models"
)

// ProfileStore is the slice of account persistence the profile layer needs
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	UpdateProfile(ctx context.Context, id string, name string, avatar *models.Avatar) (*models.Account, error)
}

// UserService handles profile reads and the two mutable profile fields:
// display name and avatar. Email, role and provider are never updatable here.
type UserService struct {
	accounts ProfileStore
	avatars  AvatarStorage
	logger   *slog.Logger
}

func NewUserService(accounts ProfileStore, avatars AvatarStorage, logger *slog.Logger) *UserService {
	return &UserService{accounts: accounts, avatars: avatars, logger: logger}
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get profile", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return account, nil
}

// UpdateName changes the display name
func (s *UserService) UpdateName(ctx context.Context, userID, name string) (*models.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.ErrBadRequest
	}

	account, err := s.accounts.UpdateProfile(ctx, userID, name, nil)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update profile", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return account, nil
}

// UpdateAvatar stores a new profile image and removes the previous one. The
// old object is deleted only after the record points at the new one, so a
// failed upload never leaves the profile without an image.
func (s *UserService) UpdateAvatar(ctx context.Context, userID, filename, contentType string, body io.Reader, size int64) (*models.Account, error) {
	current, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get account for avatar update", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	avatar, err := s.avatars.Upload(ctx, userID, filename, contentType, body, size)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	account, err := s.accounts.UpdateProfile(ctx, userID, "", avatar)
	if err != nil {
		s.logger.Error("failed to save avatar reference", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if current.Avatar != nil && current.Avatar.Key != "" {
		if err := s.avatars.Delete(ctx, current.Avatar.Key); err != nil {
			s.logger.Warn("failed to delete replaced avatar",
				slog.String("user_id", userID), slog.String("key", current.Avatar.Key), slog.Any("error", err))
		}
	}

	return account, nil
}
