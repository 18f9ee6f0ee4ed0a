package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/bookworm/internal/apperror"
	"github.com/sakif/bookworm/internal/media"
	"github.com/sakif/bookworm/internal/model"
	"github.com/sakif/bookworm/internal/repository"
)

const passwordRouteMessage = "This route is not for password updates. Please use /updateMyPassword."

// ProfileService reads and partially updates the current user's profile.
type ProfileService struct {
	users  repository.UserRepository
	media  media.Host
	logger *slog.Logger
}

func NewProfileService(users repository.UserRepository, host media.Host, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		users:  users,
		media:  host,
		logger: logger,
	}
}

// GetProfile returns the stored user.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, wrapUnlessDomain(err, "service/profile: loading user")
	}
	return user, nil
}

// UpdateMe applies a partial profile update:
//
//  1. reject password fields
//  2. load the stored user
//  3. build the patch from supplied fields that differ from the stored ones
//  4. validate the patch
//  5. check username/email against other users (username first)
//  6. normalise and upload the photo, if any
//  7. write the patch in one update
//  8. best-effort delete of the previous hosted photo
//
// A failed upload aborts before anything is written. If the write fails
// after a successful upload the new object is not deleted; it is logged.
// Steps 5 and 7 are not atomic; the store's UNIQUE indexes reject a racing
// duplicate, which surfaces as the same conflict error.
func (s *ProfileService) UpdateMe(ctx context.Context, userID string, update ProfileUpdate) (*model.User, error) {
	if update.HasPassword() {
		return nil, apperror.ValidationFailed("password", passwordRouteMessage)
	}

	current, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, wrapUnlessDomain(err, "service/profile: loading user")
	}

	patch := BuildProfilePatch(update, current)
	if err := validateStruct(patch, patchMessages); err != nil {
		return nil, err
	}

	if patch.ChangesIdentity() {
		if err := s.checkConflict(ctx, userID, patch); err != nil {
			return nil, err
		}
	}

	if update.Photo != nil {
		url, err := s.uploadPhoto(ctx, update.Photo)
		if err != nil {
			return nil, err
		}
		patch = patch.WithProfileImage(url)
	}

	if patch.Empty() {
		return current, nil
	}

	updated, err := s.users.UpdateProfile(ctx, userID, patch.Fields())
	if err != nil {
		if patch.ProfileImage != nil {
			s.logger.Warn("profile update failed after photo upload; new image left on host",
				slog.String("userID", userID),
				slog.String("url", *patch.ProfileImage),
			)
		}
		return nil, wrapUnlessDomain(err, "service/profile: applying patch")
	}

	if patch.ProfileImage != nil && current.ProfileImage != *patch.ProfileImage {
		destroyHosted(ctx, s.media, current.ProfileImage, s.logger)
	}

	s.logger.Info("profile updated",
		slog.String("userID", userID),
		slog.Bool("username", patch.Username != nil),
		slog.Bool("email", patch.Email != nil),
		slog.Bool("photo", patch.ProfileImage != nil),
	)
	return updated, nil
}

func (s *ProfileService) checkConflict(ctx context.Context, userID string, patch ProfilePatch) error {
	var username, email string
	if patch.Username != nil {
		username = *patch.Username
	}
	if patch.Email != nil {
		email = *patch.Email
	}

	other, err := s.users.FindConflict(ctx, userID, username, email)
	if err != nil {
		return fmt.Errorf("service/profile: checking conflicts: %w", err)
	}
	switch {
	case other == nil:
		return nil
	case username != "" && other.Username == username:
		return apperror.AlreadyExists("username", "Username")
	default:
		return apperror.AlreadyExists("email", "Email")
	}
}

func (s *ProfileService) uploadPhoto(ctx context.Context, photo []byte) (string, error) {
	normalized, err := media.NormalizeAvatar(photo)
	if err != nil {
		if errors.Is(err, media.ErrNotImage) {
			return "", apperror.ValidationFailed("photo", "Not an image! Please upload an image.")
		}
		return "", fmt.Errorf("service/profile: normalising photo: %w", err)
	}

	url, err := s.media.Upload(ctx, normalized, "image/jpeg")
	if err != nil {
		return "", apperror.Upstream("Profile image upload failed", err)
	}
	return url, nil
}
