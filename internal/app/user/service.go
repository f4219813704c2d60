package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"duochat/internal/app/storage"
	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/logx"
)

// SearchLimit caps the number of users returned by a search.
const SearchLimit = 20

// Repository is the persistence the directory needs.
type Repository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]*User, error)
	SetAvatar(ctx context.Context, id, avatar string) error
}

// ObjectStorage is the avatar bucket.
type ObjectStorage interface {
	PresignUpload(ctx context.Context, key, mimeType string, fileSize int64, duration time.Duration) (string, error)
	Stat(ctx context.Context, key string) (*storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// AvatarUpload is returned by PresignAvatar.
type AvatarUpload struct {
	UploadURL string `json:"uploadUrl"`
	FileKey   string `json:"fileKey"`
	ExpiresIn int    `json:"expiresIn"`
}

// Service implements the user directory.
type Service struct {
	repo      Repository
	storage   ObjectStorage
	presenter Presenter
}

// NewService returns a directory Service. objects may be nil, which disables avatar upload.
func NewService(repo Repository, objects ObjectStorage, presenter Presenter) *Service {
	return &Service{repo: repo, storage: objects, presenter: presenter}
}

// Me returns the caller's current projection.
func (s *Service) Me(ctx context.Context, userID string) (Public, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Public{}, errs.NewError(errs.ErrUserNotFound)
	}
	if err != nil {
		return Public{}, err
	}
	return s.presenter.Public(u), nil
}

// Search returns users whose username contains query, excluding the caller.
func (s *Service) Search(ctx context.Context, callerID, query string) ([]Public, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Public{}, nil
	}

	users, err := s.repo.SearchUsers(ctx, query, callerID, SearchLimit)
	if err != nil {
		return nil, err
	}
	return s.presenter.PublicList(users), nil
}

// PresignAvatar validates the declared file and returns a presigned upload URL.
func (s *Service) PresignAvatar(ctx context.Context, userID, fileName, mimeType string, fileSize int64) (*AvatarUpload, error) {
	if s.storage == nil {
		return nil, errs.NewError(errs.ErrStorageUnavailable)
	}
	if customErr := ValidateAvatar(fileName, mimeType, fileSize); customErr != nil {
		return nil, customErr
	}

	key := AvatarKey(userID, fileName)
	url, err := s.storage.PresignUpload(ctx, key, strings.ToLower(mimeType), fileSize, AvatarUploadTTL)
	if err != nil {
		logx.Error(err, "Avatar presign failed", "user_id", userID)
		return nil, errs.NewError(errs.ErrStorageFailed)
	}

	return &AvatarUpload{
		UploadURL: url,
		FileKey:   key,
		ExpiresIn: int(AvatarUploadTTL.Seconds()),
	}, nil
}

// SetAvatar points the caller's profile picture at an uploaded object and removes
// the previous uploaded avatar, if any.
func (s *Service) SetAvatar(ctx context.Context, userID, fileKey string) (Public, error) {
	if s.storage == nil {
		return Public{}, errs.NewError(errs.ErrStorageUnavailable)
	}
	if !OwnsAvatarKey(userID, fileKey) {
		return Public{}, errs.NewError(errs.ErrInvalidAvatar)
	}

	info, err := s.storage.Stat(ctx, fileKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return Public{}, errs.NewError(errs.ErrInvalidAvatar)
	}
	if err != nil {
		logx.Error(err, "Avatar lookup failed", "user_id", userID)
		return Public{}, errs.NewError(errs.ErrStorageFailed)
	}
	if info.Size > MaxAvatarSize || !IsAllowedAvatarType(info.ContentType) {
		return Public{}, errs.NewError(errs.ErrInvalidAvatar)
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Public{}, errs.NewError(errs.ErrUserNotFound)
	}
	if err != nil {
		return Public{}, err
	}

	if err := s.repo.SetAvatar(ctx, userID, fileKey); err != nil {
		return Public{}, err
	}

	previous := u.Avatar
	if previous != fileKey && OwnsAvatarKey(userID, previous) {
		if err := s.storage.Delete(ctx, previous); err != nil {
			logx.Warn("Failed to delete replaced avatar", "user_id", userID, "key", previous)
		}
	}

	u.Avatar = fileKey
	return s.presenter.Public(u), nil
}
