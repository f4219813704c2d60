package user

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"duochat/internal/pkg/errs"
)

const (
	// MaxAvatarSize is the largest accepted avatar in bytes (5 MB).
	MaxAvatarSize = 5 * 1024 * 1024

	// AvatarUploadTTL is how long a presigned avatar upload URL stays valid.
	AvatarUploadTTL = 5 * time.Minute

	avatarPrefix = "avatars/"
)

// allowedAvatarTypes maps accepted extensions to their MIME type.
var allowedAvatarTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// ValidateAvatar checks the declared name, type and size of an avatar upload.
func ValidateAvatar(fileName, mimeType string, fileSize int64) *errs.CustomError {
	if fileSize <= 0 || fileSize > MaxAvatarSize {
		return errs.NewError(errs.ErrInvalidAvatar)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	expected, ok := allowedAvatarTypes[ext]
	if !ok || expected != strings.ToLower(mimeType) {
		return errs.NewError(errs.ErrInvalidAvatar)
	}

	return nil
}

// IsAllowedAvatarType reports whether mimeType is an accepted image type.
func IsAllowedAvatarType(mimeType string) bool {
	mimeType = strings.ToLower(mimeType)
	for _, t := range allowedAvatarTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// AvatarKey returns a fresh object key for userID keeping the file extension.
func AvatarKey(userID, fileName string) string {
	return avatarPrefix + userID + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(fileName))
}

// OwnsAvatarKey reports whether key lives under userID's avatar prefix.
func OwnsAvatarKey(userID, key string) bool {
	prefix := avatarPrefix + userID + "/"
	return strings.HasPrefix(key, prefix) && len(key) > len(prefix) && !strings.Contains(key, "..")
}
