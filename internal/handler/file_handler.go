package handler

import (
	"net/http"

	"duochat/internal/pkg/req"
	"duochat/internal/pkg/resp"
)

// PresignAvatarInput describes the avatar the client is about to upload.
type PresignAvatarInput struct {
	FileName string `json:"fileName" validate:"required,max=255"`
	MimeType string `json:"mimeType" validate:"required"`
	FileSize int64  `json:"fileSize" validate:"required,gt=0"`
}

// SetAvatarInput points the caller's profile at an uploaded object.
type SetAvatarInput struct {
	FileKey string `json:"fileKey" validate:"required"`
}

// HandlePresignAvatar returns a time-limited URL the client PUTs its avatar to.
func HandlePresignAvatar(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PresignAvatarInput
		if customErr := req.BindAndValidate(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		upload, err := deps.Users.PresignAvatar(r.Context(), currentUser(r).ID, input.FileName, input.MimeType, input.FileSize)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, upload)
	}
}

// HandleSetAvatar confirms an uploaded avatar and returns the updated profile.
func HandleSetAvatar(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SetAvatarInput
		if customErr := req.BindAndValidate(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		me, err := deps.Users.SetAvatar(r.Context(), currentUser(r).ID, input.FileKey)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, me)
	}
}
