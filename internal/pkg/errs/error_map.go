/*
Package errs provides custom error types and application-level error code constants.

This file maps every error code to its client message and HTTP status.
*/
package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters."},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format."},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format."},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data."},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Room and Message Errors
	ErrRoomNotFound:          {Code: ErrRoomNotFound, Message: "room not found", Status: http.StatusNotFound},
	ErrNotRoomMember:         {Code: ErrNotRoomMember, Message: "You are not a member of this room.", Status: http.StatusForbidden},
	ErrSelfRoom:              {Code: ErrSelfRoom, Message: "You can't start a chat with yourself."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Message is empty."},
	ErrInvalidAvatar:         {Code: ErrInvalidAvatar, Message: "Invalid avatar."},

	// 3xxx: Account, Session and Security Errors
	ErrPowChallengeRequired: {Code: ErrPowChallengeRequired, Message: "Verification required. Please try again."},
	ErrPowChallengeInvalid:  {Code: ErrPowChallengeInvalid, Message: "Verification failed. Please try again."},
	ErrDuplicateAccount:     {Code: ErrDuplicateAccount, Message: "Email already exists"},
	ErrMissingCredential:    {Code: ErrMissingCredential, Message: "Password is required"},
	ErrUserNotFound:         {Code: ErrUserNotFound, Message: "No User found"},
	ErrExternalIdentityOnly: {Code: ErrExternalIdentityOnly, Message: "Only Google login allowed for this user"},
	ErrInvalidCredential:    {Code: ErrInvalidCredential, Message: "Incorrect password", Status: http.StatusUnauthorized},
	ErrSessionNotFound:      {Code: ErrSessionNotFound, Message: "User logged out or deleted"},
	ErrIncompleteAssertion:  {Code: ErrIncompleteAssertion, Message: "External identity is missing email or name"},
	ErrNoPayload:            {Code: ErrNoPayload, Message: "no payload", Status: http.StatusUnauthorized},
	ErrUnauthenticated:      {Code: ErrUnauthenticated, Message: "token not provided", Status: http.StatusUnauthorized},
	ErrInvalidToken:         {Code: ErrInvalidToken, Message: "Invalid Token", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown:            {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStorageUnavailable: {Code: ErrStorageUnavailable, Message: "File storage is not available.", Status: http.StatusServiceUnavailable},
	ErrStorageFailed:      {Code: ErrStorageFailed, Message: "File upload failed. Please try again.", Status: http.StatusInternalServerError},
}
