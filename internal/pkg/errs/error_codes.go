/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the server
and on the wire, for HTTP responses and realtime alerts alike.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Room and Message Errors
const (
	// ErrRoomNotFound indicates that the referenced room does not exist.
	ErrRoomNotFound = 2103

	// ErrNotRoomMember indicates that the caller tried to use a room it does not belong to.
	ErrNotRoomMember = 2105

	// ErrSelfRoom indicates an attempt to open a personal room with oneself.
	ErrSelfRoom = 2106

	// ErrMessageContentTooLong indicates that the message body exceeded the maximum length.
	ErrMessageContentTooLong = 2201

	// ErrMessageEmpty indicates that the message body was empty.
	ErrMessageEmpty = 2202

	// ErrInvalidAvatar indicates that an avatar upload request was rejected.
	ErrInvalidAvatar = 2301
)

// 3xxx: Account, Session and Security Errors
const (
	// ErrPowChallengeRequired indicates the client must complete a Proof-of-Work challenge first.
	ErrPowChallengeRequired = 3001

	// ErrPowChallengeInvalid indicates that the PoW proof provided by the client is invalid.
	ErrPowChallengeInvalid = 3002

	// ErrDuplicateAccount indicates that an account with the same email already exists.
	ErrDuplicateAccount = 3101

	// ErrMissingCredential indicates a local registration without a password.
	ErrMissingCredential = 3102

	// ErrUserNotFound indicates that no account matches the request.
	ErrUserNotFound = 3103

	// ErrExternalIdentityOnly indicates that the account has no local password.
	ErrExternalIdentityOnly = 3104

	// ErrInvalidCredential indicates a password mismatch.
	ErrInvalidCredential = 3105

	// ErrSessionNotFound indicates that the refresh token does not resolve to a live session.
	ErrSessionNotFound = 3106

	// ErrIncompleteAssertion indicates that the external identity lacks the email or the name.
	ErrIncompleteAssertion = 3107

	// ErrNoPayload indicates that the external identity assertion was rejected.
	ErrNoPayload = 3108

	// ErrUnauthenticated indicates that the request carried no credentials.
	ErrUnauthenticated = 3201

	// ErrInvalidToken indicates that the presented token failed signature or expiry checks.
	ErrInvalidToken = 3202
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStorageUnavailable indicates that object storage is not configured.
	ErrStorageUnavailable = 5001

	// ErrStorageFailed indicates that object storage rejected the request.
	ErrStorageFailed = 5002
)
