/*
Package errs provides custom error types and application-level error code constants.

These error codes identify request handling failures on the HTTP API as well as the
command failures that are rendered back into chat as "Error: ..." replies.
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

// 2xxx: Channel and Local Chat Errors
const (
	// ErrRoomIsFull indicates that a local chat room has reached its capacity.
	ErrRoomIsFull = 2102

	// ErrChannelNotFound indicates that the addressed channel is not known to the bot.
	ErrChannelNotFound = 2103

	// ErrMessageContentTooLong indicates that a local chat message exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized indicates the request carries no valid web session.
	ErrUnauthorized = 3005

	// ErrForbidden indicates the session user is not allowed to perform the action.
	ErrForbidden = 3006

	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = 3007

	// ErrUserDataNotFound indicates the session user has no data under the requested name.
	ErrUserDataNotFound = 3008

	// ErrUserDataExists indicates a user data write without overwrite hit an existing entry.
	ErrUserDataExists = 3009
)

// 4xxx: Command Errors, rendered into chat
const (
	// ErrMissingArgument indicates a required command argument was not supplied.
	ErrMissingArgument = 4001

	// ErrInvalidArgument indicates a command argument was supplied but is not acceptable.
	ErrInvalidArgument = 4002

	// ErrNoPermissions indicates the caller's permission level is below the command's requirement.
	ErrNoPermissions = 4003

	// ErrStore indicates the entity store failed while serving the command.
	ErrStore = 4004

	// ErrInquiryMissingArgument indicates a malformed inquiry inside a command action.
	ErrInquiryMissingArgument = 4101
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
