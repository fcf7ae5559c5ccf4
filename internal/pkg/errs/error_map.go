/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError template, used to standardize
HTTP responses and the text of chat error replies.
*/
package errs

import "net/http"

// errorMap stores the CustomError template corresponding to every application error code.
// Messages containing printf verbs are filled from the details passed to NewError.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Channel and Local Chat Errors
	ErrRoomIsFull:            {Code: ErrRoomIsFull, Message: "Room is full.", Status: http.StatusConflict},
	ErrChannelNotFound:       {Code: ErrChannelNotFound, Message: "Channel not found.", Status: http.StatusNotFound},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},

	// 3xxx: User, Session, and Security Errors
	ErrUnauthorized:     {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrForbidden:        {Code: ErrForbidden, Message: "You are not allowed to do that.", Status: http.StatusForbidden},
	ErrUserNotFound:     {Code: ErrUserNotFound, Message: "User not found.", Status: http.StatusNotFound},
	ErrUserDataNotFound: {Code: ErrUserDataNotFound, Message: "No data stored under that name.", Status: http.StatusNotFound},
	ErrUserDataExists:   {Code: ErrUserDataExists, Message: "Data already stored under that name.", Status: http.StatusConflict},

	// 4xxx: Command Errors
	ErrMissingArgument:        {Code: ErrMissingArgument, Message: "missing argument: %s", Status: http.StatusBadRequest},
	ErrInvalidArgument:        {Code: ErrInvalidArgument, Message: "invalid argument: %s", Status: http.StatusBadRequest},
	ErrNoPermissions:          {Code: ErrNoPermissions, Message: "you don't have the permissions to use this command", Status: http.StatusForbidden},
	ErrStore:                  {Code: ErrStore, Message: "database error: %s", Status: http.StatusInternalServerError},
	ErrInquiryMissingArgument: {Code: ErrInquiryMissingArgument, Message: "inquiry error: missing argument %s", Status: http.StatusBadRequest},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
