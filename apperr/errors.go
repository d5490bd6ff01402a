package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Code 错误码，对外稳定，客户端据此做分支
type Code string

const (
	AuthenticationFailed Code = "AUTHENTICATION_FAILED"
	RoomNotFound         Code = "ROOM_NOT_FOUND"
	RoomFull             Code = "ROOM_FULL"
	GameInProgress       Code = "GAME_IN_PROGRESS"
	NotHost              Code = "NOT_HOST"
	CannotStart          Code = "CANNOT_START"
	RateLimited          Code = "RATE_LIMITED"
	InvalidSettings      Code = "INVALID_SETTINGS"
	InvalidWord          Code = "INVALID_WORD"
	InvalidMessage       Code = "INVALID_MESSAGE"
	NotInRoom            Code = "NOT_IN_ROOM"
	NotDrawer            Code = "NOT_DRAWER"
	ConnectionLost       Code = "CONNECTION_LOST"
	RoomClosed           Code = "ROOM_CLOSED"
	Internal             Code = "INTERNAL_ERROR"
)

var messages = map[Code]string{
	AuthenticationFailed: "authentication failed",
	RoomNotFound:         "room not found",
	RoomFull:             "room is full",
	GameInProgress:       "game already in progress",
	NotHost:              "only the host can do that",
	CannotStart:          "game cannot be started",
	RateLimited:          "too many messages",
	InvalidSettings:      "invalid room settings",
	InvalidWord:          "invalid word",
	InvalidMessage:       "invalid message",
	NotInRoom:            "not in a room",
	NotDrawer:            "only the drawer can do that",
	ConnectionLost:       "connection lost",
	RoomClosed:           "room closed",
	Internal:             "internal server error",
}

// Error 应用错误
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code, so sentinel values can be
// compared with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New 创建错误，details 会拼接进 Details
func New(code Code, details ...string) *Error {
	msg, ok := messages[code]
	if !ok {
		msg = messages[Internal]
	}
	return &Error{
		Code:    code,
		Message: msg,
		Details: strings.Join(details, "; "),
	}
}

func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误；已经是 *Error 时保留原错误码
func Wrap(err error, code Code, details ...string) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	e := New(code, details...)
	e.Cause = err
	if e.Details == "" {
		e.Details = err.Error()
	}
	return e
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf 获取错误码，未知错误一律归为 Internal
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Internal
}

// Retryable reports whether the failure is transient from the caller's view.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case RateLimited, ConnectionLost:
		return true
	default:
		return false
	}
}

// Payload 发往客户端的错误体
type Payload struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Public converts err into its wire form. Internal failures never leak their
// text; they collapse to the generic Internal message.
func Public(err error) Payload {
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Code == Internal {
		return Payload{Code: Internal, Message: messages[Internal]}
	}
	msg := appErr.Message
	if appErr.Details != "" && appErr.Cause == nil {
		msg = appErr.Message + ": " + appErr.Details
	}
	return Payload{Code: appErr.Code, Message: msg}
}
