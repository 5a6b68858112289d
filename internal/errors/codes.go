package errors

import (
	"errors"
	"net/http"
)

// Code is the machine readable error kind returned to clients.
type Code string

const (
	CodeTokenMissing       Code = "TOKEN_MISSING"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeSessionMismatch    Code = "SESSION_MISMATCH"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeUnknownService     Code = "UNKNOWN_SERVICE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeProviderError      Code = "PROVIDER_ERROR"
	CodeReauthRequired     Code = "REAUTH_REQUIRED"
	CodeNoUsableCredential Code = "NO_USABLE_CREDENTIAL"
	CodeServerError        Code = "SERVER_ERROR"
)

// Error is the single failure shape surfaced at the API boundary.
// Message is safe to show to a user; Err carries the internal cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status for the error's code.
func (e *Error) Status() int {
	return HTTPStatus(e.Code)
}

// NewCoded creates a coded error with no underlying cause.
func NewCoded(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and user-facing message to err.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// sentinelCodes maps package sentinels to codes so that plain wrapped
// errors still classify correctly at the boundary.
var sentinelCodes = []struct {
	err  error
	code Code
}{
	{ErrTokenMissing, CodeTokenMissing},
	{ErrTokenExpired, CodeTokenExpired},
	{ErrRefreshTokenExpired, CodeTokenExpired},
	{ErrInvalidToken, CodeTokenInvalid},
	{ErrInvalidRefreshToken, CodeTokenInvalid},
	{ErrInvalidState, CodeTokenInvalid},
	{ErrSessionMismatch, CodeSessionMismatch},
	{ErrUnknownService, CodeUnknownService},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrRefreshFailed, CodeReauthRequired},
	{ErrNoUsableCredential, CodeNoUsableCredential},
	{ErrVerificationFailed, CodeProviderError},
	{ErrProvider, CodeProviderError},
	{ErrNotConnected, CodeNotFound},
	{ErrNotFound, CodeNotFound},
}

// CodeOf classifies err. Unknown errors are SERVER_ERROR.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return CodeServerError
}

// HTTPStatus maps an error code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeTokenMissing, CodeTokenInvalid:
		return http.StatusUnauthorized
	case CodeTokenExpired, CodeSessionMismatch:
		return http.StatusForbidden
	case CodeInvalidRequest, CodeUnknownService:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeProviderError:
		return http.StatusBadGateway
	case CodeReauthRequired, CodeNoUsableCredential:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
