package errors

import (
	"errors"
	"fmt"
)

// Common error types for the gateway
var (
	// Session errors
	ErrTokenMissing        = errors.New("token missing")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrSessionMismatch     = errors.New("session mismatch")

	// OAuth state errors
	ErrInvalidState = errors.New("invalid or expired state")

	// Connection errors
	ErrUnknownService      = errors.New("unknown service")
	ErrNotConnected        = errors.New("service not connected")
	ErrRefreshFailed       = errors.New("token refresh failed")
	ErrNoUsableCredential  = errors.New("no usable credential")
	ErrVerificationFailed  = errors.New("credential verification failed")
	ErrProvider            = errors.New("provider error")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnsupportedProvider = errors.New("unsupported provider operation")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
