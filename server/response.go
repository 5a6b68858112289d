package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jrsteele09/kay-gateway/credentials"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
	"github.com/jrsteele09/kay-gateway/providers"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// ErrorResponse is the single failure body returned by every handler.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    apperrors.Code `json:"code"`
	Message string         `json:"message"`
	Details string         `json:"details,omitempty"`
}

var errorTitles = map[apperrors.Code]string{
	apperrors.CodeTokenMissing:       "Authentication required",
	apperrors.CodeTokenInvalid:       "Invalid token",
	apperrors.CodeTokenExpired:       "Token expired",
	apperrors.CodeSessionMismatch:    "Session mismatch",
	apperrors.CodeInvalidRequest:     "Invalid request",
	apperrors.CodeUnknownService:     "Unknown service",
	apperrors.CodeNotFound:           "Not found",
	apperrors.CodeProviderError:      "Provider error",
	apperrors.CodeReauthRequired:     "Reauthorization required",
	apperrors.CodeNoUsableCredential: "No usable credential",
	apperrors.CodeServerError:        "Internal server error",
}

var defaultMessages = map[apperrors.Code]string{
	apperrors.CodeTokenMissing:       "a bearer session token is required",
	apperrors.CodeTokenInvalid:       "the token is invalid or has been revoked",
	apperrors.CodeTokenExpired:       "the token has expired",
	apperrors.CodeSessionMismatch:    "the session does not match the authenticated device session",
	apperrors.CodeInvalidRequest:     "the request is missing or has malformed parameters",
	apperrors.CodeUnknownService:     "the requested service is not supported",
	apperrors.CodeNotFound:           "the requested resource was not found",
	apperrors.CodeProviderError:      "the provider rejected the request",
	apperrors.CodeReauthRequired:     "the connection must be authorized again",
	apperrors.CodeNoUsableCredential: "the stored credential cannot be used, reconnect the service",
	apperrors.CodeServerError:        "an unexpected error occurred",
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError classifies err and writes the uniform error body. Internal
// causes are only exposed as details in DEV.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	status := apperrors.HTTPStatus(code)

	body := ErrorResponse{
		Error:   errorTitles[code],
		Code:    code,
		Message: publicMessage(err, code),
	}
	if s.env == "DEV" {
		body.Details = err.Error()
	}

	logger := s.loggerFrom(r)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("code", string(code)).Msg("request failed")
	} else {
		logger.Debug().Err(err).Str("code", string(code)).Msg("request rejected")
	}

	writeJSON(w, status, body)
}

// publicMessage picks a user safe message. Provider and credential errors
// carry no secrets and are returned as is.
func publicMessage(err error, code apperrors.Code) string {
	var coded *apperrors.Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	var credErr *credentials.CredentialError
	if errors.As(err, &credErr) {
		return credErr.Error()
	}
	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		return provErr.Error()
	}
	if code == apperrors.CodeInvalidRequest || code == apperrors.CodeUnknownService {
		return err.Error()
	}
	if msg, ok := defaultMessages[code]; ok {
		return msg
	}
	return defaultMessages[apperrors.CodeServerError]
}

// decode reads a JSON body into v and validates it. An empty body decodes
// to the zero value so that optional bodies stay optional.
func decode(r *http.Request, v any) error {
	if r.Body != nil {
		err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
		if err != nil && !errors.Is(err, io.EOF) {
			return apperrors.Wrap(apperrors.CodeInvalidRequest, "invalid JSON body", err)
		}
	}
	if err := validate.Struct(v); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidRequest, validationMessage(err), err)
	}
	return nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request body"
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be an email address", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
