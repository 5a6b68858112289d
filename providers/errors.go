package providers

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
)

// maxMessageLength bounds provider messages copied into errors.
const maxMessageLength = 200

// ProviderError describes a failed call to an external provider. Message is
// taken from the provider response and never includes request secrets.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed", e.Provider, e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() []error {
	if e.Err != nil {
		return []error{apperrors.ErrProvider, e.Err}
	}
	return []error{apperrors.ErrProvider}
}

// MessageFromBody extracts a human readable message from an error response.
func MessageFromBody(body []byte) string {
	var payload struct {
		Error            any    `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.ErrorDescription != "":
			return truncate(payload.ErrorDescription)
		case payload.Message != "":
			return truncate(payload.Message)
		}
		switch v := payload.Error.(type) {
		case string:
			return truncate(v)
		case map[string]any:
			if msg, ok := v["message"].(string); ok {
				return truncate(msg)
			}
		}
	}
	return truncate(strings.TrimSpace(string(body)))
}

// truncate caps s at maxMessageLength bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxMessageLength {
		return s
	}
	cut := maxMessageLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
