package providers

import (
	"errors"

	"golang.org/x/oauth2"
)

// TokenError converts an oauth2 token endpoint failure into a
// *ProviderError carrying the provider's status and message.
func TokenError(provider, op string, err error) error {
	pe := &ProviderError{Provider: provider, Op: op, Err: err}
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		pe.Message = "token request failed"
		return pe
	}
	if re.Response != nil {
		pe.StatusCode = re.Response.StatusCode
	}
	switch {
	case re.ErrorDescription != "":
		pe.Message = truncate(re.ErrorDescription)
	case re.ErrorCode != "":
		pe.Message = re.ErrorCode
	default:
		pe.Message = MessageFromBody(re.Body)
	}
	return pe
}
