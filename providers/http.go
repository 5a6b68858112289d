package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodySize bounds provider response bodies.
const maxBodySize = 1 << 20

// NewHTTPClient returns the client used for outbound provider calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// DoJSON sends req and decodes a 2xx JSON response into out. Any other
// status becomes a *ProviderError; verifyErr, when set, is attached for
// 401 and 403 responses.
func DoJSON(ctx context.Context, client *http.Client, req *http.Request, out any, provider, op string, verifyErr error) error {
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &ProviderError{Provider: provider, Op: op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &ProviderError{Provider: provider, Op: op, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := &ProviderError{Provider: provider, Op: op, StatusCode: resp.StatusCode, Message: MessageFromBody(body)}
		if verifyErr != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			pe.Err = verifyErr
		}
		return pe
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{Provider: provider, Op: op, StatusCode: resp.StatusCode, Message: "invalid response body", Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
