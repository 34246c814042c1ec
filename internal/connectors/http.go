package connectors

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

// maxErrorBody caps how much of an error response is carried in errors.
const maxErrorBody = 2048

// CheckResponse maps a provider HTTP response to the error taxonomy.
// Non-2xx statuses map through domain.MapHTTPStatus; a 200 whose JSON
// body carries an "error" field is normalised to a failure, since some
// providers signal OAuth errors that way.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.MapHTTPStatus(resp.StatusCode, string(body))
	}
	return nil
}

// DecodeBody reads a 2xx JSON response into v, treating an embedded
// "error" field as an authentication failure before decoding succeeds.
func DecodeBody(resp *http.Response, v any) error {
	if err := CheckResponse(resp); err != nil {
		return err
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response body: %v", domain.ErrNetwork, err)
	}
	if msg, found := embeddedError(raw); found {
		return fmt.Errorf("%w: provider error: %s", domain.ErrAuthenticationFailed, msg)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// embeddedError detects {"error": ...} payloads inside 200 responses.
func embeddedError(raw []byte) (string, bool) {
	var probe struct {
		Error            any    `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Error == nil {
		return "", false
	}
	switch e := probe.Error.(type) {
	case string:
		if e == "" {
			return "", false
		}
		if probe.ErrorDescription != "" {
			return e + ": " + probe.ErrorDescription, true
		}
		return e, true
	default:
		return fmt.Sprint(e), true
	}
}
