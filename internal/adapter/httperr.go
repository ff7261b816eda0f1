package adapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/BaSui01/agentflow/types"
)

// MapHTTPError maps an upstream HTTP status to the gateway's error
// taxonomy (spec.md §7): 429 -> RateLimited, 401/403 -> AuthFailed,
// other non-2xx -> RequestFailed (carried as ProviderError with the
// status embedded in the message), grounded on the teacher's
// llm/providers/common.go MapHTTPError but collapsed to the two-way
// 401/403 split the spec actually names.
func MapHTTPError(status int, body, provider string) *types.Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewError(types.ErrAuthFailed, body).
			WithHTTPStatus(http.StatusUnauthorized).
			WithProvider(provider)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, body).
			WithHTTPStatus(http.StatusTooManyRequests).
			WithRetryable(true).
			WithProvider(provider)
	default:
		return types.NewError(types.ErrProviderError, fmt.Sprintf("request failed (status=%d): %s", status, body)).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(status >= 500).
			WithProvider(provider)
	}
}

// TimeoutError wraps a transport-level timeout, spec.md's Timeout code.
func TimeoutError(provider string, cause error) *types.Error {
	return types.NewError(types.ErrProviderTimeout, "upstream request timed out").
		WithHTTPStatus(http.StatusGatewayTimeout).
		WithRetryable(true).
		WithProvider(provider).
		WithCause(cause)
}

// NetworkError wraps a non-timeout transport failure, spec.md's Network code.
func NetworkError(provider string, cause error) *types.Error {
	return types.NewError(types.ErrProviderError, "network error contacting provider").
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithProvider(provider).
		WithCause(cause)
}

// InvalidResponseError wraps a response-parse failure.
func InvalidResponseError(provider string, cause error) *types.Error {
	return types.NewError(types.ErrProviderError, "could not parse upstream response").
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(false).
		WithProvider(provider).
		WithCause(cause)
}

// ReadErrorMessage reads an error response body, trying the common
// {"error":{"message":...}} envelope first and falling back to raw text.
// Grounded on llm/providers/common.go's ReadErrorMessage.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return string(data)
}
