package sdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"

	"github.com/filemirrorsync/filemirrorsync/internal/protocol"
)

// Client-side error taxonomy, per spec.md §7.
var (
	ErrCancelled = errors.New("sdk: round cancelled")
)

// ConfigError signals a malformed or missing client configuration value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sdk: config error: %s: %s", e.Field, e.Message)
}

// LocalIOFailure wraps an error reading or writing the local filesystem.
type LocalIOFailure struct {
	Path string
	Err  error
}

func (e *LocalIOFailure) Error() string {
	return fmt.Sprintf("sdk: local io failure: %s: %v", e.Path, e.Err)
}

func (e *LocalIOFailure) Unwrap() error { return e.Err }

// ServerRejection carries the HTTP status and decoded body of a non-2xx
// response, per spec.md §7's "ServerRejection (carries HTTP status and
// body)".
type ServerRejection struct {
	Operation  string
	StatusCode int
	Body       *protocol.APIError
}

func (e *ServerRejection) Error() string {
	if e.Body != nil {
		return fmt.Sprintf("sdk: %s rejected: status=%d code=%s message=%s", e.Operation, e.StatusCode, e.Body.Code, e.Body.Message)
	}
	return fmt.Sprintf("sdk: %s rejected: status=%d", e.Operation, e.StatusCode)
}

// IntegrityFailure signals a client-observed mismatch (e.g. local hash
// recomputed after read differs from what was sent), aborting the round.
type IntegrityFailure struct {
	Path    string
	Message string
}

func (e *IntegrityFailure) Error() string {
	return fmt.Sprintf("sdk: integrity failure: %s: %s", e.Path, e.Message)
}

// handleAPIError mirrors internal/syftsdk/sdk_errors.go's handleAPIError:
// a transport-level error is wrapped plainly, a decoded API error becomes
// a ServerRejection, and anything else surfaces the raw response dump.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("sdk: transport error: %s: %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*protocol.APIError); ok {
			return &ServerRejection{Operation: operation, StatusCode: resp.StatusCode, Body: apiErr}
		}
		return &ServerRejection{Operation: operation, StatusCode: resp.StatusCode}
	}

	return nil
}
