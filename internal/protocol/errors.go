package protocol

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes for the server-side taxonomy of spec.md §7.
const (
	CodeUnauthorized       = "E_UNAUTHORIZED"
	CodeInvalidPath        = "E_INVALID_PATH"
	CodeSessionNotFound    = "E_SESSION_NOT_FOUND"
	CodeSessionMismatch    = "E_SESSION_MISMATCH"
	CodeChunkCountMismatch = "E_CHUNK_COUNT_MISMATCH"
	CodeSizeMismatch       = "E_SIZE_MISMATCH"
	CodeHashMismatch       = "E_HASH_MISMATCH"
	CodeConflict           = "E_CONFLICT"
	CodeIOFailure          = "E_IO_FAILURE"
	CodeInvalidRequest     = "E_INVALID_REQUEST"
)

// APIError is the JSON shape returned on every non-2xx response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("filemirrorsync api error: code=%s, message=%s", e.Code, e.Message)
}

// NewAPIError constructs an APIError for a given code/message.
func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// AbortWithError aborts the gin context, records err for access logging,
// and writes the standard APIError JSON body.
func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	ctx.Abort()
	ctx.Error(err) //nolint:errcheck
	ctx.PureJSON(status, NewAPIError(code, err.Error()))
}

// StatusForCode maps a server error code to its HTTP status per spec.md §7.
func StatusForCode(code string) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInvalidPath, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeSessionNotFound:
		return http.StatusBadRequest
	case CodeSessionMismatch:
		return http.StatusBadRequest
	case CodeChunkCountMismatch, CodeSizeMismatch, CodeHashMismatch:
		return http.StatusConflict
	case CodeConflict:
		return http.StatusConflict
	case CodeIOFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
