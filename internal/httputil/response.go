package httputil

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	apperrors "github.com/wabridge/bridge-server-go/internal/errors"
)

var exposeInternal atomic.Bool

// ExposeInternalErrors controls whether 5xx responses carry the underlying error text.
// Only enabled in development.
func ExposeInternalErrors(enabled bool) {
	exposeInternal.Store(enabled)
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

// WriteError writes an error as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		log.Error().Err(err).Msg("unhandled error")
		msg := "Internal server error"
		if exposeInternal.Load() {
			msg = err.Error()
		}
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: msg,
			Code:  apperrors.ErrCodeInternal,
		})
		return
	}

	status := StatusFromCode(appErr.Code)
	msg := appErr.Message
	if status >= http.StatusInternalServerError {
		log.Error().Err(appErr).Int("status", status).Msg("request failed")
		if !exposeInternal.Load() {
			msg = "Internal server error"
		} else if cause := appErr.Unwrap(); cause != nil {
			msg = appErr.Message + ": " + cause.Error()
		}
	}

	WriteJSON(w, status, ErrorResponse{
		Error:   msg,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}

// WriteErrorWithStatus writes an error with a specific HTTP status code
func WriteErrorWithStatus(w http.ResponseWriter, status int, err *apperrors.AppError) {
	WriteJSON(w, status, ErrorResponse{
		Error:   err.Message,
		Code:    err.Code,
		Details: err.Details,
	})
}

// StatusFromCode maps ErrorCode to HTTP status code
func StatusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeStore,
		apperrors.ErrCodeNotConnected:
		return http.StatusBadRequest

	// 401 Unauthorized
	case apperrors.ErrCodeUnauthorized,
		apperrors.ErrCodeInvalidToken,
		apperrors.ErrCodeTokenExpired:
		return http.StatusUnauthorized

	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound

	case apperrors.ErrCodeAlreadyExists:
		return http.StatusConflict

	case apperrors.ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge

	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	case apperrors.ErrCodeSessionCapacity:
		return http.StatusServiceUnavailable

	case apperrors.ErrCodeExternal:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
