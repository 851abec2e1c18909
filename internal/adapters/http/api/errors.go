package api

import (
	"errors"
	"net/http"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("missing or invalid identity")
)

// Error codes returned in errorResponse.Code.
const (
	codeBadRequest   = "bad_request"
	codeInvalidInput = "invalid_input"
	codeImplausible  = "implausible_score"
	codeUnauthorized = "unauthorized"
	codeNotFound     = "not_found"
	codeInternal     = "internal_error"
)

// statusFor maps an engine error to its HTTP status, code and the message
// safe to return. Storage failures never leak their cause.
func statusFor(err error) (int, string, string) {
	msg := err.Error()
	if r, ok := model.IsRejection(err); ok {
		msg = r.Reason
	}
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, codeInvalidInput, msg
	case errors.Is(err, model.ErrImplausibleScore):
		return http.StatusUnprocessableEntity, codeImplausible, msg
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, codeNotFound, "not found"
	default:
		return http.StatusInternalServerError, codeInternal, "internal error"
	}
}
