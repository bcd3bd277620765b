package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
	ErrInvalidToken   = errors.New("invalid token")

	ErrNameInUse           = errors.New("display name is already in use")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session expired")
	ErrSessionMismatch     = errors.New("session does not belong to user")
	ErrRequestNotFound     = errors.New("mediation request not found")
	ErrRoleNotRecognized   = errors.New("role not recognized")
	ErrRoleAlreadyTaken    = errors.New("role already taken for this request")
	ErrRequestClosed       = errors.New("mediation request is closed")
	ErrInvalidTransition   = errors.New("mediation request is not in a state that allows this")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrGenerationExhausted = errors.New("could not generate a free request id")
	ErrRequestIDTaken      = errors.New("request id already in use")
)

type APIError struct {
	Message string `json:"error"`
	Code    string `json:"code"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(err error) *APIError {
	return &APIError{
		Message: err.Error(),
		Code:    Code(err),
		Status:  HTTPStatusFromError(err),
	}
}

func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrSessionMismatch), errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNameInUse), errors.Is(err, ErrRoleAlreadyTaken),
		errors.Is(err, ErrRequestClosed), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrRequestIDTaken):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrRoleNotRecognized):
		return http.StatusBadRequest
	case errors.Is(err, ErrGenerationExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNameInUse):
		return "NAME_IN_USE"
	case errors.Is(err, ErrSessionNotFound):
		return "SESSION_NOT_FOUND"
	case errors.Is(err, ErrSessionExpired):
		return "SESSION_EXPIRED"
	case errors.Is(err, ErrSessionMismatch):
		return "SESSION_MISMATCH"
	case errors.Is(err, ErrRequestNotFound):
		return "REQUEST_NOT_FOUND"
	case errors.Is(err, ErrRoleNotRecognized):
		return "ROLE_NOT_RECOGNIZED"
	case errors.Is(err, ErrRoleAlreadyTaken):
		return "ROLE_ALREADY_TAKEN"
	case errors.Is(err, ErrRequestClosed):
		return "REQUEST_CLOSED"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrGenerationExhausted):
		return "GENERATION_EXHAUSTED"
	case errors.Is(err, ErrRequestIDTaken):
		return "REQUEST_ID_TAKEN"
	case errors.Is(err, ErrInvalidToken):
		return "INVALID_TOKEN"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrBadRequest):
		return "BAD_REQUEST"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

// Public hides internal failure details from clients.
func Public(err error) string {
	if HTTPStatusFromError(err) == http.StatusInternalServerError {
		return ErrInternalServer.Error()
	}
	return err.Error()
}
