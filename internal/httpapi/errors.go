package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps the domain taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionFull):
		return http.StatusConflict
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidCandidate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrCatalogUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the human-readable message shown to the user.
// Infrastructure details never leave the server.
func messageFor(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Field + ": " + ve.Message
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not found"
	case errors.Is(err, domain.ErrSessionFull):
		return "this session already has two participants"
	case errors.Is(err, domain.ErrForbidden):
		return "you are not a participant of this session"
	case errors.Is(err, domain.ErrInvalidCandidate):
		return "restaurant is not a candidate of this session"
	case errors.Is(err, domain.ErrUnauthenticated):
		return "missing or invalid credentials"
	case errors.Is(err, domain.ErrValidation):
		return "invalid request"
	case errors.Is(err, domain.ErrRateLimited):
		return "too many requests, slow down"
	case errors.Is(err, domain.ErrCatalogUnavailable):
		return "restaurant catalog is unavailable, try again later"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "service temporarily unavailable, try again later"
	default:
		return "internal error"
	}
}

func (h *handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{
		Code:    domain.Code(err),
		Message: messageFor(err),
	}})
}
