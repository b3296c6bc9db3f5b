package httpx

import (
	"errors"
	"net/http"

	"keyledger/internal/registry"

	"github.com/gin-gonic/gin"
)

// StatusFor maps a registry error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidKey):
		return http.StatusUnauthorized
	case errors.Is(err, registry.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, registry.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Abort writes the error response for err and stops the handler chain.
// Infrastructure details never reach the client.
func Abort(c *gin.Context, err error) {
	status := StatusFor(err)
	body := gin.H{"error": err.Error()}

	var verr *registry.ValidationError
	switch {
	case errors.As(err, &verr):
		body = gin.H{"error": registry.ErrValidation.Error(), "details": verr.Fields}
	case status == http.StatusServiceUnavailable:
		body = gin.H{"error": registry.ErrStoreUnavailable.Error()}
	case status == http.StatusInternalServerError:
		body = gin.H{"error": "internal server error"}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// BadRequest aborts with 400 for a body or query that could not be parsed.
func BadRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": []registry.FieldError{{Field: "request", Message: err.Error()}}})
}
