package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/locbyt/valetd/internal/order/domain"
	"gorm.io/gorm"
)

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

// ValidationError carries a human-readable detail next to the machine code.
type ValidationError struct {
	Details string
}

func (v *ValidationError) Error() string {
	return "invalid_request"
}

func newValidationError(details string) error {
	return &ValidationError{Details: details}
}

// ErrorHandlingMiddleware turns errors recorded on the context into the
// wire format: {"error": "<code>"} plus optional details, never internal
// causes.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, body := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, body)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, gin.H) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		body := gin.H{"error": "invalid_request"}
		if vErr.Details != "" {
			body["details"] = vErr.Details
		}
		return http.StatusBadRequest, body
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orderdomain.ErrInvalidCoordinates):
		return http.StatusBadRequest, gin.H{"error": "invalid_request"}
	case errors.Is(err, orderdomain.ErrInvalidEventType),
		errors.Is(err, orderdomain.ErrTransitionNotAllowed):
		return http.StatusBadRequest, gin.H{"error": "invalid_type"}
	case errors.Is(err, orderdomain.ErrInvalidPayload):
		return http.StatusBadRequest, gin.H{"error": "invalid_payload"}
	case errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, gin.H{"error": "not_found"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal_error"}
	}
}

// classifyErrorForLog reports the wire code for request logging.
func classifyErrorForLog(err error) string {
	_, body := mapError(err)
	if code, ok := body["error"].(string); ok {
		return code
	}
	return "internal_error"
}
