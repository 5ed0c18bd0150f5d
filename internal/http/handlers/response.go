package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forms-backend/internal/http/middleware"
)

// ErrorResponse is the body of every non-2xx answer. Validation failures
// carry one French message per broken rule in Errors, ready to be shown
// next to the form.
type ErrorResponse struct {
	// Echo of X-Request-ID, to find the request in the server logs.
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Machine-readable code, see errors.go.
	Code    string   `json:"code" example:"not_found"`
	Message string   `json:"message" example:"resource not found"`
	Errors  []string `json:"errors,omitempty" example:"Le champ Age est requis"`
}

// fail stops the handler chain with an ErrorResponse. Server errors are
// logged; client errors only show up in the access log.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// failValidation answers 400 validation_failed with the rule messages.
func failValidation(c *gin.Context, msgs []string) {
	middleware.Annotate(c, "validation_errors", strconv.Itoa(len(msgs)))
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      ErrCodeValidation,
		Message:   "validation failed",
		Errors:    msgs,
	})
}

// Fail lets the router answer unmatched routes with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
