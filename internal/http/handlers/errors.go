// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package) and the translation of
// service errors into status codes. Codes give clients a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes mirror common HTTP status semantics.
//   - Domain-specific codes (e.g., validation_failed, form_published) are
//     reserved for business errors that cannot be conveyed by status alone.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "validation_failed",
//	  "message": "validation failed",
//	  "errors": ["Le champ Age doit être un nombre"]
//	}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forms-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeValidation       = "validation_failed"
	ErrCodeFormPublished    = "form_published"
	ErrCodeNotPublished     = "form_not_published"
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// statusOf maps service errors onto an HTTP status and code. Unknown errors
// are server errors.
func statusOf(err error) (int, string) {
	if _, ok := services.ValidationMessages(err); ok {
		return http.StatusBadRequest, ErrCodeValidation
	}
	switch {
	case errors.Is(err, services.ErrFormNotFound),
		errors.Is(err, services.ErrFieldNotFound),
		errors.Is(err, services.ErrOptionNotFound),
		errors.Is(err, services.ErrAssociationNotFound),
		errors.Is(err, services.ErrResponseNotFound),
		errors.Is(err, services.ErrTemplateNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrNoNeighbor):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrFormNotPublished):
		return http.StatusNotFound, ErrCodeNotPublished
	case errors.Is(err, services.ErrFormPublished):
		return http.StatusConflict, ErrCodeFormPublished
	case errors.Is(err, services.ErrAliasTaken),
		errors.Is(err, services.ErrUsernameTaken),
		errors.Is(err, services.ErrOrderConflict):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, services.ErrInvalidDirection),
		errors.Is(err, services.ErrTemplateTypeMismatch),
		errors.Is(err, services.ErrInvalidFile):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrCodeUnauthorized
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// failErr translates a service error into the error envelope. Validation
// errors carry their messages in `errors`.
func failErr(c *gin.Context, err error) {
	status, code := statusOf(err)
	if msgs, ok := services.ValidationMessages(err); ok {
		failValidation(c, msgs)
		return
	}
	fail(c, status, code, err.Error())
}
