// Package services defines the business logic for forms, their fields and
// options, responses, template files, and back-office users. This file
// centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/repo"
)

// Not-found errors.
var (
	ErrFormNotFound        = errors.New("form not found")
	ErrFieldNotFound       = errors.New("field not found")
	ErrOptionNotFound      = errors.New("option not found")
	ErrAssociationNotFound = errors.New("file association not found")
	ErrResponseNotFound    = errors.New("response not found")
	ErrTemplateNotFound    = errors.New("template file not found")
	ErrUserNotFound        = errors.New("user not found")

	// ErrNoNeighbor is returned by Move when the field is already first
	// (moving up) or last (moving down). Nothing is changed.
	ErrNoNeighbor = errors.New("no neighbor in that direction")
)

// Policy and conflict errors.
var (
	// ErrFormPublished is returned for structural edits on a published form.
	ErrFormPublished = errors.New("form is published")

	// ErrFormNotPublished is returned when a public caller addresses a draft.
	ErrFormNotPublished = errors.New("form is not published")

	// ErrAliasTaken is returned when another form already uses the alias.
	ErrAliasTaken = errors.New("Cet alias est déjà utilisé")

	// ErrOrderConflict is returned when concurrent order mutations kept
	// winning the optimistic version check.
	ErrOrderConflict = errors.New("field order changed concurrently, retry")

	// ErrInvalidDirection is returned by Move for anything but up/down.
	ErrInvalidDirection = errors.New("direction must be up or down")

	// ErrUsernameTaken is returned when creating a user with a used
	// username or email.
	ErrUsernameTaken = errors.New("username or email already in use")

	// ErrInvalidCredentials is returned by Login for unknown users and bad
	// passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTemplateTypeMismatch is returned when replacing a template's content
	// with a file of another mime type.
	ErrTemplateTypeMismatch = errors.New("replacement file must have the same type")

	// ErrInvalidFile is returned for undecodable uploads.
	ErrInvalidFile = errors.New("invalid file payload")
)

// ValidationError carries user-facing validation messages.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// invalid wraps msgs into a *ValidationError, or returns nil when empty.
func invalid(msgs ...string) error {
	if len(msgs) == 0 {
		return nil
	}
	return &ValidationError{Messages: msgs}
}

// ValidationMessages extracts the messages of a *ValidationError.
func ValidationMessages(err error) ([]string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Messages, true
	}
	return nil, false
}

// isNotFound treats repo-level not found sentinels as "not found" in a
// driver-agnostic way.
func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// notFound maps a repository miss to the given sentinel and passes other
// errors through.
func notFound(err, sentinel error) error {
	if isNotFound(err) {
		return sentinel
	}
	return err
}
