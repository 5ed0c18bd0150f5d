// Package services – OrderManager
//
// OrderManager owns every mutation of field positions: appending a field,
// compacting gaps, swapping neighbors and deleting a field. Each mutation of
// a form runs under that form's in-process lock, inside one transaction, and
// bumps forms.order_version with a compare-and-swap so that writers in other
// processes are detected and retried instead of interleaving.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/formlock"
	"github.com/tbourn/go-forms-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Move directions.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// OrderManager keeps field positions dense (1..N) within each form.
type OrderManager struct {
	DB    *gorm.DB
	Locks *formlock.Locker
	Files FileStore

	// MaxAttempts bounds retries after a lost version check.
	MaxAttempts int
}

// NewOrderManager wires an OrderManager with three attempts per mutation.
func NewOrderManager(db *gorm.DB, locks *formlock.Locker, files FileStore) *OrderManager {
	if locks == nil {
		locks = formlock.New()
	}
	return &OrderManager{DB: db, Locks: locks, Files: files, MaxAttempts: 3}
}

// mutate runs fn for formID under the form lock in a transaction, then bumps
// the form's order version. fn sees the form as loaded in that transaction.
func (m *OrderManager) mutate(ctx context.Context, formID string, fn func(tx *gorm.DB, form *domain.Form) error) error {
	unlock, err := m.Locks.Lock(ctx, formID)
	if err != nil {
		return err
	}
	defer unlock()

	attempts := m.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		err = m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			form, err := repo.GetForm(ctx, tx, formID)
			if err != nil {
				return notFound(err, ErrFormNotFound)
			}
			if err := fn(tx, form); err != nil {
				return err
			}
			return repo.BumpOrderVersion(ctx, tx, formID, form.OrderVersion)
		})
		if !errors.Is(err, repo.ErrStaleVersion) {
			return err
		}
		orderRetries.Inc()
	}
	return ErrOrderConflict
}

// fixOrder rewrites drifted positions to index+1 and reports how many rows
// changed.
func fixOrder(ctx context.Context, tx *gorm.DB, formID string) (int, error) {
	fields, err := repo.ListFieldOrder(ctx, tx, formID)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i, f := range fields {
		if f.Order == i+1 {
			continue
		}
		if err := repo.SetFieldOrder(ctx, tx, f.ID, i+1); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// FixOrder compacts the positions of a form's fields to 1..N. Running it on
// an already dense form changes nothing.
func (m *OrderManager) FixOrder(ctx context.Context, formID string) error {
	tr := otel.Tracer("services/OrderManager")
	ctx, span := tr.Start(ctx, "FixOrder",
		trace.WithAttributes(attribute.String("form.id", formID)),
	)
	defer span.End()

	return m.mutate(ctx, formID, func(tx *gorm.DB, _ *domain.Form) error {
		n, err := fixOrder(ctx, tx, formID)
		span.SetAttributes(attribute.Int("fields.reordered", n))
		return err
	})
}

// Append stores f as the last field of its form.
func (m *OrderManager) Append(ctx context.Context, f *domain.Field) error {
	tr := otel.Tracer("services/OrderManager")
	ctx, span := tr.Start(ctx, "Append",
		trace.WithAttributes(attribute.String("form.id", f.FormID)),
	)
	defer span.End()

	return m.mutate(ctx, f.FormID, func(tx *gorm.DB, form *domain.Form) error {
		if form.IsPublished() {
			return ErrFormPublished
		}
		if _, err := fixOrder(ctx, tx, form.ID); err != nil {
			return err
		}
		last, err := repo.MaxFieldOrder(ctx, tx, form.ID)
		if err != nil {
			return err
		}
		f.Order = last + 1
		return repo.CreateField(ctx, tx, f)
	})
}

// Move swaps a field with its neighbor above ("up") or below ("down") and
// returns the moved field with its new position. At either end of the form
// it returns ErrNoNeighbor and leaves every position untouched.
func (m *OrderManager) Move(ctx context.Context, fieldID, direction string) (*domain.Field, error) {
	tr := otel.Tracer("services/OrderManager")
	ctx, span := tr.Start(ctx, "Move",
		trace.WithAttributes(
			attribute.String("field.id", fieldID),
			attribute.String("direction", direction),
		),
	)
	defer span.End()

	var up bool
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case DirectionUp:
		up = true
	case DirectionDown:
	default:
		return nil, ErrInvalidDirection
	}

	f, err := repo.GetField(ctx, m.DB, fieldID)
	if err != nil {
		return nil, notFound(err, ErrFieldNotFound)
	}

	var moved *domain.Field
	err = m.mutate(ctx, f.FormID, func(tx *gorm.DB, form *domain.Form) error {
		if form.IsPublished() {
			return ErrFormPublished
		}
		if _, err := fixOrder(ctx, tx, form.ID); err != nil {
			return err
		}
		cur, err := repo.GetField(ctx, tx, fieldID)
		if err != nil {
			return notFound(err, ErrFieldNotFound)
		}
		nb, err := repo.NeighborField(ctx, tx, form.ID, cur.Order, up)
		if err != nil {
			return notFound(err, ErrNoNeighbor)
		}
		if err := repo.SetFieldOrder(ctx, tx, cur.ID, nb.Order); err != nil {
			return err
		}
		if err := repo.SetFieldOrder(ctx, tx, nb.ID, cur.Order); err != nil {
			return err
		}
		cur.Order = nb.Order
		moved = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// DeleteField removes a field together with its options, file associations
// and answers, turns fields conditioned on it back into plain fields and
// compacts the remaining positions. Uploaded answer files are removed once
// the transaction committed.
func (m *OrderManager) DeleteField(ctx context.Context, fieldID string) error {
	tr := otel.Tracer("services/OrderManager")
	ctx, span := tr.Start(ctx, "DeleteField",
		trace.WithAttributes(attribute.String("field.id", fieldID)),
	)
	defer span.End()

	f, err := repo.GetField(ctx, m.DB, fieldID)
	if err != nil {
		return notFound(err, ErrFieldNotFound)
	}

	var paths []string
	err = m.mutate(ctx, f.FormID, func(tx *gorm.DB, form *domain.Form) error {
		if form.IsPublished() {
			return ErrFormPublished
		}
		var err error
		if paths, err = repo.FieldFilePaths(ctx, tx, fieldID); err != nil {
			return err
		}
		if _, err := repo.ClearConditionsOn(ctx, tx, fieldID); err != nil {
			return err
		}
		if err := repo.DeleteField(ctx, tx, fieldID); err != nil {
			return notFound(err, ErrFieldNotFound)
		}
		_, err = fixOrder(ctx, tx, form.ID)
		return err
	})
	if err != nil {
		return err
	}
	removeFiles(ctx, m.Files, paths)
	return nil
}
