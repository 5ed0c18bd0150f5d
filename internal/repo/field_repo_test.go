package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-forms-backend/internal/domain"
)

func TestMaxFieldOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedForm(t, db, "F")

	n, err := MaxFieldOrder(ctx, db, f.ID)
	if err != nil || n != 0 {
		t.Fatalf("empty form: %d, %v", n, err)
	}
	seedField(t, db, f.ID, "a", 1)
	seedField(t, db, f.ID, "b", 4)
	n, err = MaxFieldOrder(ctx, db, f.ID)
	if err != nil || n != 4 {
		t.Fatalf("MaxFieldOrder = %d, %v", n, err)
	}
}

func TestCreateField_NestedOptionsAndAssociations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedForm(t, db, "F")
	tpl := &domain.TemplateFile{Name: "contrat.docx", MimeType: "application/msword", Path: "templateFiles/contrat.docx"}
	if err := CreateTemplate(ctx, db, tpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	field := &domain.Field{
		FormID: f.ID, Name: "Couleur", Type: "select", Order: 1,
		Options: []domain.Option{
			{OptionName: "Rouge", OptionValue: "red", Order: 1},
			{OptionName: "Bleu", OptionValue: "blue", Order: 2},
		},
		FileAssociations: []domain.FileAssociation{{TemplateFileID: tpl.ID, Value: "couleur"}},
	}
	if err := CreateField(ctx, db, field); err != nil {
		t.Fatalf("CreateField: %v", err)
	}

	got, err := GetField(ctx, db, field.ID)
	if err != nil {
		t.Fatalf("GetField: %v", err)
	}
	if len(got.Options) != 2 || got.Options[0].OptionValue != "red" {
		t.Fatalf("options = %+v", got.Options)
	}
	if len(got.FileAssociations) != 1 || got.FileAssociations[0].TemplateFile == nil || got.FileAssociations[0].TemplateFile.Name != "contrat.docx" {
		t.Fatalf("associations = %+v", got.FileAssociations)
	}
}

func TestNeighborField(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedForm(t, db, "F")
	a := seedField(t, db, f.ID, "a", 1)
	b := seedField(t, db, f.ID, "b", 2)
	c := seedField(t, db, f.ID, "c", 3)

	up, err := NeighborField(ctx, db, f.ID, b.Order, true)
	if err != nil || up.ID != a.ID {
		t.Fatalf("up neighbor = %+v, %v", up, err)
	}
	down, err := NeighborField(ctx, db, f.ID, b.Order, false)
	if err != nil || down.ID != c.ID {
		t.Fatalf("down neighbor = %+v, %v", down, err)
	}
	if _, err := NeighborField(ctx, db, f.ID, a.Order, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("boundary should be ErrNotFound, got %v", err)
	}
}

func TestClearConditionsOn_AndDeleteFieldCascade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedForm(t, db, "F")
	age := seedField(t, db, f.ID, "Age", 1)
	comment := &domain.Field{
		FormID: f.ID, Name: "Comment", Type: "textarea", Order: 2,
		IsConditional: true, ConditionalInputID: strptr(age.ID), ConditionalValue: strptr("18"),
	}
	if err := CreateField(ctx, db, comment); err != nil {
		t.Fatalf("CreateField: %v", err)
	}
	r := &domain.Response{FormID: f.ID, Inputs: []domain.ResponseInput{{FieldID: age.ID, Value: "18"}}}
	if err := CreateResponse(ctx, db, r); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}

	n, err := ClearConditionsOn(ctx, db, age.ID)
	if err != nil || n != 1 {
		t.Fatalf("ClearConditionsOn = %d, %v", n, err)
	}
	got, _ := GetField(ctx, db, comment.ID)
	if got.IsConditional || got.ConditionalInputID != nil || got.ConditionalValue != nil {
		t.Fatalf("condition not cleared: %+v", got)
	}

	if err := DeleteField(ctx, db, age.ID); err != nil {
		t.Fatalf("DeleteField: %v", err)
	}
	var answers int64
	db.Model(&domain.ResponseInput{}).Where("field_id = ?", age.ID).Count(&answers)
	if answers != 0 {
		t.Fatalf("answers should cascade, %d left", answers)
	}
	if err := DeleteField(ctx, db, age.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetFieldOrder_AndUpdateField(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedForm(t, db, "F")
	a := seedField(t, db, f.ID, "a", 1)

	if err := SetFieldOrder(ctx, db, a.ID, 7); err != nil {
		t.Fatalf("SetFieldOrder: %v", err)
	}
	if err := UpdateField(ctx, db, a.ID, map[string]any{"label": "Libellé"}); err != nil {
		t.Fatalf("UpdateField: %v", err)
	}
	got, _ := GetField(ctx, db, a.ID)
	if got.Order != 7 || got.Label != "Libellé" {
		t.Fatalf("unexpected field: %+v", got)
	}
	if err := SetFieldOrder(ctx, db, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateOption_DuplicateValue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedForm(t, db, "F")
	field := seedField(t, db, f.ID, "Couleur", 1)

	if err := CreateOption(ctx, db, &domain.Option{FieldID: field.ID, OptionName: "Rouge", OptionValue: "red"}); err != nil {
		t.Fatalf("CreateOption: %v", err)
	}
	err := CreateOption(ctx, db, &domain.Option{FieldID: field.ID, OptionName: "Rouge", OptionValue: "red"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	opts, err := ListOptions(ctx, db, field.ID)
	if err != nil || len(opts) != 1 {
		t.Fatalf("ListOptions = %+v, %v", opts, err)
	}
	if err := DeleteOptionsForField(ctx, db, field.ID); err != nil {
		t.Fatalf("DeleteOptionsForField: %v", err)
	}
	if err := DeleteOption(ctx, db, opts[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
