package repo

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/tbourn/go-forms-backend/internal/domain"
)

func TestCreateResponse_WithFileSpec_AndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedForm(t, db, "F")
	name := seedField(t, db, f.ID, "Nom", 1)
	doc := seedField(t, db, f.ID, "Pièce", 2)

	r := &domain.Response{FormID: f.ID, Inputs: []domain.ResponseInput{
		{FieldID: name.ID, Value: "Ada"},
		{FieldID: doc.ID, Value: "piece/cv-1.pdf", FileSpec: &domain.FileSpec{Name: "cv.pdf", Size: 12, MimeType: "application/pdf"}},
	}}
	if err := CreateResponse(ctx, db, r); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}

	got, err := GetResponse(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if len(got.Inputs) != 2 {
		t.Fatalf("inputs = %+v", got.Inputs)
	}
	var withSpec int
	for _, in := range got.Inputs {
		if in.FileSpec != nil {
			withSpec++
			if in.FileSpec.Name != "cv.pdf" {
				t.Fatalf("file spec = %+v", in.FileSpec)
			}
		}
	}
	if withSpec != 1 {
		t.Fatalf("expected one file spec, got %d", withSpec)
	}

	paths, err := StoredFilePaths(ctx, db, []string{r.ID})
	if err != nil || len(paths) != 1 || paths[0] != "piece/cv-1.pdf" {
		t.Fatalf("StoredFilePaths = %v, %v", paths, err)
	}
	if paths, err := FieldFilePaths(ctx, db, doc.ID); err != nil || len(paths) != 1 {
		t.Fatalf("FieldFilePaths = %v, %v", paths, err)
	}
	if paths, err := FieldFilePaths(ctx, db, name.ID); err != nil || len(paths) != 0 {
		t.Fatalf("FieldFilePaths(name) = %v, %v", paths, err)
	}
	if paths, err := FormFilePaths(ctx, db, f.ID); err != nil || len(paths) != 1 || paths[0] != "piece/cv-1.pdf" {
		t.Fatalf("FormFilePaths = %v, %v", paths, err)
	}
}

func TestResponseInputs_FollowFieldPosition(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedForm(t, db, "F")
	first := seedField(t, db, f.ID, "first", 1)
	second := seedField(t, db, f.ID, "second", 2)
	third := seedField(t, db, f.ID, "third", 3)

	r := &domain.Response{FormID: f.ID, Inputs: []domain.ResponseInput{
		{FieldID: third.ID, Value: "3"},
		{FieldID: second.ID, Value: "2"},
	}}
	if err := CreateResponse(ctx, db, r); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}
	if err := CreateInput(ctx, db, &domain.ResponseInput{ResponseID: r.ID, FieldID: first.ID, Value: "1"}); err != nil {
		t.Fatalf("CreateInput: %v", err)
	}

	values := func(inputs []domain.ResponseInput) string {
		var out string
		for _, in := range inputs {
			out += in.Value
		}
		return out
	}
	got, err := GetResponse(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if v := values(got.Inputs); v != "123" {
		t.Fatalf("GetResponse inputs = %q, want 123", v)
	}
	page, err := ListResponsesPage(ctx, db, f.ID, 0, 0)
	if err != nil || len(page) != 1 {
		t.Fatalf("ListResponsesPage = %v, %v", page, err)
	}
	if v := values(page[0].Inputs); v != "123" {
		t.Fatalf("ListResponsesPage inputs = %q, want 123", v)
	}
}

func TestInputs_CreateUpdateAndDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedForm(t, db, "F")
	a := seedField(t, db, f.ID, "a", 1)

	r := &domain.Response{FormID: f.ID}
	if err := CreateResponse(ctx, db, r); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}
	in := &domain.ResponseInput{ResponseID: r.ID, FieldID: a.ID, Value: "one"}
	if err := CreateInput(ctx, db, in); err != nil {
		t.Fatalf("CreateInput: %v", err)
	}
	if err := CreateInput(ctx, db, &domain.ResponseInput{ResponseID: r.ID, FieldID: a.ID, Value: "two"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := UpdateInputValue(ctx, db, in.ID, "two"); err != nil {
		t.Fatalf("UpdateInputValue: %v", err)
	}
	got, err := GetInput(ctx, db, r.ID, a.ID)
	if err != nil || got.Value != "two" {
		t.Fatalf("GetInput = %+v, %v", got, err)
	}

	if err := ReplaceFileSpec(ctx, db, in.ID, &domain.FileSpec{Name: "x.png", Size: 1, MimeType: "image/png"}); err != nil {
		t.Fatalf("ReplaceFileSpec: %v", err)
	}
	if err := ReplaceFileSpec(ctx, db, in.ID, &domain.FileSpec{Name: "y.png", Size: 2, MimeType: "image/png"}); err != nil {
		t.Fatalf("ReplaceFileSpec again: %v", err)
	}
	got, _ = GetInput(ctx, db, r.ID, a.ID)
	if got.FileSpec == nil || got.FileSpec.Name != "y.png" {
		t.Fatalf("file spec not replaced: %+v", got.FileSpec)
	}
	if err := ReplaceFileSpec(ctx, db, in.ID, nil); err != nil {
		t.Fatalf("ReplaceFileSpec nil: %v", err)
	}
	got, _ = GetInput(ctx, db, r.ID, a.ID)
	if got.FileSpec != nil {
		t.Fatalf("file spec should be gone")
	}
	if err := TouchResponse(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAndDeleteResponses(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := seedForm(t, db, "F")
	other := seedForm(t, db, "G")

	var ids []string
	for i := 0; i < 3; i++ {
		r := &domain.Response{FormID: f.ID}
		if err := CreateResponse(ctx, db, r); err != nil {
			t.Fatalf("CreateResponse: %v", err)
		}
		ids = append(ids, r.ID)
	}
	foreign := &domain.Response{FormID: other.ID}
	if err := CreateResponse(ctx, db, foreign); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}

	total, err := CountResponses(ctx, db, f.ID)
	if err != nil || total != 3 {
		t.Fatalf("CountResponses = %d, %v", total, err)
	}
	all, err := ListResponsesPage(ctx, db, f.ID, 0, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListResponsesPage(all) = %d, %v", len(all), err)
	}
	page, err := ListResponsesPage(ctx, db, f.ID, 0, 2)
	if err != nil || len(page) != 2 {
		t.Fatalf("ListResponsesPage(2) = %d, %v", len(page), err)
	}

	got, err := ListResponseIDs(ctx, db, f.ID)
	if err != nil {
		t.Fatalf("ListResponseIDs: %v", err)
	}
	sort.Strings(got)
	want := append([]string(nil), ids...)
	sort.Strings(want)
	if len(got) != 3 || got[0] != want[0] || got[2] != want[2] {
		t.Fatalf("ListResponseIDs = %v, want %v", got, want)
	}

	// Foreign IDs are ignored.
	n, err := DeleteResponses(ctx, db, f.ID, []string{ids[0], ids[1], foreign.ID})
	if err != nil || n != 2 {
		t.Fatalf("DeleteResponses = %d, %v", n, err)
	}
	if err := DeleteResponse(ctx, db, ids[2]); err != nil {
		t.Fatalf("DeleteResponse: %v", err)
	}
	if err := DeleteResponse(ctx, db, ids[2]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, _ := DeleteResponses(ctx, db, f.ID, nil); n != 0 {
		t.Fatalf("empty delete should be a no-op")
	}
}

func TestTemplatesAndUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tpl := &domain.TemplateFile{Name: "b.docx", MimeType: "application/msword", Path: "templateFiles/b.docx"}
	if err := CreateTemplate(ctx, db, tpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if err := CreateTemplate(ctx, db, &domain.TemplateFile{Name: "a.pdf", MimeType: "application/pdf", Path: "templateFiles/a.pdf"}); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	list, err := ListTemplates(ctx, db)
	if err != nil || len(list) != 2 || list[0].Name != "a.pdf" {
		t.Fatalf("ListTemplates = %+v, %v", list, err)
	}
	if err := UpdateTemplate(ctx, db, tpl.ID, map[string]any{"description": "Contrat"}); err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}
	got, err := GetTemplate(ctx, db, tpl.ID)
	if err != nil || got.Description != "Contrat" {
		t.Fatalf("GetTemplate = %+v, %v", got, err)
	}
	if err := DeleteTemplate(ctx, db, tpl.ID); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if _, err := GetTemplate(ctx, db, tpl.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	u := &domain.User{Username: "admin", Email: "admin@example.com", Role: domain.RoleAdmin, PasswordHash: "x"}
	if err := CreateUser(ctx, db, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	dup := &domain.User{Username: "admin", Email: "other@example.com", Role: domain.RoleEditor, PasswordHash: "x"}
	if err := CreateUser(ctx, db, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	byName, err := GetUserByUsername(ctx, db, "admin")
	if err != nil || byName.ID != u.ID {
		t.Fatalf("GetUserByUsername = %+v, %v", byName, err)
	}
	if n, _ := CountUsers(ctx, db); n != 1 {
		t.Fatalf("CountUsers = %d", n)
	}
	users, err := ListUsers(ctx, db)
	if err != nil || len(users) != 1 {
		t.Fatalf("ListUsers = %+v, %v", users, err)
	}
	if _, err := GetUser(ctx, db, u.ID); err != nil {
		t.Fatalf("GetUser: %v", err)
	}
}
