package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optionValuesOf(t *testing.T, fx *fixture, fieldID string) []string {
	t.Helper()
	f, err := fx.fields.Get(context.Background(), fieldID)
	require.NoError(t, err)
	out := make([]string, len(f.Options))
	for i, o := range f.Options {
		out[i] = o.OptionValue
	}
	return out
}

func TestFieldService_CreateValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	form := fx.form(t, "F")
	ref := fx.field(t, form.ID, FieldInput{Name: "Ref", Type: "text"})

	tests := []struct {
		name string
		in   FieldInput
		want []string
	}{
		{"name required", FieldInput{Name: "   ", Type: "text"}, []string{"Le nom du champ est requis"}},
		{"unknown type", FieldInput{Name: "X", Type: "hologram"}, []string{`Le type de champ "hologram" n'existe pas`}},
		{"hidden and required", FieldInput{Name: "X", Type: "text", IsHidden: true, IsRequired: true}, []string{"Un champ masqué ne peut pas être requis"}},
		{"options on text", FieldInput{Name: "X", Type: "text", Options: []OptionInput{{OptionName: "a"}}}, []string{`Le champ "X" n'accepte pas d'options`}},
		{"separator in option", FieldInput{Name: "X", Type: "select", Options: []OptionInput{{OptionName: "a;b"}}}, []string{`La valeur d'option "a;b" ne peut pas contenir ";"`}},
		{"empty option", FieldInput{Name: "X", Type: "select", Options: []OptionInput{{}}}, []string{"Une option doit avoir un nom"}},
		{"conditional without value", FieldInput{Name: "X", Type: "text", IsConditional: true, ConditionalInputID: &ref.ID},
			[]string{"Un champ conditionnel doit indiquer le champ de référence et la valeur attendue"}},
		{"conditional on unknown field", FieldInput{Name: "X", Type: "text", IsConditional: true, ConditionalInputID: strptr("nope"), ConditionalValue: strptr("1")},
			[]string{"Le champ de référence n'existe pas dans ce formulaire"}},
		{"default not an option", FieldInput{Name: "X", Type: "select", DefaultValue: strptr("blue"), Options: []OptionInput{{OptionName: "Rouge", OptionValue: "red"}}},
			[]string{`La réponse au champ "X" ne correspond pas aux options du formulaire`}},
		{"default on file", FieldInput{Name: "X", Type: "file", DefaultValue: strptr("a")}, []string{`Le champ "X" ne peut pas avoir de valeur par défaut`}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.fields.Create(ctx, form.ID, tc.in)
			msgs, ok := ValidationMessages(err)
			require.True(t, ok, "want validation error, got %v", err)
			assert.Equal(t, tc.want, msgs)
		})
	}

	fields, err := fx.fields.List(ctx, form.ID)
	require.NoError(t, err)
	assert.Len(t, fields, 1, "rejected fields are not stored")
}

func TestFieldService_CreateNormalizes(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	form := fx.form(t, "F")

	f, err := fx.fields.Create(ctx, form.ID, FieldInput{Name: "  Ma   note ", Type: " rating ", Placeholder: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "Ma note", f.Name)
	assert.Equal(t, "rating", f.Type)
	assert.Empty(t, f.Placeholder, "ratings have no placeholder")

	// conditional settings are dropped on non-conditional fields
	g, err := fx.fields.Create(ctx, form.ID, FieldInput{Name: "G", ConditionalInputID: &f.ID, ConditionalValue: strptr("3")})
	require.NoError(t, err)
	assert.Equal(t, "text", g.Type)
	assert.Nil(t, g.ConditionalInputID)

	d, err := fx.fields.CreateDefault(ctx, form.ID)
	require.NoError(t, err)
	assert.Equal(t, "Titre", d.Name)
	assert.Equal(t, "Label", d.Label)
	assert.Equal(t, 3, d.Order)
}

func TestFieldService_OptionsAutoSuffix(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	form := fx.form(t, "F")
	f := fx.field(t, form.ID, FieldInput{Name: "Couleur", Type: "select", Options: []OptionInput{
		{OptionName: "Rouge", OptionValue: "red"},
		{OptionName: "Rouge foncé", OptionValue: "red"},
	}})
	assert.Equal(t, []string{"red", "red2"}, optionValuesOf(t, fx, f.ID))

	o, err := fx.fields.CreateOption(ctx, f.ID, OptionInput{OptionName: "Encore", OptionValue: "red"})
	require.NoError(t, err)
	assert.Equal(t, "red3", o.OptionValue)
	assert.Equal(t, 3, o.Order)

	o, err = fx.fields.CreateOption(ctx, f.ID, OptionInput{OptionName: "Bleu"})
	require.NoError(t, err)
	assert.Equal(t, "Bleu", o.OptionValue, "value defaults to the name")

	require.NoError(t, fx.fields.DeleteOption(ctx, o.ID))
	assert.ErrorIs(t, fx.fields.DeleteOption(ctx, o.ID), ErrOptionNotFound)

	text := fx.field(t, form.ID, FieldInput{Name: "T", Type: "text"})
	_, err = fx.fields.CreateOption(ctx, text.ID, OptionInput{OptionName: "a"})
	_, ok := ValidationMessages(err)
	assert.True(t, ok)
}

func TestFieldService_ImportAndSuggest(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	form := fx.form(t, "F")
	f := fx.field(t, form.ID, FieldInput{Name: "Ville", Type: "autocomplete"})

	pasted := strings.Join([]string{
		"| Nom | Valeur |",
		"|-----|--------|",
		"| Paris | paris |",
		"Saint-Étienne = st-etienne",
		"",
		"Paris",
	}, "\n")
	created, err := fx.fields.ImportOptions(ctx, f.ID, strings.NewReader(pasted))
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.Equal(t, []string{"paris", "st-etienne", "Paris"}, optionValuesOf(t, fx, f.ID))

	_, err = fx.fields.ImportOptions(ctx, f.ID, strings.NewReader("\n\n"))
	msgs, ok := ValidationMessages(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Aucune option à importer"}, msgs)

	got, err := fx.fields.SuggestOptions(ctx, f.ID, "etienne")
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "st-etienne", got[0].Value)

	got, err = fx.fields.SuggestOptions(ctx, f.ID, "zzz")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = fx.fields.SuggestOptions(ctx, f.ID, "de la")
	require.NoError(t, err)
	assert.Empty(t, got, "articles alone match nothing")

	fx.fields.SuggestK = 2
	got, err = fx.fields.SuggestOptions(ctx, f.ID, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFieldService_UpdateAndReset(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	form := fx.form(t, "F")
	f := fx.field(t, form.ID, FieldInput{Name: "Couleur", Type: "select", IsMultiple: true,
		DefaultValue: strptr("red"), Options: []OptionInput{{OptionName: "Rouge", OptionValue: "red"}}})

	// nil options keep the stored ones
	upd, err := fx.fields.Update(ctx, f.ID, FieldInput{Name: "Teinte", Type: "select", DefaultValue: strptr("red")})
	require.NoError(t, err)
	assert.Equal(t, "Teinte", upd.Name)
	assert.Equal(t, []string{"red"}, optionValuesOf(t, fx, f.ID))
	assert.Equal(t, 1, upd.Order, "position is untouched")

	upd, err = fx.fields.Update(ctx, f.ID, FieldInput{Name: "Teinte", Type: "select",
		Options: []OptionInput{{OptionName: "Vert", OptionValue: "green"}, {OptionName: "Bleu", OptionValue: "blue"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"green", "blue"}, optionValuesOf(t, fx, f.ID))
	assert.Nil(t, upd.DefaultValue)

	_, err = fx.fields.Update(ctx, f.ID, FieldInput{Name: "Teinte", Type: "select", DefaultValue: strptr("red")})
	_, ok := ValidationMessages(err)
	assert.True(t, ok, "default must be one of the stored options")

	_, err = fx.fields.Update(ctx, f.ID, FieldInput{Name: "Self", Type: "text", IsConditional: true, ConditionalInputID: &f.ID, ConditionalValue: strptr("x")})
	msgs, ok := ValidationMessages(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Un champ ne peut pas dépendre de lui-même"}, msgs)

	reset, err := fx.fields.Reset(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "text", reset.Type)
	assert.False(t, reset.IsMultiple)
	assert.Nil(t, reset.DefaultValue)
	assert.Empty(t, reset.Options)

	_, err = fx.fields.Update(ctx, "missing", FieldInput{Name: "x"})
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestFieldService_PublishedFormsAreFrozen(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	form := fx.form(t, "F")
	f := fx.field(t, form.ID, FieldInput{Name: "Couleur", Type: "select", Options: []OptionInput{{OptionName: "Rouge"}}})
	fx.publish(t, form.ID)

	_, err := fx.fields.Create(ctx, form.ID, FieldInput{Name: "X"})
	assert.ErrorIs(t, err, ErrFormPublished)
	_, err = fx.fields.Update(ctx, f.ID, FieldInput{Name: "Y", Type: "select"})
	assert.ErrorIs(t, err, ErrFormPublished)
	_, err = fx.fields.Reset(ctx, f.ID)
	assert.ErrorIs(t, err, ErrFormPublished)
	_, err = fx.fields.CreateOption(ctx, f.ID, OptionInput{OptionName: "Bleu"})
	assert.ErrorIs(t, err, ErrFormPublished)
	_, err = fx.fields.Move(ctx, f.ID, DirectionDown)
	assert.ErrorIs(t, err, ErrFormPublished)
	assert.ErrorIs(t, fx.fields.Delete(ctx, f.ID), ErrFormPublished)

	_, err = fx.fields.Create(ctx, "missing", FieldInput{Name: "X"})
	assert.ErrorIs(t, err, ErrFormNotFound)
}

func TestFieldService_AssociationsAndDependents(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	tpl, err := fx.templates.Create(ctx, TemplateInput{FileName: "a.pdf", Content: dataURL("application/pdf", "%PDF")})
	require.NoError(t, err)
	form := fx.form(t, "F")
	age := fx.field(t, form.ID, FieldInput{Name: "Age", Type: "number"})
	c := fx.field(t, form.ID, FieldInput{Name: "C", Type: "text", IsConditional: true, ConditionalInputID: &age.ID, ConditionalValue: strptr("1")})

	deps, err := fx.fields.Dependents(ctx, form.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, deps[age.ID])

	a, err := fx.fields.CreateAssociation(ctx, age.ID, AssociationInput{TemplateFileID: tpl.ID, Value: " AGE "})
	require.NoError(t, err)
	assert.Equal(t, "AGE", a.Value)

	_, err = fx.fields.CreateAssociation(ctx, age.ID, AssociationInput{TemplateFileID: "nope", Value: "X"})
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	_, err = fx.fields.Create(ctx, form.ID, FieldInput{Name: "D", FileAssociations: []AssociationInput{{TemplateFileID: "nope", Value: "D"}}})
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	require.NoError(t, fx.fields.DeleteAssociation(ctx, a.ID))
	assert.ErrorIs(t, fx.fields.DeleteAssociation(ctx, a.ID), ErrAssociationNotFound)
}
