// Field HTTP handlers.
//
// This file exposes REST endpoints for the fields of a form, their options
// and their file associations:
//   - GET    /forms/{id}/fields              (list in display order)
//   - POST   /forms/{id}/fields              (create; ?option=default for a blank text field)
//   - GET    /forms/{id}/dependents          (conditional dependents per field)
//   - GET    /fields/{id}                    (get)
//   - PUT    /fields/{id}                    (update)
//   - POST   /fields/{id}/reset              (back to an empty text field)
//   - POST   /fields/{id}/move               (swap with the previous or next field)
//   - DELETE /fields/{id}                    (delete and compact order)
//   - POST   /fields/{id}/options            (add one option)
//   - POST   /fields/{id}/options/import     (bulk add from a text or markdown table)
//   - GET    /fields/{id}/options/search     (autocomplete suggestions)
//   - DELETE /options/{id}                   (delete an option)
//   - POST   /fields/{id}/associations       (bind to a template placeholder)
//   - DELETE /associations/{id}              (unbind)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forms-backend/internal/services"
)

//
// DTOs
//

// OptionRequest is one option of a choice field. A blank value takes the name.
type OptionRequest struct {
	OptionName  string `json:"option_name"  binding:"required" example:"Rouge"`
	OptionValue string `json:"option_value"                    example:"red"`
}

// AssociationRequest binds a field to a placeholder key of a template file.
type AssociationRequest struct {
	TemplateFileID string `json:"template_file_id" binding:"required,uuid" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Value          string `json:"value"                                    example:"NOM_ENFANT"`
}

// FieldRequest is the JSON payload for creating or updating a field. On
// update, omitted options or file associations are kept; an empty list
// clears them.
type FieldRequest struct {
	Name               string               `json:"name"                 binding:"required"           example:"Age"`
	Label              string               `json:"label"                                             example:"Âge de l'enfant"`
	Placeholder        string               `json:"placeholder"                                       example:"12"`
	Type               string               `json:"type"                 binding:"required,fieldtype" example:"number"`
	IsRequired         bool                 `json:"is_required"`
	IsMultiple         bool                 `json:"is_multiple"`
	IsHidden           bool                 `json:"is_hidden"`
	IsConditional      bool                 `json:"is_conditional"`
	DefaultValue       *string              `json:"default_value"`
	ConditionalInputID *string              `json:"conditional_input_id"`
	ConditionalValue   *string              `json:"conditional_value"`
	Options            []OptionRequest      `json:"options"              binding:"omitempty,dive"`
	FileAssociations   []AssociationRequest `json:"file_associations"    binding:"omitempty,dive"`
}

func (r FieldRequest) input() services.FieldInput {
	in := services.FieldInput{
		Name:               r.Name,
		Label:              r.Label,
		Placeholder:        r.Placeholder,
		Type:               r.Type,
		IsRequired:         r.IsRequired,
		IsMultiple:         r.IsMultiple,
		IsHidden:           r.IsHidden,
		IsConditional:      r.IsConditional,
		DefaultValue:       r.DefaultValue,
		ConditionalInputID: r.ConditionalInputID,
		ConditionalValue:   r.ConditionalValue,
	}
	if r.Options != nil {
		in.Options = make([]services.OptionInput, len(r.Options))
		for i, o := range r.Options {
			in.Options[i] = o.input()
		}
	}
	if r.FileAssociations != nil {
		in.FileAssociations = make([]services.AssociationInput, len(r.FileAssociations))
		for i, a := range r.FileAssociations {
			in.FileAssociations[i] = a.input()
		}
	}
	return in
}

func (o OptionRequest) input() services.OptionInput {
	return services.OptionInput{OptionName: o.OptionName, OptionValue: o.OptionValue}
}

func (a AssociationRequest) input() services.AssociationInput {
	return services.AssociationInput{TemplateFileID: a.TemplateFileID, Value: a.Value}
}

// MoveFieldRequest is the JSON payload for moving a field.
type MoveFieldRequest struct {
	Direction string `json:"direction" binding:"required,direction" example:"up" enums:"up,down"`
}

//
// Handlers
//

// ListFields godoc
// @ID          listFields
// @Summary     List the fields of a form
// @Tags        Fields
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Form ID"  format(uuid)
// @Success     200  {array}   domain.Field
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Router      /forms/{id}/fields [get]
func (h *Handlers) ListFields(c *gin.Context) {
	fields, err := h.fields.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, fields)
}

// CreateField godoc
// @ID          createField
// @Summary     Add a field to a form
// @Description Appends a field at the end of the form. With option=default the body is ignored and a text field named "Titre" is created.
// @Tags        Fields
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path   string                 true   "Form ID"  format(uuid)
// @Param       option  query  string                 false  "default"  Enums(default)
// @Param       body    body   handlers.FieldRequest  false  "Field definition"
// @Success     201  {object}  domain.Field
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Form is published"
// @Router      /forms/{id}/fields [post]
func (h *Handlers) CreateField(c *gin.Context) {
	ctx := c.Request.Context()
	formID := c.Param("id")

	if c.Query("option") == "default" {
		f, err := h.fields.CreateDefault(ctx, formID)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusCreated, f)
		return
	}

	var req FieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	f, err := h.fields.Create(ctx, formID, req.input())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, f)
}

// GetField godoc
// @ID          getField
// @Summary     Get a field
// @Tags        Fields
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Field ID"  format(uuid)
// @Success     200  {object}  domain.Field
// @Failure     404  {object}  handlers.ErrorResponse  "Field not found"
// @Router      /fields/{id} [get]
func (h *Handlers) GetField(c *gin.Context) {
	f, err := h.fields.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// UpdateField godoc
// @ID          updateField
// @Summary     Update a field
// @Tags        Fields
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                 true  "Field ID"  format(uuid)
// @Param       body  body  handlers.FieldRequest  true  "Field definition"
// @Success     200  {object}  domain.Field
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Field not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Form is published"
// @Router      /fields/{id} [put]
func (h *Handlers) UpdateField(c *gin.Context) {
	var req FieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	f, err := h.fields.Update(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// ResetField godoc
// @ID          resetField
// @Summary     Reset a field
// @Description Turns the field back into a text field without default value or options.
// @Tags        Fields
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Field ID"  format(uuid)
// @Success     200  {object}  domain.Field
// @Failure     404  {object}  handlers.ErrorResponse  "Field not found"
// @Router      /fields/{id}/reset [post]
func (h *Handlers) ResetField(c *gin.Context) {
	f, err := h.fields.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// MoveField godoc
// @ID          moveField
// @Summary     Move a field up or down
// @Description Swaps the field with its neighbour. Moving the first field up or the last one down returns 404 and changes nothing.
// @Tags        Fields
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                     true  "Field ID"  format(uuid)
// @Param       body  body  handlers.MoveFieldRequest  true  "Direction"
// @Success     200  {object}  domain.Field
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "No neighbour"
// @Failure     409  {object}  handlers.ErrorResponse  "Concurrent reorder"
// @Router      /fields/{id}/move [post]
func (h *Handlers) MoveField(c *gin.Context) {
	var req MoveFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	f, err := h.fields.Move(c.Request.Context(), c.Param("id"), req.Direction)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// DeleteField godoc
// @ID          deleteField
// @Summary     Delete a field
// @Description Deletes the field, its answers and uploads, and compacts the order of the remaining fields.
// @Tags        Fields
// @Security    BearerAuth
// @Param       id  path  string  true  "Field ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Field not found"
// @Router      /fields/{id} [delete]
func (h *Handlers) DeleteField(c *gin.Context) {
	if err := h.fields.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListDependents godoc
// @ID          listDependents
// @Summary     Conditional dependents of every field
// @Description Maps each field ID to the IDs of the fields shown conditionally on it.
// @Tags        Fields
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Form ID"  format(uuid)
// @Success     200  {object}  map[string][]string
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Router      /forms/{id}/dependents [get]
func (h *Handlers) ListDependents(c *gin.Context) {
	deps, err := h.fields.Dependents(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, deps)
}

// CreateOption godoc
// @ID          createOption
// @Summary     Add an option to a field
// @Description A value already used by the field gets a numeric suffix.
// @Tags        Options
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                  true  "Field ID"  format(uuid)
// @Param       body  body  handlers.OptionRequest  true  "Option"
// @Success     201  {object}  domain.Option
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Field not found"
// @Router      /fields/{id}/options [post]
func (h *Handlers) CreateOption(c *gin.Context) {
	var req OptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	o, err := h.fields.CreateOption(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, o)
}

// ImportOptions godoc
// @ID          importOptions
// @Summary     Bulk add options
// @Description Reads one option per line, or a markdown table whose first column is the name and second the value.
// @Tags        Options
// @Accept      plain
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Field ID"  format(uuid)
// @Param       body  body  string  true  "Options text"
// @Success     201  {array}   domain.Option
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Field not found"
// @Router      /fields/{id}/options/import [post]
func (h *Handlers) ImportOptions(c *gin.Context) {
	opts, err := h.fields.ImportOptions(c.Request.Context(), c.Param("id"), c.Request.Body)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, opts)
}

// SuggestOptions godoc
// @ID          suggestOptions
// @Summary     Autocomplete options
// @Description Ranks the options of a field against a partial query.
// @Tags        Options
// @Produce     json
// @Param       id  path   string  true   "Field ID"  format(uuid)
// @Param       q   query  string  false  "Partial text"
// @Success     200  {array}   search.Result
// @Failure     404  {object}  handlers.ErrorResponse  "Field not found"
// @Router      /fields/{id}/options/search [get]
func (h *Handlers) SuggestOptions(c *gin.Context) {
	res, err := h.fields.SuggestOptions(c.Request.Context(), c.Param("id"), c.Query("q"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// DeleteOption godoc
// @ID          deleteOption
// @Summary     Delete an option
// @Tags        Options
// @Security    BearerAuth
// @Param       id  path  string  true  "Option ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Option not found"
// @Router      /options/{id} [delete]
func (h *Handlers) DeleteOption(c *gin.Context) {
	if err := h.fields.DeleteOption(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// CreateAssociation godoc
// @ID          createAssociation
// @Summary     Bind a field to a template placeholder
// @Tags        Associations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                       true  "Field ID"  format(uuid)
// @Param       body  body  handlers.AssociationRequest  true  "Association"
// @Success     201  {object}  domain.FileAssociation
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Field or template not found"
// @Router      /fields/{id}/associations [post]
func (h *Handlers) CreateAssociation(c *gin.Context) {
	var req AssociationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	a, err := h.fields.CreateAssociation(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, a)
}

// DeleteAssociation godoc
// @ID          deleteAssociation
// @Summary     Remove a file association
// @Tags        Associations
// @Security    BearerAuth
// @Param       id  path  string  true  "Association ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Association not found"
// @Router      /associations/{id} [delete]
func (h *Handlers) DeleteAssociation(c *gin.Context) {
	if err := h.fields.DeleteAssociation(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
