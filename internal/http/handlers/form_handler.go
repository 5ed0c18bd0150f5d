// Form HTTP handlers.
//
// This file exposes REST endpoints for form resources:
//   - GET    /forms                   (list, paginated, ETag support)
//   - POST   /forms                   (create draft)
//   - GET    /forms/{id}              (get by id or alias, with fields)
//   - PUT    /forms/{id}              (update metadata)
//   - POST   /forms/{id}/publish      (publish)
//   - POST   /forms/{id}/unpublish    (back to draft)
//   - POST   /forms/{id}/duplicate    (copy as draft)
//   - DELETE /forms/{id}              (delete with responses and uploads)
//   - GET    /forms/{id}/export       (portable YAML definition)
//   - POST   /forms/import            (create from a YAML/JSON definition)
//   - GET    /field-types             (field type descriptors)
package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/fieldtype"
	"github.com/tbourn/go-forms-backend/internal/services"
	"github.com/tbourn/go-forms-backend/internal/storage"
)

//
// DTOs
//

// FormRequest is the JSON payload for creating or updating a form. Omitted
// properties keep their stored value on update.
type FormRequest struct {
	Name               *string  `json:"name"                example:"Inscription été"`
	Description        *string  `json:"description"         example:"Inscriptions au centre aéré"`
	Alias              *string  `json:"alias"               example:"inscription-ete"`
	IsNotifying        *bool    `json:"is_notifying"        example:"true"`
	NotificationEmails []string `json:"notification_emails" binding:"omitempty,dive,email" example:"accueil@mairie.fr"`
}

func (r FormRequest) input() services.FormInput {
	return services.FormInput{
		Name:               r.Name,
		Description:        r.Description,
		Alias:              r.Alias,
		IsNotifying:        r.IsNotifying,
		NotificationEmails: r.NotificationEmails,
	}
}

// ListFormsResponse wraps a page of forms and pagination information.
type ListFormsResponse struct {
	Forms      []domain.Form `json:"forms"`
	Pagination Pagination    `json:"pagination"`
}

//
// Handlers
//

// ListForms godoc
// @ID          listForms
// @Summary     List forms (paginated)
// @Description Returns a page of forms, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Forms
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListFormsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /forms [get]
func (h *Handlers) ListForms(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.forms.Stats(ctx); err == nil {
		if weakETag(c, "forms", count, maxTS) {
			return
		}
	}

	items, total, err := h.forms.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListFormsResponse{Forms: items, Pagination: newPagination(page, pageSize, total)})
}

// CreateForm godoc
// @ID          createForm
// @Summary     Create a draft form
// @Tags        Forms
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.FormRequest  true  "Form metadata"
//
// @Success     201  {object}  domain.Form
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Alias already used"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /forms [post]
func (h *Handlers) CreateForm(c *gin.Context) {
	var req FormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	f, err := h.forms.Create(c.Request.Context(), req.input())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, f)
}

// GetForm godoc
// @ID          getForm
// @Summary     Get a form
// @Description Returns a form with its ordered fields, options and file associations. The path accepts an ID or an alias.
// @Tags        Forms
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Form ID or alias"
//
// @Success     200  {object}  domain.Form
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Router      /forms/{id} [get]
func (h *Handlers) GetForm(c *gin.Context) {
	f, err := h.forms.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// UpdateForm godoc
// @ID          updateForm
// @Summary     Update form metadata
// @Tags        Forms
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                true  "Form ID"  format(uuid)
// @Param       body  body  handlers.FormRequest  true  "Changed properties"
//
// @Success     200  {object}  domain.Form
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Alias already used"
// @Router      /forms/{id} [put]
func (h *Handlers) UpdateForm(c *gin.Context) {
	var req FormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	f, err := h.forms.Update(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// PublishForm godoc
// @ID          publishForm
// @Summary     Publish a form
// @Description Published forms accept public responses and refuse structural edits.
// @Tags        Forms
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Form ID"  format(uuid)
// @Success     200  {object}  domain.Form
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Router      /forms/{id}/publish [post]
func (h *Handlers) PublishForm(c *gin.Context) { h.setPublished(c, true) }

// UnpublishForm godoc
// @ID          unpublishForm
// @Summary     Move a form back to draft
// @Tags        Forms
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Form ID"  format(uuid)
// @Success     200  {object}  domain.Form
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Router      /forms/{id}/unpublish [post]
func (h *Handlers) UnpublishForm(c *gin.Context) { h.setPublished(c, false) }

func (h *Handlers) setPublished(c *gin.Context, published bool) {
	f, err := h.forms.SetPublished(c.Request.Context(), c.Param("id"), published)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// DuplicateForm godoc
// @ID          duplicateForm
// @Summary     Duplicate a form
// @Description Copies fields, options and file associations into a new draft named "<name>-copie".
// @Tags        Forms
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Form ID"  format(uuid)
// @Success     201  {object}  domain.Form
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Router      /forms/{id}/duplicate [post]
func (h *Handlers) DuplicateForm(c *gin.Context) {
	f, err := h.forms.Duplicate(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, f)
}

// DeleteForm godoc
// @ID          deleteForm
// @Summary     Delete a form
// @Description Deletes the form, its fields, responses and uploaded files.
// @Tags        Forms
// @Security    BearerAuth
// @Param       id  path  string  true  "Form ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Router      /forms/{id} [delete]
func (h *Handlers) DeleteForm(c *gin.Context) {
	if err := h.forms.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ExportForm godoc
// @ID          exportForm
// @Summary     Export a form definition
// @Description Returns the portable definition of a form as YAML, or JSON with format=json.
// @Tags        Forms
// @Produce     application/yaml,json
// @Security    BearerAuth
// @Param       id      path   string  true   "Form ID"  format(uuid)
// @Param       format  query  string  false  "yaml or json"  Enums(yaml,json)
// @Success     200  {object}  services.FormDocument
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Router      /forms/{id}/export [get]
func (h *Handlers) ExportForm(c *gin.Context) {
	doc, err := h.forms.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	if strings.EqualFold(c.Query("format"), "json") {
		ok(c, http.StatusOK, doc)
		return
	}
	var buf bytes.Buffer
	if err := services.EncodeFormDocument(&buf, doc); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+exportName(doc)+`.yaml"`)
	c.Data(http.StatusOK, "application/yaml; charset=utf-8", buf.Bytes())
}

// ImportForm godoc
// @ID          importForm
// @Summary     Import a form definition
// @Description Creates a draft form from a YAML (or JSON) definition as produced by export.
// @Tags        Forms
// @Accept      application/yaml,json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  services.FormDocument  true  "Form definition"
// @Success     201  {object}  domain.Form
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /forms/import [post]
func (h *Handlers) ImportForm(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "body too large")
		return
	}
	// JSON is a YAML subset, so one decoder serves both content types.
	doc, err := services.DecodeFormDocument(bytes.NewReader(body))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	f, err := h.forms.Import(c.Request.Context(), doc)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, f)
}

// ListFieldTypes godoc
// @ID          listFieldTypes
// @Summary     List field types
// @Description Returns every supported field type with its label and editor props.
// @Tags        Fields
// @Produce     json
// @Success     200  {array}  fieldtype.Descriptor
// @Router      /field-types [get]
func (h *Handlers) ListFieldTypes(c *gin.Context) {
	ok(c, http.StatusOK, fieldtype.Describe())
}

// exportName derives the download file name of an exported form.
func exportName(doc *services.FormDocument) string {
	if s := storage.Slug(doc.Name); s != "" {
		return s
	}
	return "form"
}
