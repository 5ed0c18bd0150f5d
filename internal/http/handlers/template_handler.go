// Template file HTTP handlers.
//
//   - GET    /templates        (list)
//   - POST   /templates        (upload)
//   - GET    /templates/{id}   (get)
//   - PUT    /templates/{id}   (rename, describe, replace content)
//   - DELETE /templates/{id}   (delete with associations and document)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forms-backend/internal/services"
)

// TemplateRequest is the JSON payload for uploading or editing a template
// file. Content is a base64 data URL; on update an empty content keeps the
// stored document.
type TemplateRequest struct {
	Name        *string `json:"name"        example:"Attestation d'inscription"`
	Description *string `json:"description" example:"Modèle Word envoyé aux familles"`
	FileName    string  `json:"file_name"   example:"attestation.docx"`
	Content     string  `json:"content"     example:"data:application/pdf;base64,JVBERi0xLjQK"`
}

func (r TemplateRequest) input() services.TemplateInput {
	return services.TemplateInput{
		Name:        r.Name,
		Description: r.Description,
		FileName:    r.FileName,
		Content:     r.Content,
	}
}

// ListTemplates godoc
// @ID          listTemplates
// @Summary     List template files
// @Tags        Templates
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.TemplateFile
// @Router      /templates [get]
func (h *Handlers) ListTemplates(c *gin.Context) {
	out, err := h.templates.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, out)
}

// GetTemplate godoc
// @ID          getTemplate
// @Summary     Get a template file
// @Tags        Templates
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Template file ID"  format(uuid)
// @Success     200  {object}  domain.TemplateFile
// @Failure     404  {object}  handlers.ErrorResponse  "Template not found"
// @Router      /templates/{id} [get]
func (h *Handlers) GetTemplate(c *gin.Context) {
	t, err := h.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// CreateTemplate godoc
// @ID          createTemplate
// @Summary     Upload a template file
// @Tags        Templates
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.TemplateRequest  true  "Template file"
// @Success     201  {object}  domain.TemplateFile
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid file"
// @Router      /templates [post]
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	t, err := h.templates.Create(c.Request.Context(), req.input())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, t)
}

// UpdateTemplate godoc
// @ID          updateTemplate
// @Summary     Edit a template file
// @Description A replacement document must have the same mime type as the stored one.
// @Tags        Templates
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                    true  "Template file ID"  format(uuid)
// @Param       body  body  handlers.TemplateRequest  true  "Changes"
// @Success     200  {object}  domain.TemplateFile
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid file or type mismatch"
// @Failure     404  {object}  handlers.ErrorResponse  "Template not found"
// @Router      /templates/{id} [put]
func (h *Handlers) UpdateTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	t, err := h.templates.Update(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// DeleteTemplate godoc
// @ID          deleteTemplate
// @Summary     Delete a template file
// @Tags        Templates
// @Security    BearerAuth
// @Param       id  path  string  true  "Template file ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Template not found"
// @Router      /templates/{id} [delete]
func (h *Handlers) DeleteTemplate(c *gin.Context) {
	if err := h.templates.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
