// Public and external HTTP handlers.
//
// Public endpoints serve end users filling published forms:
//   - GET  /public/forms/{idOrAlias}             (published definition, cached)
//   - POST /public/forms/{idOrAlias}/responses   (submit, idempotent)
//
// External endpoints serve whitelisted integrations (document generators,
// intranet dashboards):
//   - GET /external/forms                        (published forms)
//   - GET /external/forms/{id}/responses         (response summaries)
//   - GET /external/responses/{id}/documents     (template document payloads)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FormRef is the compact form listing served to external consumers.
type FormRef struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Alias *string `json:"alias,omitempty"`
}

// PublicForm godoc
// @ID          publicForm
// @Summary     Get a published form
// @Description Returns a published form by ID or alias, without file associations.
// @Tags        Public
// @Produce     json
// @Param       idOrAlias  path  string  true  "Form ID or alias"
// @Success     200  {object}  domain.Form
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found or not published"
// @Router      /public/forms/{idOrAlias} [get]
func (h *Handlers) PublicForm(c *gin.Context) {
	f, err := h.forms.Public(c.Request.Context(), c.Param("idOrAlias"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// PublicSubmit godoc
// @ID          publicSubmit
// @Summary     Answer a published form
// @Description Validates and stores a response to a published form. Supports idempotency via the Idempotency-Key header.
// @Tags        Public
// @Accept      json
// @Produce     json
// @Param       idOrAlias        path    string                  true   "Form ID or alias"
// @Param       Idempotency-Key  header  string                  false  "Idempotency key for safe retries"
// @Param       body             body    handlers.SubmitRequest  true   "Answers"
// @Success     201  {object}  domain.Response
// @Success     200  {object}  domain.Response  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found or not published"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Router      /public/forms/{idOrAlias}/responses [post]
func (h *Handlers) PublicSubmit(c *gin.Context) {
	f, err := h.forms.Public(c.Request.Context(), c.Param("idOrAlias"))
	if err != nil {
		failErr(c, err)
		return
	}
	h.submit(c, f.ID, true)
}

// ExternalForms godoc
// @ID          externalForms
// @Summary     List published forms
// @Tags        External
// @Produce     json
// @Success     200  {array}   handlers.FormRef
// @Failure     403  {object}  handlers.ErrorResponse  "Origin not allowed"
// @Router      /external/forms [get]
func (h *Handlers) ExternalForms(c *gin.Context) {
	forms, err := h.forms.ListPublished(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	out := make([]FormRef, len(forms))
	for i, f := range forms {
		out[i] = FormRef{ID: f.ID, Name: f.Name, Alias: f.Alias}
	}
	ok(c, http.StatusOK, out)
}

// ExternalResponses godoc
// @ID          externalResponses
// @Summary     Summaries of the responses of a form
// @Description Every response with its answers to the first two fields of the form.
// @Tags        External
// @Produce     json
// @Param       id  path  string  true  "Form ID"  format(uuid)
// @Success     200  {array}   services.Summary
// @Failure     403  {object}  handlers.ErrorResponse  "Origin not allowed"
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Router      /external/forms/{id}/responses [get]
func (h *Handlers) ExternalResponses(c *gin.Context) {
	out, err := h.responses.Summaries(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// ExternalDocuments godoc
// @ID          externalDocuments
// @Summary     Template document payloads of a response
// @Tags        External
// @Produce     json
// @Param       id  path  string  true  "Response ID"  format(uuid)
// @Success     200  {object}  map[string]services.DocumentPayload
// @Failure     403  {object}  handlers.ErrorResponse  "Origin not allowed"
// @Failure     404  {object}  handlers.ErrorResponse  "Response not found"
// @Router      /external/responses/{id}/documents [get]
func (h *Handlers) ExternalDocuments(c *gin.Context) { h.ResponseDocuments(c) }
