// Response HTTP handlers.
//
// This file exposes REST endpoints for form responses:
//   - GET    /forms/{id}/responses           (list; view=ids for IDs only, ETag support)
//   - POST   /forms/{id}/responses           (create; ?option=empty for an empty response)
//   - GET    /forms/{id}/responses/table     (tabular view)
//   - POST   /forms/{id}/responses/delete    (delete many)
//   - GET    /responses/{id}                 (get with answers)
//   - PUT    /responses/{id}                 (update answers in place)
//   - DELETE /responses/{id}                 (delete with uploads)
//   - GET    /responses/{id}/documents       (template document payloads)
//
// Submissions are idempotent: when the client supplies an Idempotency-Key
// header and a response was already created for (caller, form, key), that
// response is returned with `Idempotency-Replayed: true`.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/fieldtype"
	"github.com/tbourn/go-forms-backend/internal/http/middleware"
	"github.com/tbourn/go-forms-backend/internal/services"
)

//
// DTOs
//

// SubmitRequest is the JSON payload for creating or updating a response.
// File answers carry the upload as a base64 data URL in value.
type SubmitRequest struct {
	Answers []fieldtype.Answer `json:"answers" binding:"dive"`
}

// ListResponsesResponse wraps a page of responses and pagination information.
type ListResponsesResponse struct {
	Responses  []domain.Response `json:"responses"`
	Pagination Pagination        `json:"pagination"`
}

// ResponseIDsResponse lists the IDs of every response of a form.
type ResponseIDsResponse struct {
	IDs []string `json:"ids"`
}

// DeleteResponsesRequest names the responses to delete.
type DeleteResponsesRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,dive,uuid"`
}

// DeleteResponsesResponse reports how many responses were deleted.
type DeleteResponsesResponse struct {
	Deleted int64 `json:"deleted"`
}

//
// Handlers
//

// ListResponses godoc
// @ID          listResponses
// @Summary     List the responses of a form
// @Description Returns a page of responses with their answers, newest first, or every response ID with view=ids. Supports weak ETag via If-None-Match.
// @Tags        Responses
// @Produce     json
// @Security    BearerAuth
//
// @Param       id             path    string  true   "Form ID"  format(uuid)
// @Param       view           query   string  false  "full or ids"  Enums(full,ids)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListResponsesResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Router      /forms/{id}/responses [get]
func (h *Handlers) ListResponses(c *gin.Context) {
	ctx := c.Request.Context()
	formID := c.Param("id")

	if c.Query("view") == "ids" {
		ids, err := h.responses.IDs(ctx, formID)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, ResponseIDsResponse{IDs: ids})
		return
	}

	if count, maxTS, err := h.responses.Stats(ctx, formID); err == nil {
		if weakETag(c, "responses:"+formID, count, maxTS) {
			return
		}
	}

	page, pageSize := clampPagination(c)
	items, total, err := h.responses.ListPage(ctx, formID, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListResponsesResponse{Responses: items, Pagination: newPagination(page, pageSize, total)})
}

// CreateResponse godoc
// @ID          createResponse
// @Summary     Record a response
// @Description Validates the answers against the form's fields and stores a response. With option=empty the body is ignored and an empty response is created.
// @Description Supports idempotency via the Idempotency-Key header.
// @Tags        Responses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id               path    string                  true   "Form ID"  format(uuid)
// @Param       option           query   string                  false  "empty"  Enums(empty)
// @Param       Idempotency-Key  header  string                  false  "Idempotency key for safe retries"
// @Param       body             body    handlers.SubmitRequest  false  "Answers"
//
// @Success     201  {object}  domain.Response
// @Success     200  {object}  domain.Response  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Router      /forms/{id}/responses [post]
func (h *Handlers) CreateResponse(c *gin.Context) {
	formID := c.Param("id")
	if c.Query("option") == "empty" {
		r, err := h.responses.CreateEmpty(c.Request.Context(), formID)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusCreated, r)
		return
	}
	h.submit(c, formID, false)
}

// submit binds answers and stores them as a new response of formID.
func (h *Handlers) submit(c *gin.Context, formID string, public bool) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)
	r, replayed, err := h.responses.Submit(c.Request.Context(), formID, req.Answers, services.SubmitOptions{
		RequirePublished: public,
		Scope:            middleware.IdempotencyScope(c),
		IdempotencyKey:   key,
	})
	middleware.Annotate(c, "form_id", formID)
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.Annotate(c, "response_id", r.ID)
	if replayed {
		middleware.Annotate(c, "replayed", "true")
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, r)
		return
	}
	ok(c, http.StatusCreated, r)
}

// GetResponse godoc
// @ID          getResponse
// @Summary     Get a response
// @Tags        Responses
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Response ID"  format(uuid)
// @Success     200  {object}  domain.Response
// @Failure     404  {object}  handlers.ErrorResponse  "Response not found"
// @Router      /responses/{id} [get]
func (h *Handlers) GetResponse(c *gin.Context) {
	r, err := h.responses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// UpdateResponse godoc
// @ID          updateResponse
// @Summary     Update the answers of a response
// @Description Rewrites the given answers in place; a blank answer clears the stored value.
// @Tags        Responses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                  true  "Response ID"  format(uuid)
// @Param       body  body  handlers.SubmitRequest  true  "Answers"
// @Success     200  {object}  domain.Response
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Response not found"
// @Router      /responses/{id} [put]
func (h *Handlers) UpdateResponse(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	r, err := h.responses.Update(c.Request.Context(), c.Param("id"), req.Answers)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// DeleteResponse godoc
// @ID          deleteResponse
// @Summary     Delete a response
// @Tags        Responses
// @Security    BearerAuth
// @Param       id  path  string  true  "Response ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Response not found"
// @Router      /responses/{id} [delete]
func (h *Handlers) DeleteResponse(c *gin.Context) {
	if err := h.responses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// DeleteResponses godoc
// @ID          deleteResponses
// @Summary     Delete several responses of a form
// @Description IDs that do not belong to the form are ignored.
// @Tags        Responses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                           true  "Form ID"  format(uuid)
// @Param       body  body  handlers.DeleteResponsesRequest  true  "Response IDs"
// @Success     200  {object}  handlers.DeleteResponsesResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Router      /forms/{id}/responses/delete [post]
func (h *Handlers) DeleteResponses(c *gin.Context) {
	var req DeleteResponsesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	n, err := h.responses.DeleteMany(c.Request.Context(), c.Param("id"), req.IDs)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, DeleteResponsesResponse{Deleted: n})
}

// ResponseTable godoc
// @ID          responseTable
// @Summary     Responses as a table
// @Description One column per field and one row per response, with cells rendered by field type.
// @Tags        Responses
// @Produce     json
// @Security    BearerAuth
// @Param       id         path   string  true   "Form ID"  format(uuid)
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  services.Table
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Router      /forms/{id}/responses/table [get]
func (h *Handlers) ResponseTable(c *gin.Context) {
	page, pageSize := clampPagination(c)
	t, err := h.responses.Table(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// ResponseDocuments godoc
// @ID          responseDocuments
// @Summary     Template document payloads of a response
// @Description Maps the answers onto the placeholders of every associated template file, keyed by template file ID.
// @Tags        Responses
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Response ID"  format(uuid)
// @Success     200  {object}  map[string]services.DocumentPayload
// @Failure     404  {object}  handlers.ErrorResponse  "Response not found"
// @Router      /responses/{id}/documents [get]
func (h *Handlers) ResponseDocuments(c *gin.Context) {
	docs, err := h.documents.MapResponse(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, docs)
}
