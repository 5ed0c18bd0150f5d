package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forms-backend/internal/storage"
)

// ServeFile godoc
// @ID          serveFile
// @Summary     Download an uploaded file
// @Description Streams a stored upload (file answer or template document) by its relative path.
// @Tags        Files
// @Produce     octet-stream
// @Security    BearerAuth
// @Param       fileName  query  string  true  "Relative storage path"  example(inscription-ete/photo-1718000000000.png)
// @Success     200  {file}    file
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "File not found"
// @Router      /files [get]
func (h *Handlers) ServeFile(c *gin.Context) {
	name := c.Query("fileName")
	if name == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "fileName required")
		return
	}
	f, mime, err := h.files.Open(name)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrOutsideRoot), errors.Is(err, storage.ErrEmptyPath):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid fileName")
		case errors.Is(err, fs.ErrNotExist):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "file not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	c.DataFromReader(http.StatusOK, st.Size(), mime, f, map[string]string{
		"Content-Disposition":    `inline; filename="` + path.Base(name) + `"`,
		"X-Content-Type-Options": "nosniff",
	})
}
