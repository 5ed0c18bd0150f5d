// User and session HTTP handlers.
//
//   - POST /auth/login   (issue a bearer token)
//   - GET  /users/me     (current account)
//   - GET  /users        (list, admin)
//   - POST /users        (create, admin)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forms-backend/internal/http/middleware"
	"github.com/tbourn/go-forms-backend/internal/services"
)

// LoginRequest is the JSON payload for logging in.
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"admin"`
	Password string `json:"password" binding:"required" example:"change-me-please"`
}

// CreateUserRequest is the JSON payload for creating a back-office account.
type CreateUserRequest struct {
	Username  string `json:"username"   binding:"required"                     example:"camille"`
	Email     string `json:"email"      binding:"required,email"               example:"camille@mairie.fr"`
	FirstName string `json:"first_name"                                        example:"Camille"`
	LastName  string `json:"last_name"                                         example:"Martin"`
	Role      string `json:"role"       binding:"omitempty,oneof=admin editor" example:"editor"`
	Password  string `json:"password"   binding:"required"                     example:"s3cret-passw0rd"`
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description Checks the credentials and returns a bearer token.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
// @Success     200  {object}  services.Session
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid credentials"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	sess, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// Me godoc
// @ID          me
// @Summary     Current account
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /users/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List accounts
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.User
// @Failure     403  {object}  handlers.ErrorResponse  "Admins only"
// @Router      /users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	out, err := h.users.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, out)
}

// CreateUser godoc
// @ID          createUser
// @Summary     Create an account
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.CreateUserRequest  true  "Account"
// @Success     201  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Admins only"
// @Failure     409  {object}  handlers.ErrorResponse  "Username or email taken"
// @Router      /users [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, bindingMessages(err))
		return
	}
	u, err := h.users.Create(c.Request.Context(), services.UserInput{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		Password:  req.Password,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}
