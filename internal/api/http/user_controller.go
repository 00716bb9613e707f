package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/telemed/internal/api/http/converter"
	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/service"
)

type UserController struct {
	users service.UserInteractor
}

func NewUserController(users service.UserInteractor) *UserController {
	return &UserController{users: users}
}

func (c *UserController) CreateUser(ctx *gin.Context) {
	type request struct {
		Name      string `json:"name" binding:"required"`
		Role      string `json:"role" binding:"required"`
		Specialty string `json:"specialty"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	user, err := c.users.CreateUser(ctx.Request.Context(), req.Name, domain.Role(req.Role), req.Specialty)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"user": converter.UserToApi(user)})
}

func (c *UserController) GetUser(ctx *gin.Context) {
	user, err := c.users.GetUser(ctx.Request.Context(), ctx.Param("userID"))
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": converter.UserToApi(user)})
}

// SetStatus lets a doctor go online, pause or log off. Busy is managed by
// the consultation flow.
func (c *UserController) SetStatus(ctx *gin.Context) {
	type request struct {
		Status string `json:"status" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id := ctx.Param("userID")
	if err := c.users.SetStatus(ctx.Request.Context(), id, domain.UserStatus(req.Status)); err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}

func (c *UserController) AvailableDoctors(ctx *gin.Context) {
	doctors, err := c.users.AvailableDoctors(ctx.Request.Context())
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"doctors": converter.UsersToApi(doctors)})
}
