package handler

import (
	"net/http"

	"modelmine/internal/model"
	"modelmine/internal/service"

	"github.com/gin-gonic/gin"
)

// UserHandler handles user provisioning and balances
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler creates user handler
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// Create provisions a user
func (h *UserHandler) Create(c *gin.Context) {
	var req model.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.userService.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "create user", err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Balance returns a user's token balance
func (h *UserHandler) Balance(c *gin.Context) {
	user, err := h.userService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "get balance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": user.ID, "tokenBalance": user.TokenBalance})
}

// InitializeBalances grants the bootstrap amount to every zero-balance user
func (h *UserHandler) InitializeBalances(c *gin.Context) {
	n, err := h.userService.InitializeBalances(c.Request.Context())
	if err != nil {
		respondError(c, "initialize balances", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
