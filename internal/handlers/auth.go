package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"contest-platform/internal/apperr"
	"contest-platform/internal/middleware"
	"contest-platform/internal/models"
	"contest-platform/internal/services"
)

// AuthHandler serves registration, login and the caller's own profile.
type AuthHandler struct {
	Users  *services.UserService
	logger zerolog.Logger
}

func NewAuthHandler(users *services.UserService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{Users: users, logger: logger}
}

// Register creates an account. Registering an existing email again is
// answered with a success-shaped body, not an error.
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	u, err := h.Users.Register(c.Request.Context(), req)
	if errors.Is(err, apperr.ErrConflict) {
		c.JSON(http.StatusOK, gin.H{"message": "user already exists", "insertedId": nil})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "User created successfully.",
		"insertedId": u.Email,
		"email":      u.Email,
		"role":       u.Role,
	})
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	token, err := h.Users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Login successful.", "token": token})
}

func (h *AuthHandler) GetMyProfile(c *gin.Context) {
	u, err := h.Users.Profile(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *AuthHandler) UpdateMyProfile(c *gin.Context) {
	var req services.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	u, err := h.Users.UpdateProfile(c.Request.Context(), middleware.Principal(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *AuthHandler) ListUsers(c *gin.Context) {
	users, err := h.Users.ListUsers(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

type RoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

func (h *AuthHandler) SetRole(c *gin.Context) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	err := h.Users.SetRole(c.Request.Context(), middleware.Principal(c), c.Param("email"), req.Role)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Role updated.", "role": req.Role})
}
