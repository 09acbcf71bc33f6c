package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"ragchat/internal/app"
	"ragchat/internal/transport/http/middleware"
	"ragchat/internal/transport/http/response"
)

type AuthHandler struct {
	authService *app.AuthService
}

func NewAuthHandler(authService *app.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token    string `json:"token"`
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, 400, response.CodeBadRequest, "invalid request body")
		return
	}

	result, err := h.authService.Register(app.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, 400, response.CodeBadRequest, "invalid input")
		case errors.Is(err, app.ErrUsernameExists):
			response.Error(c, 409, response.CodeUsernameExists, "username already exists")
		case errors.Is(err, app.ErrEmailExists):
			response.Error(c, 409, response.CodeEmailExists, "email already exists")
		default:
			response.Error(c, 500, response.CodeInternalServer, "register failed")
		}
		return
	}

	response.OK(c, AuthResponse{
		Token:    result.Token,
		UserID:   result.User.ID,
		Username: result.User.Username,
		Email:    result.User.Email,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, 400, response.CodeBadRequest, "invalid request body")
		return
	}

	result, err := h.authService.Login(app.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, 400, response.CodeBadRequest, "invalid input")
		case errors.Is(err, app.ErrInvalidCredential):
			response.Error(c, 401, response.CodeInvalidCredentials, "invalid username or password")
		default:
			response.Error(c, 500, response.CodeInternalServer, "login failed")
		}
		return
	}

	response.OK(c, AuthResponse{
		Token:    result.Token,
		UserID:   result.User.ID,
		Username: result.User.Username,
		Email:    result.User.Email,
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, 401, response.CodeUnauthorized, "unauthorized")
		return
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		response.Error(c, 500, response.CodeInternalServer, "load user failed")
		return
	}
	if user == nil {
		response.Error(c, 401, response.CodeUnauthorized, "unauthorized")
		return
	}

	response.OK(c, gin.H{
		"user_id":  user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}

func getUsernameFromContext(c *gin.Context) (string, bool) {
	usernameAny, exists := c.Get(middleware.ContextUsernameKey)
	if !exists {
		return "", false
	}
	username, ok := usernameAny.(string)
	return username, ok
}
