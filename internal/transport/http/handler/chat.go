package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"ragchat/internal/app"
	"ragchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type CreateSessionRequest struct {
	Title string `json:"title"`
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, 401, response.CodeUnauthorized, "unauthorized")
		return
	}

	// the body is optional, a missing title defaults downstream
	var req CreateSessionRequest
	_ = c.ShouldBindJSON(&req)

	session, err := h.chatService.CreateSession(app.CreateSessionInput{
		UserID: userID,
		Title:  req.Title,
	})
	if err != nil {
		response.Error(c, 500, response.CodeInternalServer, "create session failed")
		return
	}

	response.OK(c, gin.H{
		"token":      session.Token,
		"title":      session.Title,
		"created_at": session.CreatedAt,
	})
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, 401, response.CodeUnauthorized, "unauthorized")
		return
	}

	sessions, err := h.chatService.ListSessions(userID)
	if err != nil {
		response.Error(c, 500, response.CodeInternalServer, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, 401, response.CodeUnauthorized, "unauthorized")
		return
	}

	token := c.Param("token")
	err := h.chatService.DeleteSession(userID, token)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, 400, response.CodeBadRequest, "invalid session token")
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, 404, response.CodeSessionNotFound, "session not found")
		default:
			response.Error(c, 500, response.CodeInternalServer, "delete session failed")
		}
		return
	}
	response.OK(c, nil)
}

type SendTurnRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *ChatHandler) SendTurn(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, 401, response.CodeUnauthorized, "unauthorized")
		return
	}

	var req SendTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, 400, response.CodeBadRequest, "invalid request body")
		return
	}

	result, err := h.chatService.SendTurn(c.Request.Context(), app.SendTurnInput{
		UserID:       userID,
		SessionToken: c.Param("token"),
		Content:      req.Content,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty):
			response.Error(c, 400, response.CodeBadRequest, "invalid input")
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, 404, response.CodeSessionNotFound, "session not found")
		default:
			response.Error(c, 500, response.CodeInternalServer, "send message failed")
		}
		return
	}

	response.OK(c, result)
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, 401, response.CodeUnauthorized, "unauthorized")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, 400, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	turns, err := h.chatService.GetHistory(c.Request.Context(), userID, c.Param("token"), limit)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, 400, response.CodeBadRequest, "invalid session token")
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, 404, response.CodeSessionNotFound, "session not found")
		default:
			response.Error(c, 500, response.CodeInternalServer, "load history failed")
		}
		return
	}

	response.OK(c, turns)
}
