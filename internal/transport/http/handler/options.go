package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"ragchat/internal/app"
	"ragchat/internal/model"
	"ragchat/internal/transport/http/response"
)

type OptionsHandler struct {
	optionsService *app.OptionsService
}

func NewOptionsHandler(optionsService *app.OptionsService) *OptionsHandler {
	return &OptionsHandler{optionsService: optionsService}
}

type OptionsResponse struct {
	ChatHistoryEnabled bool   `json:"chat_history_enabled"`
	TimeoutSeconds     int    `json:"timeout_seconds"`
	CustomPrompt       string `json:"custom_prompt"`
	QueryMode          string `json:"query_mode"`
	LLMProvider        string `json:"llm_provider"`
}

// Get returns the caller's resolved options. Unset or invalid stored values
// surface as their defaults, so the response is always complete.
func (h *OptionsHandler) Get(c *gin.Context) {
	username, ok := getUsernameFromContext(c)
	if !ok {
		response.Error(c, 401, response.CodeUnauthorized, "unauthorized")
		return
	}

	opts := h.optionsService.Resolve(username)
	response.OK(c, OptionsResponse{
		ChatHistoryEnabled: opts.ChatHistoryEnabled,
		TimeoutSeconds:     opts.TimeoutSeconds,
		CustomPrompt:       opts.CustomPrompt,
		QueryMode:          string(opts.QueryMode),
		LLMProvider:        string(opts.LLMProvider),
	})
}

type UpdateOptionsRequest struct {
	ChatHistoryEnabled bool   `json:"chat_history_enabled"`
	TimeoutSeconds     int    `json:"timeout_seconds"`
	CustomPrompt       string `json:"custom_prompt"`
	QueryMode          string `json:"query_mode"`
	LLMProvider        string `json:"llm_provider"`
}

// Update stores the options as given. Validation happens on the read path;
// a bad stored value can only ever fall back to its default.
func (h *OptionsHandler) Update(c *gin.Context) {
	username, ok := getUsernameFromContext(c)
	if !ok {
		response.Error(c, 401, response.CodeUnauthorized, "unauthorized")
		return
	}

	var req UpdateOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, 400, response.CodeBadRequest, "invalid request body")
		return
	}

	err := h.optionsService.Save(username, model.UserOptions{
		ChatHistoryEnabled: req.ChatHistoryEnabled,
		TimeoutSeconds:     req.TimeoutSeconds,
		CustomPrompt:       req.CustomPrompt,
		QueryMode:          req.QueryMode,
		LLMProvider:        req.LLMProvider,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, 400, response.CodeBadRequest, "invalid input")
			return
		}
		response.Error(c, 500, response.CodeInternalServer, "save options failed")
		return
	}

	opts := h.optionsService.Resolve(username)
	response.OK(c, OptionsResponse{
		ChatHistoryEnabled: opts.ChatHistoryEnabled,
		TimeoutSeconds:     opts.TimeoutSeconds,
		CustomPrompt:       opts.CustomPrompt,
		QueryMode:          string(opts.QueryMode),
		LLMProvider:        string(opts.LLMProvider),
	})
}
