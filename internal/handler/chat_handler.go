package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"inboxpilot/internal/assistant"
	"inboxpilot/internal/confirm"
	"inboxpilot/internal/mailbox"
	"inboxpilot/internal/model"
	"inboxpilot/pkg/logger"
)

// Assistant 命令流水线和确认执行
type Assistant interface {
	HandleCommand(ctx context.Context, cred *model.Credential, command string) (*model.CommandOutcome, error)
	SuggestReply(ctx context.Context, cred *model.Credential, emailID string) (*model.CommandOutcome, error)
	ConfirmDelete(ctx context.Context, cred *model.Credential, req assistant.DeleteRequest) (*model.DeleteResult, error)
	ConfirmSend(ctx context.Context, cred *model.Credential, req assistant.SendRequest) (*model.CommandOutcome, error)
}

type ChatHandler struct {
	assistant Assistant
	logger    *zap.Logger
}

func NewChatHandler(a Assistant, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{assistant: a, logger: logger}
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
}

// actionRequest 确认类请求共用
type actionRequest struct {
	EmailID      string `json:"email_id"`
	ReplyBody    string `json:"reply_body"`
	ConfirmToken string `json:"confirm_token"`
}

// Command handles POST /api/chat/command
func (h *ChatHandler) Command(c *gin.Context) {
	cred, ok := credential(c)
	if !ok {
		return
	}

	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	outcome, err := h.assistant.HandleCommand(c.Request.Context(), cred, req.Command)
	if err != nil {
		h.writeError(c, err, "An error occurred while contacting Gmail or the AI service.")
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// SuggestReply handles POST /api/chat/suggest-reply
func (h *ChatHandler) SuggestReply(c *gin.Context) {
	cred, ok := credential(c)
	if !ok {
		return
	}
	req, ok := bindAction(c)
	if !ok {
		return
	}

	outcome, err := h.assistant.SuggestReply(c.Request.Context(), cred, req.EmailID)
	if err != nil {
		h.writeError(c, err, "Failed to generate AI reply.")
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// DeleteEmail handles POST /api/chat/delete-email
func (h *ChatHandler) DeleteEmail(c *gin.Context) {
	cred, ok := credential(c)
	if !ok {
		return
	}
	req, ok := bindAction(c)
	if !ok {
		return
	}

	result, err := h.assistant.ConfirmDelete(c.Request.Context(), cred, assistant.DeleteRequest{
		EmailID:      req.EmailID,
		ConfirmToken: req.ConfirmToken,
	})
	if err != nil {
		h.writeError(c, err, "An unexpected error occurred during deletion.")
		return
	}
	c.JSON(http.StatusOK, result)
}

// SendReply handles POST /api/chat/send-reply
func (h *ChatHandler) SendReply(c *gin.Context) {
	cred, ok := credential(c)
	if !ok {
		return
	}
	req, ok := bindAction(c)
	if !ok {
		return
	}

	outcome, err := h.assistant.ConfirmSend(c.Request.Context(), cred, assistant.SendRequest{
		EmailID:      req.EmailID,
		ReplyBody:    req.ReplyBody,
		ConfirmToken: req.ConfirmToken,
	})
	if err != nil {
		h.writeError(c, err, "Failed to send reply via Gmail API.")
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// Profile handles GET /api/chat/user/profile
func (h *ChatHandler) Profile(c *gin.Context) {
	cred, ok := credential(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": cred.DisplayName})
}

func bindAction(c *gin.Context) (actionRequest, bool) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return req, false
	}
	return req, true
}

// writeError 错误 -> HTTP 状态码，响应体只包含固定文案
func (h *ChatHandler) writeError(c *gin.Context, err error, fallback string) {
	status, msg := http.StatusInternalServerError, fallback
	switch {
	case errors.Is(err, assistant.ErrServiceFailure):
		// 远程失败一律 500，即使内部包着 mailbox 错误
	case errors.Is(err, assistant.ErrMissingEmailID):
		status, msg = http.StatusBadRequest, "Email ID is required."
	case errors.Is(err, assistant.ErrMissingReplyBody):
		status, msg = http.StatusBadRequest, "Reply body is required."
	case errors.Is(err, confirm.ErrTokenRequired), errors.Is(err, confirm.ErrTokenInvalid):
		status, msg = http.StatusBadRequest, "Confirmation token is missing or invalid."
	case errors.Is(err, confirm.ErrTokenReused):
		status, msg = http.StatusConflict, "This action was already confirmed."
	case errors.Is(err, mailbox.ErrNotFound):
		status, msg = http.StatusNotFound, "Email not found or access denied."
	case errors.Is(err, mailbox.ErrInsufficientScope):
		status, msg = http.StatusForbidden, "Authentication scope issue: your Google credentials lack the permission for this action. "+
			"Please log out and log back in, granting all requested permissions."
	}

	if status >= http.StatusInternalServerError {
		logger.WithTrace(c.Request.Context(), h.logger).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": msg})
}
