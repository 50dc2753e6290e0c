package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casagrown/backend/internal/dto"
	"github.com/casagrown/backend/internal/http/handlers/common"
	"github.com/casagrown/backend/internal/service"
)

// ConversationHandler is the HTTP layer for conversations and messages.
type ConversationHandler struct {
	conversations *service.ConversationService
}

// NewConversationHandler creates the handler.
func NewConversationHandler(conversations *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// ListMyConversations handles GET /conversations.
func (h *ConversationHandler) ListMyConversations(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	conversations, err := h.conversations.ListMyConversations(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"conversations": conversations})
}

// ListMessages handles GET /conversations/:conversationId/messages.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	conversationID, err := common.ParseUUIDParam(c, "conversationId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)

	messages, err := h.conversations.ListMessages(c.Request.Context(), conversationID, userID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{
		"messages":   messages,
		"pagination": dto.Pagination{Limit: limit, Offset: offset},
	})
}

// SendMessage handles POST /conversations/:conversationId/messages.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	conversationID, err := common.ParseUUIDParam(c, "conversationId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.SendMessageRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	message, err := h.conversations.SendMessage(c.Request.Context(), conversationID, userID, req.Content)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusCreated, message)
}
