package handlers

import (
	"net/http"
	"strconv"

	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/models"

	"github.com/gin-gonic/gin"
)

const defaultMessagePageSize = 50

// ListConversations returns the conversations the authenticated user is a
// member of. Writes flow through the websocket hub, not this API.
func (h *Handlers) ListConversations(c *gin.Context) {
	userID := c.GetString("user_id")

	var conversations []models.Conversation
	err := h.db.
		Joins("JOIN conversation_members ON conversation_members.conversation_id = conversations.id").
		Where("conversation_members.user_id = ?", userID).
		Find(&conversations).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// GetMessages pages a conversation's history, newest first. Membership is
// checked so users cannot read rooms they do not belong to.
func (h *Handlers) GetMessages(c *gin.Context) {
	userID := c.GetString("user_id")
	conversationID := c.Param("conversation_id")

	var membership models.ConversationMember
	if err := h.db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).First(&membership).Error; err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this conversation"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultMessagePageSize)))
	if err != nil || limit <= 0 || limit > 200 {
		limit = defaultMessagePageSize
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	var messages []models.Message
	err = h.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
