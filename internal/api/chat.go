package api

import (
	"net/http"
	"time"

	"fightzone/backend/internal/service"
	"fightzone/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ChatHandler serves the REST side of chat: history on page load and the
// always-on poll that backs up the websocket stream
type ChatHandler struct {
	service *service.MessageService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(service *service.MessageService, logger *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger,
	}
}

type postMessageRequest struct {
	ID      string `json:"id"`
	Content string `json:"content" binding:"required"`
	Room    string `json:"room"`
}

// GetMessages returns chat history for a room. Without "after" it returns
// the most recent view-full of messages; with "after" (RFC3339) it returns
// only messages created strictly later, which is what the poll loop sends.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	room := c.Query("room")

	if afterParam := c.Query("after"); afterParam != "" {
		after, err := time.Parse(time.RFC3339Nano, afterParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "after must be an RFC3339 timestamp"})
			return
		}

		messages, err := h.service.Since(room, after)
		if err != nil {
			h.logger.Error("Error fetching new messages", "room", room, "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": messages})
		return
	}

	messages, err := h.service.Recent(room)
	if err != nil {
		h.logger.Error("Error fetching chat history", "room", room, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// PostMessage stores a chat message for the authenticated user and fans
// it out to the room
func (h *ChatHandler) PostMessage(c *gin.Context) {
	userID, exists := c.Get("userId")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	username := c.GetString("username")

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	msg, err := h.service.Post(req.ID, userID.(uint), username, req.Room, req.Content)
	if err != nil {
		switch err {
		case service.ErrEmptyMessage:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message is empty"})
		default:
			h.logger.Error("Error storing chat message", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}
