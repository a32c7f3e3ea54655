package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mariocelzo/Target-sub000/internal/api/middleware"
	"github.com/mariocelzo/Target-sub000/internal/services"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// RestChatHandler handles REST requests for chat threads and messages.
type RestChatHandler struct {
	chatService services.IChatService
}

// NewRestChatHandler creates a new RestChatHandler.
func NewRestChatHandler(chatService services.IChatService) *RestChatHandler {
	return &RestChatHandler{chatService: chatService}
}

type openThreadRequest struct {
	PeerID utils.SixID `json:"peer_id" binding:"required"`
}

// OpenThread handles POST /v1/thread
func (h *RestChatHandler) OpenThread(c *gin.Context) {
	selfID, ok := middleware.SessionUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req openThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	thread, err := h.chatService.OpenThread(c.Request.Context(), selfID, req.PeerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": thread})
}

// ListThreads handles GET /v1/thread
func (h *RestChatHandler) ListThreads(c *gin.Context) {
	selfID, ok := middleware.SessionUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	threads, err := h.chatService.FindThreadsByParticipant(c.Request.Context(), selfID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": threads})
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// SendMessage handles POST /v1/thread/:id/message
func (h *RestChatHandler) SendMessage(c *gin.Context) {
	selfID, ok := middleware.SessionUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	threadID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid thread ID"})
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.chatService.SendMessage(c.Request.Context(), threadID, selfID, req.Text); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
