package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mariocelzo/Target-sub000/internal/api/middleware"
	"github.com/mariocelzo/Target-sub000/internal/config"
	"github.com/mariocelzo/Target-sub000/internal/feed"
	"github.com/mariocelzo/Target-sub000/internal/realtime"
	"github.com/mariocelzo/Target-sub000/internal/services"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// WsHandler owns the websocket surface: the seller dashboard projection
// stream and per-thread chat snapshot streams. Each socket owns exactly one
// subscription; closing the socket (cleanly or not) tears the subscription
// down.
type WsHandler struct {
	cfg            *config.Config
	listingService services.IListingService
	offerService   services.IOfferService
	chatService    services.IChatService
	feed           feed.Feed
	upgrader       websocket.Upgrader
}

// NewWsHandler creates a new WsHandler.
func NewWsHandler(cfg *config.Config, listingService services.IListingService, offerService services.IOfferService, chatService services.IChatService, f feed.Feed) *WsHandler {
	return &WsHandler{
		cfg:            cfg,
		listingService: listingService,
		offerService:   offerService,
		chatService:    chatService,
		feed:           f,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin enforcement is the deployment proxy's job
				return true
			},
		},
	}
}

// DashboardWS handles GET /v1/dashboard/ws. It streams DashboardSnapshot
// JSON frames to the seller for the lifetime of the socket.
func (h *WsHandler) DashboardWS(c *gin.Context) {
	sellerID, ok := middleware.SessionUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WARN: websocket upgrade failed: %v", err)
		return
	}
	sessionID := uuid.NewString()
	defer conn.Close()

	projection := realtime.NewSellerProjection(sellerID, h.listingService, h.offerService, h.feed)
	if err := projection.Start(c.Request.Context()); err != nil {
		log.Printf("WARN: dashboard session %s failed to start projection: %v", sessionID, err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "projection unavailable"),
			time.Now().Add(time.Second))
		return
	}
	defer projection.Close()

	go h.discardReads(conn, projection.Close)

	for snap := range projection.Updates() {
		conn.SetWriteDeadline(time.Now().Add(h.cfg.WsWriteTimeout))
		if err := conn.WriteJSON(snap); err != nil {
			log.Printf("dashboard session %s write failed, closing: %v", sessionID, err)
			return
		}
	}
}

// ThreadWS handles GET /v1/thread/:id/ws. It streams full ThreadSnapshot
// JSON frames each time the thread changes.
func (h *WsHandler) ThreadWS(c *gin.Context) {
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

	// Membership check before upgrading
	thread, err := h.chatService.FindThreadByID(c.Request.Context(), threadID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !thread.HasParticipant(selfID) {
		respondError(c, services.ErrThreadParticipantInvalid)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WARN: websocket upgrade failed: %v", err)
		return
	}
	sessionID := uuid.NewString()
	defer conn.Close()

	stream := realtime.NewThreadStream(threadID, h.chatService, h.feed)
	if err := stream.Start(c.Request.Context()); err != nil {
		log.Printf("WARN: thread session %s failed to start stream: %v", sessionID, err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "stream unavailable"),
			time.Now().Add(time.Second))
		return
	}
	defer stream.Close()

	go h.discardReads(conn, stream.Close)

	for snap := range stream.Snapshots() {
		conn.SetWriteDeadline(time.Now().Add(h.cfg.WsWriteTimeout))
		if err := conn.WriteJSON(snap); err != nil {
			log.Printf("thread session %s write failed, closing: %v", sessionID, err)
			return
		}
	}
}

// discardReads drains the socket so close frames are processed, and tears
// the subscription down as soon as the peer goes away.
func (h *WsHandler) discardReads(conn *websocket.Conn, teardown func()) {
	defer teardown()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
