package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/media"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// MessageHandler serves the direct-messaging endpoints.
type MessageHandler struct {
	messages repositories.MessageRepository
	users    repositories.UserRepository
	media    media.Store
	registry *presence.Registry
	hub      presence.Broadcaster
	audit    *telemetry.AuditEmitter

	storeTimeout        time.Duration
	refreshBroadcastAll bool
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	mediaStore media.Store,
	registry *presence.Registry,
	hub presence.Broadcaster,
	audit *telemetry.AuditEmitter,
	storeTimeout time.Duration,
	refreshBroadcastAll bool,
) *MessageHandler {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &MessageHandler{
		messages:            messages,
		users:               users,
		media:               mediaStore,
		registry:            registry,
		hub:                 hub,
		audit:               audit,
		storeTimeout:        storeTimeout,
		refreshBroadcastAll: refreshBroadcastAll,
	}
}

// GetMe returns the caller's directory entry.
func (h *MessageHandler) GetMe(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)

	ctx, cancel := h.storeContext(c)
	defer cancel()

	user, err := h.users.GetUser(ctx, userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// GetSidebar returns every other user annotated with last-message recency
// and the caller's unread count, most recent conversation first.
func (h *MessageHandler) GetSidebar(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)

	ctx, cancel := h.storeContext(c)
	defer cancel()

	rows, err := h.messages.Sidebar(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sidebar"})
		return
	}
	if rows == nil {
		rows = []models.SidebarRow{}
	}

	c.JSON(http.StatusOK, gin.H{"users": rows})
}

// GetMessages returns the caller's conversation with the counterpart,
// oldest first.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	counterpartID, ok := counterpartParam(c)
	if !ok {
		return
	}
	userID := c.GetInt(middleware.UserIDKey)

	ctx, cancel := h.storeContext(c)
	defer cancel()

	msgs, err := h.messages.GetConversation(ctx, userID, counterpartID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage persists a message to the counterpart, then best-effort
// pushes it to the recipient's live connection and nudges both sidebars.
// Persist and push are deliberately not atomic: a lost push is reconciled
// by the client's next fetch.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	receiverID, ok := counterpartParam(c)
	if !ok {
		return
	}
	senderID := c.GetInt(middleware.UserIDKey)
	if senderID == receiverID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot message yourself"})
		return
	}

	var req struct {
		Text  string `json:"text"`
		Image string `json:"image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	exists, err := h.users.UserExists(ctx, receiverID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify recipient"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
		return
	}

	imageURL := ""
	if req.Image != "" {
		imageURL, err = h.media.Upload(ctx, req.Image)
		if err != nil {
			if errors.Is(err, media.ErrInvalidImage) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image payload"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store image"})
			return
		}
	}

	body, err := models.NewBody(req.Text, imageURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message needs text or an image"})
		return
	}

	msg, err := h.messages.CreateMessage(ctx, senderID, receiverID, body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.pushNewMessage(msg)
	h.pushRefresh(senderID, receiverID)
	h.emitAudit(c, senderID, fmt.Sprintf("message %d sent to user %d", msg.ID, receiverID))

	c.JSON(http.StatusCreated, msg)
}

// MarkAsRead flips every unread message from the counterpart to the caller.
// Idempotent: repeated calls acknowledge with the same end state.
func (h *MessageHandler) MarkAsRead(c *gin.Context) {
	counterpartID, ok := counterpartParam(c)
	if !ok {
		return
	}
	userID := c.GetInt(middleware.UserIDKey)

	ctx, cancel := h.storeContext(c)
	defer cancel()

	flipped, err := h.messages.MarkAllRead(ctx, counterpartID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark messages read"})
		return
	}

	if flipped > 0 {
		h.emitAudit(c, userID, fmt.Sprintf("%d messages from user %d marked read", flipped, counterpartID))
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// pushNewMessage delivers the persisted message to the recipient when they
// are online. Absent recipient is a silent no-op, not an error.
func (h *MessageHandler) pushNewMessage(msg models.Message) {
	conn, online := h.registry.Lookup(msg.ReceiverID)
	if !online {
		observability.IncPushDelivery("recipient_offline")
		return
	}
	conn.SendEvent(models.NewMessageEvent(msg))
	observability.IncPushDelivery("delivered")
}

// pushRefresh tells the affected sidebars to recompute. Targeted to the two
// participants by default; broadcast-all survives behind a debug flag only.
func (h *MessageHandler) pushRefresh(senderID, receiverID int) {
	if h.refreshBroadcastAll {
		h.hub.Broadcast(models.RefreshUsersEvent())
		return
	}
	for _, id := range []int{senderID, receiverID} {
		if conn, online := h.registry.Lookup(id); online {
			conn.SendEvent(models.RefreshUsersEvent())
		}
	}
}

func (h *MessageHandler) storeContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.storeTimeout)
}

func counterpartParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}
