package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/telemetry"
)

// TokenValidator turns a bearer token into an authenticated user id.
type TokenValidator interface {
	ValidateToken(token string) (int, error)
}

// Handler upgrades push-channel connections and couples their lifecycle to
// the presence registry: register on open, unregister on close. Presence
// has no lifecycle of its own.
type Handler struct {
	hub      *Hub
	registry *presence.Registry
	auth     TokenValidator
	audit    *telemetry.AuditEmitter
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, registry *presence.Registry, auth TokenValidator, audit *telemetry.AuditEmitter) *Handler {
	return &Handler{hub: hub, registry: registry, auth: auth, audit: audit}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the handshake, upgrades the connection and runs the
// client pumps until the peer goes away.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := h.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)

	h.hub.Add(client)
	h.registry.Register(userID, client)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.emitAudit(ctx, info, "push channel connected")

	go client.WritePump()
	go func() {
		closeReason := client.ReadPump()
		h.registry.Unregister(userID, client)
		h.hub.Remove(client)
		client.Close()

		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		if closeReason != "" {
			observability.IncWSEvent("ws_error")
		}
		h.emitAudit(context.Background(), info, fmt.Sprintf("push channel disconnected after %dms", time.Since(info.ConnectedAt).Milliseconds()))
	}()
}

func (h *Handler) validateToken(header string) (int, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return h.auth.ValidateToken(parts[1])
	}
	return 0, fmt.Errorf("invalid token")
}

func (h *Handler) emitAudit(ctx context.Context, info ConnInfo, text string) {
	if h.audit == nil {
		return
	}
	userID := int64(info.UserID)
	h.audit.Emit(ctx, "INFO", text, info.RequestID, &userID)
}
