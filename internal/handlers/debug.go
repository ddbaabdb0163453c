package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, registry *presence.Registry, messages repositories.MessageRepository, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/online", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"online": registry.OnlineIDs()})
	})

	// point-query view of one conversation pair, bypassing the sidebar
	// aggregation; handy for cross-checking unread counters
	router.GET("/debug/conversations/:a/:b", func(c *gin.Context) {
		userA, errA := strconv.Atoi(c.Param("a"))
		userB, errB := strconv.Atoi(c.Param("b"))
		if errA != nil || errB != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}

		unreadAtoB, err := messages.CountUnread(c.Request.Context(), userA, userB)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread"})
			return
		}
		unreadBtoA, err := messages.CountUnread(c.Request.Context(), userB, userA)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread"})
			return
		}

		resp := gin.H{
			"unread_a_to_b": unreadAtoB,
			"unread_b_to_a": unreadBtoA,
		}
		last, err := messages.LastMessageBetween(c.Request.Context(), userA, userB)
		switch {
		case err == nil:
			resp["last_message"] = last
		case errors.Is(err, repositories.ErrMessageNotFound):
			// no messages yet
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load last message"})
			return
		}

		c.JSON(http.StatusOK, resp)
	})

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
