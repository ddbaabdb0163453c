package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func (h *MessageHandler) emitAudit(c *gin.Context, userID int, text string) {
	if h.audit == nil {
		return
	}
	uid := int64(userID)
	h.audit.Emit(c.Request.Context(), "INFO", text, requestIDFromContext(c), &uid)
}
