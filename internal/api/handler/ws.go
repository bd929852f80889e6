package handler

import (
	"chatrelay/backend/internal/chathub"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Any origin is accepted; clients authenticate with the token in the query.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket admits the request and only then upgrades it to a websocket session.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	identity, err := h.Hub.Admission.Admit(c.Request.Context(), c.Request)
	if err != nil {
		if chathub.IsAdmissionError(err) {
			h.Log.Info("admission rejected", zap.String("remote", c.ClientIP()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.Log.Error("admission failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Log.Warn("upgrade failed", zap.String("user", identity.UserID), zap.Error(err))
		return
	}
	h.Hub.Serve(conn, *identity)
}
