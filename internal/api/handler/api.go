package handler

import (
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (h *Handler) GetUser(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	user, err := h.Store.GetUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type messagesQuery struct {
	Context string `form:"context" binding:"required"`
	From    string `form:"from" binding:"required"`
	To      string `form:"to" binding:"required"`
	Skip    int    `form:"skip" binding:"min=0"`
	Limit   int    `form:"limit" binding:"min=0"`
}

// GetMessages returns one page of history for a single direction, oldest first.
func (h *Handler) GetMessages(c *gin.Context) {
	var q messagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msgCtx, err := models.ParseContext(q.Context)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	messages, err := h.Store.SearchMessages(c.Request.Context(), storage.MessageQuery{
		Context: msgCtx,
		From:    q.From,
		To:      q.To,
		Offset:  q.Skip,
		Limit:   q.Limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

type friendRequest struct {
	UserID   string `json:"userId" binding:"required"`
	FriendID string `json:"friendId" binding:"required"`
}

// AddFriend writes the edge on both records.
func (h *Handler) AddFriend(c *gin.Context) {
	h.setFriendship(c, true)
}

// RemoveFriend removes the edge from both records.
func (h *Handler) RemoveFriend(c *gin.Context) {
	h.setFriendship(c, false)
}

func (h *Handler) setFriendship(c *gin.Context, linked bool) {
	var req friendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == req.FriendID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot befriend yourself"})
		return
	}

	if err := h.Store.SetFriendship(c.Request.Context(), req.UserID, req.FriendID, linked); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type roomRequest struct {
	UserID string `json:"userId" binding:"required"`
	RoomID string `json:"roomId" binding:"required"`
}

// JoinRoom takes effect for the user's next session.
func (h *Handler) JoinRoom(c *gin.Context) {
	h.mutateRoom(c, h.Store.AddRoom)
}

func (h *Handler) LeaveRoom(c *gin.Context) {
	h.mutateRoom(c, h.Store.RemoveRoom)
}

func (h *Handler) mutateRoom(c *gin.Context, apply func(ctx context.Context, userID, roomID string) error) {
	var req roomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := apply(c.Request.Context(), req.UserID, req.RoomID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.Hub.Registry.SessionCount()})
}

// fail maps storage errors onto status codes.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrUserNotFound), errors.Is(err, storage.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
