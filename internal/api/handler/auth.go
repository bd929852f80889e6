package handler

import (
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type signInRequest struct {
	ID       string `json:"id"`
	Username string `json:"username" binding:"required"`
	Avatar   string `json:"avatar"`
}

// SignIn creates the user when the id is new (an existing record is left untouched) and
// returns a credential for /chat.
func (h *Handler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Store.CreateUser(c.Request.Context(), &models.User{
		ID:       req.ID,
		Username: req.Username,
		Avatar:   req.Avatar,
	})
	if err != nil && !errors.Is(err, storage.ErrUserExists) {
		h.Log.Error("sign in failed", zap.String("id", req.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	token, err := h.Tokens.Issue(user.ID)
	if err != nil {
		h.Log.Error("issue token failed", zap.String("id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}
