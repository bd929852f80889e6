package handler

import (
	"chatrelay/backend/internal/auth"
	"chatrelay/backend/internal/chathub"
	"chatrelay/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler holds the hub and the store behind the HTTP routes.
type Handler struct {
	Hub    *chathub.ManagerService
	Store  storage.Storage
	Tokens *auth.TokenManager
	Log    *zap.Logger
}

func NewHandler(hub *chathub.ManagerService, store storage.Storage, tokens *auth.TokenManager, log *zap.Logger) *Handler {
	return &Handler{Hub: hub, Store: store, Tokens: tokens, Log: log.Named("http")}
}

// RegisterRoutes mounts the websocket endpoint and the collaborator API on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/chat", h.ServeWebSocket)
	r.POST("/signin", h.SignIn)
	r.GET("/user", h.GetUser)
	r.GET("/messages", h.GetMessages)
	r.POST("/friends", h.AddFriend)
	r.DELETE("/friends", h.RemoveFriend)
	r.POST("/rooms", h.JoinRoom)
	r.DELETE("/rooms", h.LeaveRoom)
	r.GET("/healthz", h.Health)
}
