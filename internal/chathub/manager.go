package chathub

import (
	"chatrelay/backend/internal/storage"
	"context"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options tune per-session behaviour.
type Options struct {
	EventRate  float64
	EventBurst int
}

// ManagerService wires admission, the subscription registry and the router around one broker.
type ManagerService struct {
	Admission *Admission
	Registry  *Registry
	Router    *Router

	broker Broker
	opts   Options
	log    *zap.Logger
}

// NewManagerService builds the engine. Nothing is delivered until Start is called.
func NewManagerService(s storage.Storage, b Broker, v Verifier, log *zap.Logger, opts Options) *ManagerService {
	pub := NewPublisher(b)
	return &ManagerService{
		Admission: NewAdmission(v, s),
		Registry:  NewRegistry(pub, s, log),
		Router:    NewRouter(s, pub, log),
		broker:    b,
		opts:      opts,
		log:       log.Named("hub"),
	}
}

// Start subscribes to the broker; delivery runs until ctx is cancelled or Close is called.
func (m *ManagerService) Start(ctx context.Context) error {
	if err := m.broker.Listen(ctx, m.Registry.Deliver); err != nil {
		return err
	}
	m.log.Info("hub started")
	return nil
}

// NewSession creates a session for an admitted identity with the configured limits.
func (m *ManagerService) NewSession(id Identity) *Session {
	return NewSession(id, m.opts.EventRate, m.opts.EventBurst)
}

// Serve registers conn as a new session and starts its pumps. It returns immediately.
func (m *ManagerService) Serve(conn *websocket.Conn, id Identity) *WebSocketClient {
	s := m.NewSession(id)
	m.Registry.Connect(context.Background(), s)

	client := &WebSocketClient{
		Session: s,
		Conn:    conn,
		Hub:     m,
	}
	client.Run()
	return client
}

// Close closes every session and the broker.
func (m *ManagerService) Close() error {
	m.Registry.CloseAll(websocket.CloseGoingAway, "server shutting down")
	m.log.Info("hub stopped")
	return m.broker.Close()
}
