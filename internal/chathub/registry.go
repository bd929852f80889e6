package chathub

import (
	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/models"
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Presence is the slice of the identity directory the registry writes to.
type Presence interface {
	SetOnline(ctx context.Context, id string, online bool) error
}

// Publisher encodes outbound events and hands them to the broker.
type Publisher struct {
	broker Broker
}

func NewPublisher(b Broker) *Publisher {
	return &Publisher{broker: b}
}

func (p *Publisher) Publish(ctx context.Context, channel string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	return p.broker.Publish(ctx, channel, data)
}

// Registry maps channels to the sessions subscribed on this node and announces presence
// on connect and disconnect.
type Registry struct {
	pub      *Publisher
	presence Presence
	log      *zap.Logger

	mu       sync.RWMutex
	channels map[string]map[*Session]struct{}
	sessions map[*Session][]string
}

func NewRegistry(pub *Publisher, presence Presence, log *zap.Logger) *Registry {
	return &Registry{
		pub:      pub,
		presence: presence,
		log:      log.Named("registry"),
		channels: make(map[string]map[*Session]struct{}),
		sessions: make(map[*Session][]string),
	}
}

// connectChannels is the identity channel followed by one channel per snapshot room.
func connectChannels(id Identity) (own string, rooms []string) {
	seen := make(map[string]bool, len(id.Rooms))
	for _, r := range id.Rooms {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		rooms = append(rooms, models.RoomChannel(r))
	}
	return models.UserChannel(id.UserID), rooms
}

// Connect subscribes s to its own channel and to its snapshot rooms, then announces it online
// in each of those rooms exactly once.
func (r *Registry) Connect(ctx context.Context, s *Session) {
	own, rooms := connectChannels(s.Identity)
	r.subscribe(s, append([]string{own}, rooms...))

	if err := r.presence.SetOnline(ctx, s.UserID(), true); err != nil {
		r.log.Warn("set online failed", zap.String("user", s.UserID()), zap.Error(err))
	}

	online := models.OutUserOnline{
		Type:     models.OutUserOnlineType,
		UserID:   s.UserID(),
		Username: s.Identity.Username,
		Avatar:   s.Identity.Avatar,
	}
	for _, ch := range rooms {
		if err := r.pub.Publish(ctx, ch, online); err != nil {
			r.log.Warn("announce online failed", zap.String("channel", ch), zap.Error(err))
		}
	}
	r.log.Info("session connected",
		zap.String("user", s.UserID()), zap.String("session", s.ID), zap.Int("rooms", len(rooms)))
}

// Disconnect announces s offline in the rooms it subscribed to at connect and drops its
// subscriptions. Calling it again for the same session does nothing.
func (r *Registry) Disconnect(ctx context.Context, s *Session) {
	channels, ok := r.unsubscribe(s)
	if !ok {
		return
	}

	offline := models.OutUserOffline{Type: models.OutUserOfflineType, UserID: s.UserID()}
	for _, ch := range channels {
		if ch == models.UserChannel(s.UserID()) {
			continue
		}
		if err := r.pub.Publish(ctx, ch, offline); err != nil {
			r.log.Warn("announce offline failed", zap.String("channel", ch), zap.Error(err))
		}
	}

	if err := r.presence.SetOnline(ctx, s.UserID(), false); err != nil {
		r.log.Warn("set offline failed", zap.String("user", s.UserID()), zap.Error(err))
	}
	r.log.Info("session disconnected", zap.String("user", s.UserID()), zap.String("session", s.ID))
}

func (r *Registry) subscribe(s *Session, channels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range channels {
		set, ok := r.channels[ch]
		if !ok {
			set = make(map[*Session]struct{})
			r.channels[ch] = set
		}
		set[s] = struct{}{}
	}
	r.sessions[s] = channels
}

func (r *Registry) unsubscribe(s *Session) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	channels, ok := r.sessions[s]
	if !ok {
		return nil, false
	}
	delete(r.sessions, s)
	for _, ch := range channels {
		if set, ok := r.channels[ch]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(r.channels, ch)
			}
		}
	}
	return channels, true
}

// Deliver enqueues payload on every session subscribed to channel. A session whose mailbox
// is full is closed as a slow consumer instead of blocking the caller.
func (r *Registry) Deliver(channel string, payload []byte) {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.channels[channel]))
	for s := range r.channels[channel] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	for _, s := range targets {
		if s.Enqueue(payload) || s.Closed() {
			continue
		}
		r.log.Warn("mailbox full, closing session",
			zap.String("user", s.UserID()), zap.String("session", s.ID), zap.String("channel", channel))
		s.Close(config.CloseSlowConsumer, "slow consumer")
	}
}

// Channels returns the channels s is subscribed to.
func (r *Registry) Channels(s *Session) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.sessions[s]...)
}

// SessionCount is the number of sessions currently registered on this node.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every registered session with code.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Close(code, reason)
	}
}
