package chathub

import (
	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RouterStore is what the router reads and writes while handling events.
type RouterStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	IsUserBanned(ctx context.Context, id string) (bool, error)
	UpdateLastSeen(ctx context.Context, id string, at int64) error

	SaveMessage(ctx context.Context, msg *models.Message) (string, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	MarkRead(ctx context.Context, id string) error
}

// Router interprets inbound events of one session at a time: policy gate, validation,
// persistence, then publish.
type Router struct {
	store RouterStore
	pub   *Publisher
	log   *zap.Logger

	now   func() time.Time
	newID func() (string, error)
}

func NewRouter(store RouterStore, pub *Publisher, log *zap.Logger) *Router {
	return &Router{
		store: store,
		pub:   pub,
		log:   log.Named("router"),
		now:   time.Now,
		newID: newMessageID,
	}
}

// newMessageID returns a UUIDv7, which sorts by creation time.
func newMessageID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Dispatch handles one frame and applies the error policy. It returns false when the session
// has been closed and no further frames should be read.
func (r *Router) Dispatch(ctx context.Context, s *Session, raw []byte) bool {
	err := r.Handle(ctx, s, raw)
	if err == nil {
		return true
	}

	var policyErr *PolicyError
	var validationErr *ValidationError
	var persistenceErr *PersistenceError
	switch {
	case errors.As(err, &policyErr):
		r.log.Warn("closing session", zap.String("user", s.UserID()), zap.String("session", s.ID),
			zap.Int("code", policyErr.Code), zap.String("reason", policyErr.Reason))
		s.Close(policyErr.Code, policyErr.Reason)
		return false
	case errors.As(err, &validationErr):
		r.log.Warn("discarding event", zap.String("user", s.UserID()), zap.Error(err))
	case errors.As(err, &persistenceErr):
		r.log.Error("event aborted", zap.String("user", s.UserID()), zap.Error(err))
		r.notify(s, models.OutError{Type: models.OutErrorType, Code: "persistence", Message: persistenceErr.Op + " failed"})
	default:
		r.log.Error("event failed", zap.String("user", s.UserID()), zap.Error(err))
	}
	return true
}

// notify writes directly to the session's own mailbox, bypassing the broker.
func (r *Router) notify(s *Session, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if !s.Enqueue(data) {
		r.log.Debug("notice dropped", zap.String("session", s.ID))
	}
}

// Handle processes one inbound frame to completion. Cancellation of ctx (the connection going
// away) does not abort an event that already started.
func (r *Router) Handle(ctx context.Context, s *Session, raw []byte) error {
	ctx = context.WithoutCancel(ctx)

	user, err := r.authorize(ctx, s)
	if err != nil {
		return err
	}
	if !s.allow() {
		return invalid("rate limited", nil)
	}

	ev, err := models.DecodeInbound(raw)
	if err != nil {
		return invalid("malformed frame", err)
	}

	switch ev := ev.(type) {
	case models.MessageEvent:
		return r.handleMessage(ctx, s, ev)
	case models.TypingEvent:
		return r.handleTyping(ctx, s, ev)
	case models.ReadEvent:
		return r.handleRead(ctx, s, ev)
	case models.PingEvent:
		return r.handlePing(ctx, user)
	case models.UnknownEvent:
		return invalid("unknown event type "+ev.Type, nil)
	default:
		return invalid("unhandled event", nil)
	}
}

// authorize re-reads the sender on every event so bans and deletions take effect immediately.
func (r *Router) authorize(ctx context.Context, s *Session) (*models.User, error) {
	user, err := r.store.GetUser(ctx, s.UserID())
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, &PolicyError{Code: config.CloseIdentityGone, Reason: "identity no longer exists"}
	}
	if err != nil {
		return nil, persistence("load sender", err)
	}
	if user.IsBanned {
		return nil, &PolicyError{Code: config.CloseBanned, Reason: "banned"}
	}
	banned, err := r.store.IsUserBanned(ctx, user.ID)
	if err != nil {
		return nil, persistence("ban check", err)
	}
	if banned {
		return nil, &PolicyError{Code: config.CloseBanned, Reason: "banned"}
	}
	return user, nil
}

func target(contextTag, to string) (models.MessageContext, error) {
	c, err := models.ParseContext(contextTag)
	if err != nil {
		return "", invalid("context", err)
	}
	if to == "" {
		return "", invalid("missing recipient", nil)
	}
	return c, nil
}

func (r *Router) handleMessage(ctx context.Context, s *Session, ev models.MessageEvent) error {
	msgCtx, err := target(ev.Context, ev.To)
	if err != nil {
		return err
	}

	id, err := r.newID()
	if err != nil {
		return errors.Wrap(err, "message id")
	}
	msg := &models.Message{
		ID:        id,
		From:      s.UserID(),
		To:        ev.To,
		Content:   ev.Content,
		Date:      r.now().UnixMilli(),
		Context:   msgCtx,
		IsDeleted: false,
		IsRead:    false,
	}

	// Saved before publish: a subscriber holding the live event can load it by id.
	if _, err := r.store.SaveMessage(ctx, msg); err != nil {
		return persistence("save message", err)
	}

	channel := msgCtx.Channel(ev.To)
	if err := r.pub.Publish(ctx, channel, models.NewOutMessage(msg)); err != nil {
		return errors.Wrapf(err, "publish message %s", msg.ID)
	}
	r.log.Debug("message routed", zap.String("id", msg.ID), zap.String("from", msg.From), zap.String("channel", channel))
	return nil
}

func (r *Router) handleTyping(ctx context.Context, s *Session, ev models.TypingEvent) error {
	msgCtx, err := target(ev.Context, ev.To)
	if err != nil {
		return err
	}
	typing := models.OutTyping{Type: models.OutTypingType, From: s.UserID()}
	if err := r.pub.Publish(ctx, msgCtx.Channel(ev.To), typing); err != nil {
		r.log.Debug("typing dropped", zap.String("from", s.UserID()), zap.Error(err))
	}
	return nil
}

func (r *Router) handleRead(ctx context.Context, s *Session, ev models.ReadEvent) error {
	if ev.MessageID == "" {
		return invalid("missing messageId", nil)
	}

	msg, err := r.store.GetMessage(ctx, ev.MessageID)
	if errors.Is(err, storage.ErrMessageNotFound) {
		return nil
	}
	if err != nil {
		return persistence("load message", err)
	}

	err = r.store.MarkRead(ctx, msg.ID)
	if errors.Is(err, storage.ErrMessageNotFound) {
		return nil
	}
	if err != nil {
		return persistence("mark read", err)
	}

	// Receipts go to the sender only, also for room messages.
	receipt := models.OutMessageRead{Type: models.OutMessageReadType, By: s.UserID(), MessageID: msg.ID}
	if err := r.pub.Publish(ctx, models.UserChannel(msg.From), receipt); err != nil {
		return errors.Wrapf(err, "publish receipt %s", msg.ID)
	}
	return nil
}

// handlePing refreshes last-seen and signals liveness to the current friends and rooms of user,
// read fresh rather than from the connect-time snapshot.
func (r *Router) handlePing(ctx context.Context, user *models.User) error {
	if err := r.store.UpdateLastSeen(ctx, user.ID, r.now().UnixMilli()); err != nil {
		return persistence("update last seen", err)
	}

	online := models.OutUserOnline{Type: models.OutUserOnlineType}
	channels := make([]string, 0, len(user.Friends)+len(user.Rooms))
	for _, f := range user.Friends {
		channels = append(channels, models.UserChannel(f))
	}
	for _, room := range user.Rooms {
		channels = append(channels, models.RoomChannel(room))
	}
	for _, ch := range channels {
		if err := r.pub.Publish(ctx, ch, online); err != nil {
			r.log.Debug("liveness dropped", zap.String("channel", ch), zap.Error(err))
		}
	}
	return nil
}
