package chathub

import (
	"chatrelay/backend/internal/config"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Identity is what admission binds to a session before it subscribes to anything.
type Identity struct {
	UserID   string
	Username string
	Avatar   string
	Rooms    []string // connect-time snapshot
}

// Session is the in-memory state of one admitted connection. It owns an outbound mailbox
// that the registry fills and the connection's write pump drains.
type Session struct {
	ID       string
	Identity Identity

	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

// NewSession creates an open session. A non-positive eventRate disables inbound rate limiting.
func NewSession(id Identity, eventRate float64, burst int) *Session {
	limit := rate.Inf
	if eventRate > 0 {
		limit = rate.Limit(eventRate)
	}
	return &Session{
		ID:       uuid.NewString(),
		Identity: id,
		send:     make(chan []byte, config.MailboxSize),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(limit, max(burst, 1)),
	}
}

// UserID returns the authenticated identity id.
func (s *Session) UserID() string { return s.Identity.UserID }

// Mailbox is the receive side of the outbound queue.
func (s *Session) Mailbox() <-chan []byte { return s.send }

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Enqueue adds a frame without blocking. It reports false when the session is closed
// or the mailbox is full.
func (s *Session) Enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Close marks the session closed with a websocket close code. Only the first call counts.
func (s *Session) Close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.closeCode = code
	s.closeReason = reason
	close(s.done)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseStatus returns the code and reason given to Close, or normal closure if still open.
func (s *Session) CloseStatus() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		return websocket.CloseNormalClosure, ""
	}
	return s.closeCode, s.closeReason
}

func (s *Session) allow() bool {
	return s.limiter.Allow()
}
