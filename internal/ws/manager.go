package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	// sendBufferSize is the number of events that can be queued per
	// session before it is treated as a slow consumer.
	sendBufferSize = 16

	// writeTimeout is the max time to wait for a single write.
	writeTimeout = 5 * time.Second

	// defaultMaxSessions is the default concurrent session cap
	// (0 = unlimited).
	defaultMaxSessions = 0
)

// Stats holds point-in-time session statistics.
type Stats struct {
	Active          int   `json:"active"`
	MaxSessions     int   `json:"max_sessions"`
	Rejected        int64 `json:"rejected"`
	DroppedMessages int64 `json:"dropped_messages"`
}

// Manager tracks all live sessions and runs one write pump per
// session, so each WebSocket has a single writer draining a buffered
// queue. Slow consumers drop events rather than stall the relay.
type Manager struct {
	mu          sync.Mutex
	sessions    map[*Session]context.CancelFunc
	closed      bool
	maxSessions int
	log         zerolog.Logger

	rejected atomic.Int64
	dropped  atomic.Int64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxSessions caps concurrent sessions; new connections beyond the
// cap are rejected. 0 means unlimited (default).
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) {
		m.maxSessions = n
	}
}

// NewManager creates a session manager.
func NewManager(log zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions:    make(map[*Session]context.CancelFunc),
		maxSessions: defaultMaxSessions,
		log:         log.With().Str("component", "ws").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add registers a session and starts its write pump. The returned
// context is cancelled when the session is removed or the manager shuts
// down; callers should watch it in their read loop. If the manager is
// closed or at capacity the socket is closed and an already-cancelled
// context is returned.
func (m *Manager) Add(s *Session) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		s.conn.Close(websocket.StatusGoingAway, "server shutting down")
		return cancelledContext()
	}

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.rejected.Add(1)
		s.conn.Close(websocket.StatusTryAgainLater, "server at capacity")
		return cancelledContext()
	}

	s.send = make(chan []byte, sendBufferSize)
	ctx, cancel := context.WithCancel(context.Background())
	m.sessions[s] = cancel

	go m.writePump(ctx, s)

	return ctx
}

// Remove stops a session's write pump and forgets it. The send queue is
// left open; the pump exits via its context, so late deliveries from an
// in-flight fan-out drop harmlessly.
func (m *Manager) Remove(s *Session) {
	m.mu.Lock()
	cancel, ok := m.sessions[s]
	if ok {
		delete(m.sessions, s)
	}
	m.mu.Unlock()

	if ok {
		cancel()
	}
}

// Send queues data for delivery to the session. Returns false if the
// session's buffer is full (slow consumer) or it was never registered.
func (m *Manager) Send(s *Session, data []byte) bool {
	if s.send == nil || s.State() == StateClosed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		m.dropped.Add(1)
		m.log.Warn().Str("session", s.id).Str("user", s.user).Msg("send buffer full, dropping event")
		return false
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Stats returns point-in-time session statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	active := len(m.sessions)
	maxSessions := m.maxSessions
	m.mu.Unlock()
	return Stats{
		Active:          active,
		MaxSessions:     maxSessions,
		Rejected:        m.rejected.Load(),
		DroppedMessages: m.dropped.Load(),
	}
}

// Shutdown gracefully closes every session: cancels each write pump and
// closes each WebSocket with StatusGoingAway.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	sessions := make(map[*Session]context.CancelFunc, len(m.sessions))
	for s, cancel := range m.sessions {
		sessions[s] = cancel
	}
	m.sessions = make(map[*Session]context.CancelFunc)
	m.mu.Unlock()

	for s, cancel := range sessions {
		cancel()
		s.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// writePump drains the session's send queue, writing each event to the
// WebSocket. It exits when ctx is cancelled.
func (m *Manager) writePump(ctx context.Context, s *Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-s.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				m.log.Debug().Err(err).Str("session", s.id).Msg("write failed")
				return
			}
		}
	}
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
