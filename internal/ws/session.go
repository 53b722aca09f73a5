package ws

import (
	"sync/atomic"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// State is a connection session's lifecycle stage.
type State int32

const (
	// StateConnecting: transport established, username known from page
	// context, no channel subscriptions yet.
	StateConnecting State = iota

	// StateSubscribed: the relay forwards chat and presence events to
	// this session. Lasts for the connection's lifetime.
	StateSubscribed

	// StateClosed: transport torn down and the session detached from
	// the relay. Closing does not remove the username from the active
	// set; only an explicit leave action does.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session ties one live WebSocket to a username and its relay
// attachment. The username comes from the page context and is not
// verified against the presence registry at this layer.
type Session struct {
	id    string
	user  string
	conn  *websocket.Conn
	send  chan []byte
	state atomic.Int32
}

func newSession(conn *websocket.Conn, user string) *Session {
	return &Session{
		id:   uuid.NewString(),
		user: user,
		conn: conn,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// User returns the username the session was opened with.
func (s *Session) User() string { return s.user }

// State returns the session's current lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }
