package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jtarrant/relaychat/internal/relay"
	"github.com/jtarrant/relaychat/internal/room"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// Handler upgrades HTTP requests to WebSocket sessions, attaches them
// to the relay, and forwards client-submitted actions into the room
// pipeline.
type Handler struct {
	relay    *relay.Relay
	room     *room.Room
	sessions *Manager
	log      zerolog.Logger
}

// NewHandler creates a WebSocket Handler.
func NewHandler(rl *relay.Relay, rm *room.Room, sessions *Manager, log zerolog.Logger) *Handler {
	return &Handler{
		relay:    rl,
		room:     rm,
		sessions: sessions,
		log:      log.With().Str("component", "ws").Logger(),
	}
}

// ServeHTTP runs a session from upgrade to teardown. The username comes
// from the `user` query parameter, supplied by the page the client
// joined through; it is not re-validated against the presence registry
// here. Closing the socket does not issue a leave: a client that
// vanishes without an explicit leave action stays in the active set.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	if user == "" {
		http.Error(w, "user query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow all origins in dev; tighten in production.
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("accept error")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	s := newSession(conn, user)
	connCtx := h.sessions.Add(s)
	if connCtx.Err() != nil {
		return
	}
	defer h.sessions.Remove(s)

	h.relay.Attach(s.ID(), func(data []byte) {
		h.sessions.Send(s, data)
	})
	s.setState(StateSubscribed)
	defer func() {
		s.setState(StateClosed)
		h.relay.Detach(s.ID())
	}()

	h.log.Debug().Str("session", s.ID()).Str("user", user).Msg("session subscribed")
	h.readLoop(r.Context(), connCtx, s)
}

// actionPayload is the body of an inbound message action.
type actionPayload struct {
	User string `json:"user"`
	Text string `json:"message"`
}

// readLoop reads client envelopes until the connection closes or the
// manager cancels connCtx. In-flight store calls run to completion even
// if the session closes mid-action; their results are simply unused.
func (h *Handler) readLoop(ctx context.Context, connCtx context.Context, s *Session) {
	for {
		select {
		case <-connCtx.Done():
			return
		default:
		}

		_, data, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancelled.
			return
		}

		var env relay.Event
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Event {
		case relay.EventMessage:
			var payload actionPayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				continue
			}
			// The session's page-context identity wins over whatever
			// username the payload claims. The store call is detached
			// from the connection context: if the session closes
			// mid-action the call still runs to completion and its
			// result is simply discarded.
			if _, err := h.room.Send(context.WithoutCancel(ctx), s.User(), payload.Text); err != nil {
				h.sendError(s, err)
			}
		}
	}
}

// sendError queues an error envelope for the session.
func (h *Handler) sendError(s *Session, cause error) {
	data, err := json.Marshal(map[string]string{"message": cause.Error()})
	if err != nil {
		return
	}
	env, err := json.Marshal(relay.Event{Event: relay.EventError, Data: data})
	if err != nil {
		return
	}
	h.sessions.Send(s, env)
}
