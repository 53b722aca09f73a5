// Package relay bridges the store's pub/sub channels to live client
// sessions. It holds exactly one subscription per channel regardless of
// how many sessions are attached, so any number of relay processes can
// share one store and one set of channels.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jtarrant/relaychat/internal/store"
	"github.com/rs/zerolog"
)

// Pub/sub channel names shared by every relay process.
const (
	ChannelChat     = "chat"
	ChannelPresence = "presence"
)

// Client-facing event names.
const (
	EventMessage = "message"
	EventUsers   = "users"
	EventError   = "error"
)

// Event is the envelope delivered to connected clients. Data carries a
// message record on the chat channel and a username roster on the
// presence channel.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Relay fans every received channel payload out to all attached
// sessions. It never buffers past events: a subscription only observes
// publishes made after it was established, so new clients hydrate
// through history and roster reads instead.
type Relay struct {
	store store.Store
	log   zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]func(data []byte)
	subs     []store.Subscription
	running  bool
}

// New creates a Relay on the given store. Call Run to start receiving.
func New(st store.Store, log zerolog.Logger) *Relay {
	return &Relay{
		store:    st,
		log:      log.With().Str("component", "relay").Logger(),
		sessions: make(map[string]func(data []byte)),
	}
}

// Run subscribes to the chat and presence channels. Delivery to a
// single session is FIFO per channel; no ordering holds across the two
// channels.
func (r *Relay) Run(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("relay already running")
	}

	chatSub, err := r.store.Subscribe(ctx, ChannelChat, r.onChannelMessage)
	if err != nil {
		return err
	}
	presenceSub, err := r.store.Subscribe(ctx, ChannelPresence, r.onChannelMessage)
	if err != nil {
		chatSub.Close()
		return err
	}

	r.subs = []store.Subscription{chatSub, presenceSub}
	r.running = true
	r.log.Info().Msg("subscribed to chat and presence channels")
	return nil
}

// Attach registers a delivery callback for a session. The callback must
// not block; sessions queue into their own buffered send path.
func (r *Relay) Attach(sessionID string, deliver func(data []byte)) {
	r.mu.Lock()
	r.sessions[sessionID] = deliver
	r.mu.Unlock()
}

// Detach removes a session's delivery callback. Events received after
// Detach returns are no longer forwarded to it.
func (r *Relay) Detach(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// Sessions returns the number of currently attached sessions.
func (r *Relay) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close tears down the channel subscriptions. Attached sessions stay
// registered but receive nothing further.
func (r *Relay) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.running = false
	r.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// onChannelMessage wraps a received payload in the client event
// envelope and fans it out. It runs on the owning channel's pump
// goroutine, which is what makes per-channel FIFO delivery hold.
func (r *Relay) onChannelMessage(channel, payload string) {
	var name string
	switch channel {
	case ChannelChat:
		name = EventMessage
	case ChannelPresence:
		name = EventUsers
	default:
		r.log.Warn().Str("channel", channel).Msg("dropping event from unknown channel")
		return
	}

	data, err := json.Marshal(Event{Event: name, Data: json.RawMessage(payload)})
	if err != nil {
		r.log.Error().Err(err).Str("channel", channel).Msg("failed to marshal event")
		return
	}

	// Snapshot the table so delivery happens outside the lock.
	r.mu.RLock()
	targets := make([]func([]byte), 0, len(r.sessions))
	for _, deliver := range r.sessions {
		targets = append(targets, deliver)
	}
	r.mu.RUnlock()

	for _, deliver := range targets {
		deliver(data)
	}
}
