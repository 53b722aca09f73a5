// Package room implements the action pipeline: it turns a client
// action (join, leave, send) into a registry or history mutation
// followed by channel publishes. Mutation and publish are independent
// store operations with no transaction between them; the partial
// failure windows that creates are accepted, not masked.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jtarrant/relaychat/internal/message"
	"github.com/jtarrant/relaychat/internal/presence"
	"github.com/jtarrant/relaychat/internal/ratelimit"
	"github.com/jtarrant/relaychat/internal/relay"
	"github.com/jtarrant/relaychat/internal/store"
	"github.com/rs/zerolog"
)

// maxMessageLength caps a single chat message.
const maxMessageLength = 2000

var (
	// ErrMissingUser rejects actions with no username.
	ErrMissingUser = errors.New("username is required")

	// ErrMissingText rejects sends with no message text.
	ErrMissingText = errors.New("message text is required")

	// ErrTextTooLong rejects sends above maxMessageLength.
	ErrTextTooLong = fmt.Errorf("message exceeds maximum length of %d characters", maxMessageLength)

	// ErrRateLimited rejects sends from a sender over their window cap.
	ErrRateLimited = errors.New("too many messages, slow down")
)

// Room coordinates the presence registry, the history log, and the
// pub/sub channels for the single shared chat room.
type Room struct {
	registry *presence.Registry
	history  *message.Log
	store    store.Store
	limiter  *ratelimit.Limiter
	log      zerolog.Logger
}

// New creates the room pipeline. limiter may be nil to disable send
// rate limiting.
func New(registry *presence.Registry, history *message.Log, st store.Store, limiter *ratelimit.Limiter, log zerolog.Logger) *Room {
	return &Room{
		registry: registry,
		history:  history,
		store:    st,
		limiter:  limiter,
		log:      log.With().Str("component", "room").Logger(),
	}
}

// Join adds user to the active set, then announces it: a system notice
// goes to the history log and the chat channel, and the refreshed
// roster goes to the presence channel. The announce steps are
// best-effort; a crash between registry update and publish leaves
// connected clients with a stale roster until they reload.
func (r *Room) Join(ctx context.Context, user string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return ErrMissingUser
	}
	if err := r.registry.Join(ctx, user); err != nil {
		return err
	}
	r.announce(ctx, message.Joined(user))
	return nil
}

// Leave removes user from the active set and announces it the same way
// Join does.
func (r *Room) Leave(ctx context.Context, user string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return ErrMissingUser
	}
	if err := r.registry.Leave(ctx, user); err != nil {
		return err
	}
	r.announce(ctx, message.Left(user))
	return nil
}

// Send validates and records a chat message, then publishes it on the
// chat channel. If the history append fails the publish still proceeds:
// other clients see the message live and it is simply missing from
// later replays. The store offers no cross-operation transaction to do
// better.
func (r *Room) Send(ctx context.Context, user, text string) (*message.Message, error) {
	user = strings.TrimSpace(user)
	text = strings.TrimSpace(text)
	if user == "" {
		return nil, ErrMissingUser
	}
	if text == "" {
		return nil, ErrMissingText
	}
	if len(text) > maxMessageLength {
		return nil, ErrTextTooLong
	}
	if r.limiter != nil && !r.limiter.Allow(user) {
		return nil, ErrRateLimited
	}

	msg := message.New(user, text)
	if err := r.history.Append(ctx, msg); err != nil {
		r.log.Error().Err(err).Str("user", user).Msg("history append failed, broadcasting anyway")
	}
	if err := r.publishMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Messages returns the full history, oldest first.
func (r *Room) Messages(ctx context.Context) ([]*message.Message, error) {
	return r.history.All(ctx)
}

// Users returns the current roster in stable display order.
func (r *Room) Users(ctx context.Context) ([]string, error) {
	return r.registry.List(ctx)
}

// announce records a system notice and publishes both it and the
// refreshed roster. Failures are logged and swallowed: the registry
// mutation already succeeded and is authoritative.
func (r *Room) announce(ctx context.Context, msg *message.Message) {
	if err := r.history.Append(ctx, msg); err != nil {
		r.log.Error().Err(err).Str("user", msg.User).Msg("failed to record system notice")
	}
	if err := r.publishMessage(ctx, msg); err != nil {
		r.log.Error().Err(err).Str("user", msg.User).Msg("failed to publish system notice")
	}
	if err := r.publishRoster(ctx); err != nil {
		r.log.Error().Err(err).Msg("failed to publish roster")
	}
}

// publishMessage sends a message record on the chat channel.
func (r *Room) publishMessage(ctx context.Context, msg *message.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	if err := r.store.Publish(ctx, relay.ChannelChat, string(data)); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// publishRoster sends the resolved roster on the presence channel. The
// list is fetched to completion before publishing so subscribers never
// see a placeholder for a still-pending read.
func (r *Room) publishRoster(ctx context.Context) error {
	users, err := r.registry.List(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("publish roster: %w", err)
	}
	if err := r.store.Publish(ctx, relay.ChannelPresence, string(data)); err != nil {
		return fmt.Errorf("publish roster: %w", err)
	}
	return nil
}
