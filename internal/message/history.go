package message

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jtarrant/relaychat/internal/store"
	"github.com/rs/zerolog"
)

// historyKey is the Redis list holding the room's message history.
const historyKey = "chat:messages"

// Log is the append-only ordered record of all chat and system
// messages. Insertion order is the log order and is never reordered.
type Log struct {
	store store.Store
	key   string
	log   zerolog.Logger
}

// NewLog creates a history log backed by the given store.
func NewLog(st store.Store, log zerolog.Logger) *Log {
	return &Log{
		store: st,
		key:   historyKey,
		log:   log.With().Str("component", "history").Logger(),
	}
}

// Append adds msg to the tail of the log. It never rejects based on
// content; only store failures surface as errors.
func (l *Log) Append(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("history append: %w", err)
	}
	if _, err := l.store.ListAppend(ctx, l.key, string(data)); err != nil {
		return fmt.Errorf("history append: %w", err)
	}
	return nil
}

// All returns the full log, oldest first, used to hydrate a client on
// room entry. Elements that fail to decode are skipped. There is no
// pagination; room-lifetime volume staying small is an assumption of
// the design.
func (l *Log) All(ctx context.Context) ([]*Message, error) {
	vals, err := l.store.ListRange(ctx, l.key)
	if err != nil {
		return nil, fmt.Errorf("history read: %w", err)
	}

	msgs := make([]*Message, 0, len(vals))
	for _, v := range vals {
		var m Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			l.log.Warn().Err(err).Msg("skipping undecodable history entry")
			continue
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}
