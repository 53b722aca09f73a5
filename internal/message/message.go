package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes user-authored chat messages from system notices.
type Kind string

const (
	KindUser   Kind = "user"
	KindSystem Kind = "system"
)

// Message is a single chat room entry. Messages are immutable once created:
// they are appended to the history log exactly once and never mutated or
// deleted.
type Message struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Text      string    `json:"message"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// New builds a user chat message.
func New(user, text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		User:      user,
		Text:      text,
		Kind:      KindUser,
		CreatedAt: time.Now().UTC(),
	}
}

// Joined builds the system notice recorded when a user enters the room.
func Joined(user string) *Message {
	return system(user, fmt.Sprintf("%s just joined the chat room", user))
}

// Left builds the system notice recorded when a user leaves the room.
func Left(user string) *Message {
	return system(user, fmt.Sprintf("%s just left the chat room", user))
}

func system(user, text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		User:      user,
		Text:      text,
		Kind:      KindSystem,
		CreatedAt: time.Now().UTC(),
	}
}
