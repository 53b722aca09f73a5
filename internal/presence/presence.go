// Package presence owns the set of currently active usernames.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jtarrant/relaychat/internal/store"
)

// activeUsersKey is the Redis set holding the room's active usernames.
const activeUsersKey = "chat:active_users"

var (
	// ErrAlreadyPresent is returned by Join when the username is
	// already a member of the active set.
	ErrAlreadyPresent = errors.New("username already present")

	// ErrNotPresent is returned by Leave when the username is not a
	// member of the active set.
	ErrNotPresent = errors.New("username not present")
)

// Registry manages active-set membership. Uniqueness rests entirely on
// the store's check-and-mutate return value, not on registry-side
// coordination, so any number of relay processes can share one set.
type Registry struct {
	store store.Store
	key   string
}

// NewRegistry creates a Registry backed by the given store.
func NewRegistry(st store.Store) *Registry {
	return &Registry{store: st, key: activeUsersKey}
}

// Join adds user to the active set. A "read set, then add" sequence
// would race under concurrent joins of the same name; instead the add
// operation's own return value decides, and "not newly inserted" is a
// rejection.
func (r *Registry) Join(ctx context.Context, user string) error {
	added, err := r.store.SetAdd(ctx, r.key, user)
	if err != nil {
		return fmt.Errorf("presence join: %w", err)
	}
	if added == 0 {
		return ErrAlreadyPresent
	}
	return nil
}

// Leave removes user from the active set, with the same return-value
// discipline as Join.
func (r *Registry) Leave(ctx context.Context, user string) error {
	removed, err := r.store.SetRemove(ctx, r.key, user)
	if err != nil {
		return fmt.Errorf("presence leave: %w", err)
	}
	if removed == 0 {
		return ErrNotPresent
	}
	return nil
}

// List returns current membership. Set order is not semantically
// significant but is sorted here so roster displays stay stable.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	members, err := r.store.SetMembers(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("presence list: %w", err)
	}
	sort.Strings(members)
	return members, nil
}
