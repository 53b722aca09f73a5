// Package store wraps the external backend's list, set, and pub/sub
// primitives behind typed operations. All shared room state (message
// history, active-user set) lives behind this interface so that relay
// processes themselves stay stateless.
package store

import "context"

// Store is the contract the relay core consumes. The only atomicity it
// requires is single-key check-and-mutate: SetAdd and SetRemove report
// whether the operation actually changed membership, and ListAppend is
// naturally serial per key. No multi-key transactions are assumed.
type Store interface {
	// ListAppend appends value to the tail of the list at key and
	// returns the resulting list length.
	ListAppend(ctx context.Context, key, value string) (int64, error)

	// ListRange returns every element of the list at key, oldest first.
	ListRange(ctx context.Context, key string) ([]string, error)

	// SetAdd adds member to the set at key. The returned count is 1 if
	// the member was newly inserted and 0 if it was already present.
	SetAdd(ctx context.Context, key, member string) (int64, error)

	// SetRemove removes member from the set at key. The returned count
	// is 1 if the member was removed and 0 if it was not present.
	SetRemove(ctx context.Context, key, member string) (int64, error)

	// SetMembers returns the members of the set at key in no
	// particular order.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// Publish sends payload to every current subscriber of channel.
	// Subscribers established after the call do not observe it.
	Publish(ctx context.Context, channel, payload string) error

	// Subscribe establishes a subscription on channel and invokes
	// onMessage for every payload published after the subscription was
	// established. onMessage is called from a single goroutine per
	// subscription, in publish order.
	Subscribe(ctx context.Context, channel string, onMessage func(channel, payload string)) (Subscription, error)
}

// Subscription is a live pub/sub subscription. Close stops delivery and
// releases the underlying connection.
type Subscription interface {
	Close() error
}
