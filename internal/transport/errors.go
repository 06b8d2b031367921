package transport

import (
	"errors"
	"fmt"
)

// Delivery failure classes. Adapters wrap platform errors into exactly one
// of these so callers can branch with errors.Is without knowing the platform.
var (
	// ErrRecipientUnreachable marks private sends that can never succeed:
	// the user blocked the bot or the account is gone. Expected steady-state
	// condition, swallowed by the dispatcher.
	ErrRecipientUnreachable = errors.New("recipient unreachable")

	// ErrChannelUnavailable marks a channel send that failed (deleted
	// channel, missing permission). Triggers the channel fallback chain.
	ErrChannelUnavailable = errors.New("channel unavailable")

	// ErrServerGone marks a server the platform no longer resolves.
	// Triggers the subscription purge for that server.
	ErrServerGone = errors.New("server gone")
)

// Classify attaches a failure class to a platform error while keeping the
// original message. The class stays matchable via errors.Is.
func Classify(class, cause error) error {
	if cause == nil {
		return class
	}
	return fmt.Errorf("%w: %v", class, cause)
}
