package transport

import "context"

// ServerID identifies a chat community (a "server") on the platform.
type ServerID int64

// ChannelID identifies a text channel the bot can post to.
type ChannelID int64

// UserID identifies a platform user for direct messages and mentions.
type UserID int64

// ServerInfo is what the platform knows about a reachable server.
type ServerInfo struct {
	ID             ServerID
	DefaultChannel ChannelID
}

// Sink is the delivery boundary to the chat platform.
//
// Implementations own their own timeout policy; callers classify failures
// with the sentinel errors in errors.go and decide fallback from there.
type Sink interface {
	SendToChannel(ctx context.Context, ch ChannelID, text string) error
	SendToUser(ctx context.Context, user UserID, text string) error

	// ResolveServer reports whether the server is still reachable.
	// An unreachable server yields ErrServerGone.
	ResolveServer(ctx context.Context, server ServerID) (ServerInfo, error)

	// ListTextChannels returns the server's text channels in a stable order.
	ListTextChannels(ctx context.Context, server ServerID) ([]ChannelID, error)

	// Mention renders a platform mention token for the user.
	Mention(user UserID) string

	// Everyone renders the platform's broadcast marker.
	Everyone() string
}
