package storage

import (
	"errors"
	"time"

	"mangawatch/internal/transport"
)

var ErrNotFound = errors.New("not found")

// Config configures storage.
//
// Driver values:
//   - "memory": in-process store, not persisted (dev and tests)
//   - "sqlite": SQLite database file
//
// An empty Driver means "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// GroupMember is one row of the mention tier: this user wants to be
// mention-tagged on that server when the item gets a release.
type GroupMember struct {
	Server transport.ServerID
	User   transport.UserID
}

// Subscriptions are the three audience tiers of one tracked item.
//
// Group rows are raw (one per user); coalescing members into one message
// per server is dispatch logic, not storage logic.
type Subscriptions struct {
	Servers []transport.ServerID
	Group   []GroupMember
	Private []transport.UserID
}

// Empty reports whether no one is subscribed on any tier.
func (s Subscriptions) Empty() bool {
	return len(s.Servers) == 0 && len(s.Group) == 0 && len(s.Private) == 0
}
