package storage

import (
	"context"
	"errors"
	"strings"

	"mangawatch/internal/locale"
	"mangawatch/internal/release"
	"mangawatch/internal/transport"
	logx "mangawatch/pkg/logx"
)

// Store is the persistence API used by the notification core.
//
// UpdateLastRelease is atomic per item; concurrent writers targeting
// different items never contend on each other's labels.
type Store interface {
	TrackedItems(ctx context.Context) ([]release.TrackedItem, error)
	AddTrackedItem(ctx context.Context, item release.TrackedItem) (int64, error)
	UpdateLastRelease(ctx context.Context, itemID int64, label string) error

	Subscriptions(ctx context.Context, itemID int64) (Subscriptions, error)
	AddServerSubscription(ctx context.Context, itemID int64, server transport.ServerID) error
	AddGroupSubscription(ctx context.Context, itemID int64, server transport.ServerID, user transport.UserID) error
	AddPrivateSubscription(ctx context.Context, itemID int64, user transport.UserID) error

	// RemoveServerSubscriptions purges both the broadcast and the mention
	// tier for a server that is gone. Private subscriptions are untouched.
	RemoveServerSubscriptions(ctx context.Context, server transport.ServerID) error

	ChannelBinding(ctx context.Context, server transport.ServerID) (transport.ChannelID, bool, error)
	SaveChannelBinding(ctx context.Context, server transport.ServerID, ch transport.ChannelID) error

	SetUserLocale(ctx context.Context, user transport.UserID, tag string) error
	SetServerLocale(ctx context.Context, server transport.ServerID, tag string) error
	LocaleSnapshot(ctx context.Context) (locale.Snapshot, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
