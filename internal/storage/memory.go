package storage

import (
	"context"
	"sync"

	"mangawatch/internal/locale"
	"mangawatch/internal/release"
	"mangawatch/internal/transport"
)

// Memory is the in-process store. Nothing is persisted; it backs tests and
// dev runs and is the reference behavior for the sqlite driver.
type Memory struct {
	mu sync.Mutex

	nextID int64
	items  []release.TrackedItem // insertion order

	serverSubs  map[int64][]transport.ServerID
	groupSubs   map[int64][]GroupMember
	privateSubs map[int64][]transport.UserID

	bindings      map[transport.ServerID]transport.ChannelID
	userLocales   map[transport.UserID]string
	serverLocales map[transport.ServerID]string
}

func NewMemory() *Memory {
	return &Memory{
		serverSubs:    map[int64][]transport.ServerID{},
		groupSubs:     map[int64][]GroupMember{},
		privateSubs:   map[int64][]transport.UserID{},
		bindings:      map[transport.ServerID]transport.ChannelID{},
		userLocales:   map[transport.UserID]string{},
		serverLocales: map[transport.ServerID]string{},
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) TrackedItems(ctx context.Context) ([]release.TrackedItem, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]release.TrackedItem, len(m.items))
	copy(out, m.items)
	return out, nil
}

func (m *Memory) AddTrackedItem(ctx context.Context, item release.TrackedItem) (int64, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.Key == item.Key {
			return it.ID, nil
		}
	}
	m.nextID++
	item.ID = m.nextID
	m.items = append(m.items, item)
	return item.ID, nil
}

func (m *Memory) UpdateLastRelease(ctx context.Context, itemID int64, label string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == itemID {
			m.items[i].LastRelease = label
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) Subscriptions(ctx context.Context, itemID int64) (Subscriptions, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	var subs Subscriptions
	subs.Servers = append(subs.Servers, m.serverSubs[itemID]...)
	subs.Group = append(subs.Group, m.groupSubs[itemID]...)
	subs.Private = append(subs.Private, m.privateSubs[itemID]...)
	return subs, nil
}

func (m *Memory) AddServerSubscription(ctx context.Context, itemID int64, server transport.ServerID) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.serverSubs[itemID] {
		if s == server {
			return nil
		}
	}
	m.serverSubs[itemID] = append(m.serverSubs[itemID], server)
	return nil
}

func (m *Memory) AddGroupSubscription(ctx context.Context, itemID int64, server transport.ServerID, user transport.UserID) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groupSubs[itemID] {
		if g.Server == server && g.User == user {
			return nil
		}
	}
	m.groupSubs[itemID] = append(m.groupSubs[itemID], GroupMember{Server: server, User: user})
	return nil
}

func (m *Memory) AddPrivateSubscription(ctx context.Context, itemID int64, user transport.UserID) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.privateSubs[itemID] {
		if u == user {
			return nil
		}
	}
	m.privateSubs[itemID] = append(m.privateSubs[itemID], user)
	return nil
}

func (m *Memory) RemoveServerSubscriptions(ctx context.Context, server transport.ServerID) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, servers := range m.serverSubs {
		kept := servers[:0]
		for _, s := range servers {
			if s != server {
				kept = append(kept, s)
			}
		}
		m.serverSubs[id] = kept
	}
	for id, members := range m.groupSubs {
		kept := members[:0]
		for _, g := range members {
			if g.Server != server {
				kept = append(kept, g)
			}
		}
		m.groupSubs[id] = kept
	}
	return nil
}

func (m *Memory) ChannelBinding(ctx context.Context, server transport.ServerID) (transport.ChannelID, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.bindings[server]
	return ch, ok, nil
}

func (m *Memory) SaveChannelBinding(ctx context.Context, server transport.ServerID, ch transport.ChannelID) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[server] = ch
	return nil
}

func (m *Memory) SetUserLocale(ctx context.Context, user transport.UserID, tag string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userLocales[user] = tag
	return nil
}

func (m *Memory) SetServerLocale(ctx context.Context, server transport.ServerID, tag string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serverLocales[server] = tag
	return nil
}

func (m *Memory) LocaleSnapshot(ctx context.Context) (locale.Snapshot, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := locale.Snapshot{
		Users:   make(map[transport.UserID]string, len(m.userLocales)),
		Servers: make(map[transport.ServerID]string, len(m.serverLocales)),
	}
	for u, tag := range m.userLocales {
		snap.Users[u] = tag
	}
	for s, tag := range m.serverLocales {
		snap.Servers[s] = tag
	}
	return snap, nil
}
