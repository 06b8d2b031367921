package notify

import (
	"context"
	"fmt"
	"sync"

	"mangawatch/internal/storage"
	"mangawatch/internal/transport"
)

// fakeSink records every send and fails on demand per channel/user.
type fakeSink struct {
	mu sync.Mutex

	channelSends []chanSend
	userSends    []userSend

	failChannels map[transport.ChannelID]error
	failUsers    map[transport.UserID]error

	servers  map[transport.ServerID]transport.ServerInfo
	channels map[transport.ServerID][]transport.ChannelID
}

type chanSend struct {
	ch   transport.ChannelID
	text string
	ok   bool
}

type userSend struct {
	user transport.UserID
	text string
	ok   bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		failChannels: map[transport.ChannelID]error{},
		failUsers:    map[transport.UserID]error{},
		servers:      map[transport.ServerID]transport.ServerInfo{},
		channels:     map[transport.ServerID][]transport.ChannelID{},
	}
}

func (f *fakeSink) addServer(id transport.ServerID, def transport.ChannelID, channels ...transport.ChannelID) {
	f.servers[id] = transport.ServerInfo{ID: id, DefaultChannel: def}
	f.channels[id] = channels
}

func (f *fakeSink) SendToChannel(ctx context.Context, ch transport.ChannelID, text string) error {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failChannels[ch]
	f.channelSends = append(f.channelSends, chanSend{ch: ch, text: text, ok: err == nil})
	return err
}

func (f *fakeSink) SendToUser(ctx context.Context, user transport.UserID, text string) error {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failUsers[user]
	f.userSends = append(f.userSends, userSend{user: user, text: text, ok: err == nil})
	return err
}

func (f *fakeSink) ResolveServer(ctx context.Context, server transport.ServerID) (transport.ServerInfo, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.servers[server]
	if !ok {
		return transport.ServerInfo{}, transport.Classify(transport.ErrServerGone, nil)
	}
	return info, nil
}

func (f *fakeSink) ListTextChannels(ctx context.Context, server transport.ServerID) ([]transport.ChannelID, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.ChannelID(nil), f.channels[server]...), nil
}

func (f *fakeSink) Mention(user transport.UserID) string { return fmt.Sprintf("<@%d>", user) }

func (f *fakeSink) Everyone() string { return "@everyone" }

func (f *fakeSink) successfulChannelSends() []chanSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []chanSend
	for _, s := range f.channelSends {
		if s.ok {
			out = append(out, s)
		}
	}
	return out
}

// countingStore wraps the memory store to count purge calls.
type countingStore struct {
	storage.Store
	mu     sync.Mutex
	purges map[transport.ServerID]int
}

func newCountingStore() *countingStore {
	return &countingStore{Store: storage.NewMemory(), purges: map[transport.ServerID]int{}}
}

func (c *countingStore) RemoveServerSubscriptions(ctx context.Context, server transport.ServerID) error {
	c.mu.Lock()
	c.purges[server]++
	c.mu.Unlock()
	return c.Store.RemoveServerSubscriptions(ctx, server)
}
