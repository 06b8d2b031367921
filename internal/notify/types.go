package notify

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"mangawatch/internal/locale"
	"mangawatch/internal/release"
	"mangawatch/internal/transport"
)

// Outcome records what happened to one change event. Dispatch never fails
// past its boundary; everything a caller may want to know is in here.
type Outcome struct {
	Item          release.ItemKey
	Release       string
	Sent          int
	Failed        int
	Dropped       int // server events with no channel left to try
	Swallowed     int // private sends to unreachable recipients
	Purged        []transport.ServerID
	StateAdvanced bool
}

// CycleState is shared by all dispatches of one cycle: the read-only locale
// snapshot taken at cycle start, and the guard that makes the subscription
// purge for a gone server happen at most once per cycle even when per-item
// dispatch runs in parallel.
type CycleState struct {
	Locales locale.Snapshot

	mu     sync.Mutex
	purged map[transport.ServerID]bool
}

func NewCycleState(locales locale.Snapshot) *CycleState {
	return &CycleState{Locales: locales, purged: map[transport.ServerID]bool{}}
}

// markPurged reports whether this call is the first to purge the server.
func (c *CycleState) markPurged(server transport.ServerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.purged[server] {
		return false
	}
	c.purged[server] = true
	return true
}

func (c *CycleState) wasPurged(server transport.ServerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purged[server]
}

// RateLimited wraps a sink so every outbound send waits on a shared rate
// limiter. Resolution calls pass through untouched.
func RateLimited(sink transport.Sink, ratePerSec int) transport.Sink {
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	return &limitedSink{
		Sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

type limitedSink struct {
	transport.Sink
	limiter *rate.Limiter
}

func (s *limitedSink) SendToChannel(ctx context.Context, ch transport.ChannelID, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.Sink.SendToChannel(ctx, ch, text)
}

func (s *limitedSink) SendToUser(ctx context.Context, user transport.UserID, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.Sink.SendToUser(ctx, user, text)
}
