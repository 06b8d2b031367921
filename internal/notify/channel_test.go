package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mangawatch/internal/storage"
	"mangawatch/internal/transport"
	logx "mangawatch/pkg/logx"
)

func TestDeliverBoundChannelNoHint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := newFakeSink()
	sink.addServer(100, 1, 1, 2, 3)
	store := storage.NewMemory()
	if err := store.SaveChannelBinding(ctx, 100, 2); err != nil {
		t.Fatalf("SaveChannelBinding: %v", err)
	}

	r := NewChannelResolver(sink, store, logx.Nop())
	ch, err := r.Deliver(ctx, 100, sink.servers[100], "hello", "HINT")
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if ch != 2 {
		t.Fatalf("delivered to %d, want bound channel 2", ch)
	}
	if len(sink.channelSends) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sink.channelSends))
	}
	if strings.Contains(sink.channelSends[0].text, "HINT") {
		t.Fatal("hint must not be appended on the bound-channel path")
	}
}

func TestDeliverDefaultChannelAppendsHint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := newFakeSink()
	sink.addServer(100, 7, 7, 8)

	r := NewChannelResolver(sink, storage.NewMemory(), logx.Nop())
	ch, err := r.Deliver(ctx, 100, sink.servers[100], "hello", "HINT")
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if ch != 7 {
		t.Fatalf("delivered to %d, want default channel 7", ch)
	}
	got := sink.channelSends[0].text
	if !strings.HasPrefix(got, "hello") || !strings.Contains(got, "HINT") {
		t.Fatalf("default-channel message must carry the hint: %q", got)
	}
}

func TestDeliverFallbackChain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := newFakeSink()
	// Bound channel 5 fails, then channels 11 and 12: 11 fails, 12 accepts.
	sink.addServer(100, 5, 5, 11, 12)
	sink.failChannels[5] = errors.New("channel deleted")
	sink.failChannels[11] = errors.New("no permission")

	store := storage.NewMemory()
	if err := store.SaveChannelBinding(ctx, 100, 5); err != nil {
		t.Fatalf("SaveChannelBinding: %v", err)
	}

	r := NewChannelResolver(sink, store, logx.Nop())
	ch, err := r.Deliver(ctx, 100, sink.servers[100], "hello", "HINT")
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if ch != 12 {
		t.Fatalf("delivered to %d, want second fallback channel 12", ch)
	}

	succ := sink.successfulChannelSends()
	if len(succ) != 1 || succ[0].ch != 12 {
		t.Fatalf("exactly one send must succeed, on channel 12: %+v", succ)
	}
	// The failed channels were each attempted once, in order.
	var attempted []transport.ChannelID
	for _, s := range sink.channelSends {
		attempted = append(attempted, s.ch)
	}
	want := []transport.ChannelID{5, 11, 12}
	if len(attempted) != len(want) {
		t.Fatalf("attempts = %v, want %v", attempted, want)
	}
	for i := range want {
		if attempted[i] != want[i] {
			t.Fatalf("attempts = %v, want %v", attempted, want)
		}
	}
}

func TestDeliverFallbackKeepsDefaultBranchMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := newFakeSink()
	// No binding: default 7 fails, fallback 8 accepts; the fallback message
	// is the one the default branch built, hint included.
	sink.addServer(100, 7, 7, 8)
	sink.failChannels[7] = errors.New("kicked")

	r := NewChannelResolver(sink, storage.NewMemory(), logx.Nop())
	ch, err := r.Deliver(ctx, 100, sink.servers[100], "hello", "HINT")
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if ch != 8 {
		t.Fatalf("delivered to %d, want 8", ch)
	}
	last := sink.channelSends[len(sink.channelSends)-1]
	if !strings.Contains(last.text, "HINT") {
		t.Fatalf("fallback after default branch must keep the hint: %q", last.text)
	}
}

func TestDeliverDropsAfterExhaustion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := newFakeSink()
	sink.addServer(100, 7, 7, 8, 9)
	for _, ch := range []transport.ChannelID{7, 8, 9} {
		sink.failChannels[ch] = errors.New("nope")
	}

	r := NewChannelResolver(sink, storage.NewMemory(), logx.Nop())
	_, err := r.Deliver(ctx, 100, sink.servers[100], "hello", "HINT")
	if !errors.Is(err, transport.ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable, got %v", err)
	}
	if got := len(sink.channelSends); got != 3 {
		t.Fatalf("expected 3 attempts (default + 2 remaining), got %d", got)
	}
}
