package cycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mangawatch/internal/crawler"
	"mangawatch/internal/locale"
	"mangawatch/internal/notify"
	"mangawatch/internal/release"
	"mangawatch/internal/storage"
	"mangawatch/internal/transport"
	logx "mangawatch/pkg/logx"
)

type recordingSink struct {
	mu        sync.Mutex
	userSends []string
}

func (s *recordingSink) SendToChannel(ctx context.Context, ch transport.ChannelID, text string) error {
	return nil
}

func (s *recordingSink) SendToUser(ctx context.Context, user transport.UserID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userSends = append(s.userSends, text)
	return nil
}

func (s *recordingSink) ResolveServer(ctx context.Context, server transport.ServerID) (transport.ServerInfo, error) {
	return transport.ServerInfo{}, transport.Classify(transport.ErrServerGone, nil)
}

func (s *recordingSink) ListTextChannels(ctx context.Context, server transport.ServerID) ([]transport.ChannelID, error) {
	return nil, nil
}

func (s *recordingSink) Mention(user transport.UserID) string { return "@u" }

func (s *recordingSink) Everyone() string { return "@everyone" }

func (s *recordingSink) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.userSends...)
}

func newTestRunner(t *testing.T, store storage.Store, sink transport.Sink, adapters ...crawler.Adapter) *Runner {
	t.Helper()
	loc, err := locale.New("en-US")
	if err != nil {
		t.Fatalf("locale.New: %v", err)
	}
	disp := notify.NewDispatcher(notify.Config{}, sink, store, loc, release.NewRegistry(release.BuiltinSites()...), logx.Nop())
	return NewRunner(Config{Workers: 2}, store, adapters, disp, logx.Nop())
}

func staticAdapter(site release.SiteID, records ...release.Record) crawler.Func {
	return crawler.Func{
		SiteID: site,
		Fn: func(ctx context.Context) ([]release.Record, error) {
			return records, nil
		},
	}
}

func TestRunDispatchesChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	item := release.TrackedItem{
		Key:         release.ItemKey{Site: "mangaupdates", SiteItemID: "42"},
		Name:        "Berserk",
		LastRelease: "Ch.101",
	}
	id, err := store.AddTrackedItem(ctx, item)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AddPrivateSubscription(ctx, id, 55); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	r := newTestRunner(t, store, sink,
		staticAdapter("mangaupdates", release.Record{SiteItemID: "42", Release: "Ch.102"}))

	rep, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Events != 1 || rep.Sent != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if got := sink.sent(); len(got) != 1 {
		t.Fatalf("expected 1 private send, got %d", len(got))
	}

	// The label advanced, so an identical second cycle is a no-op.
	rep, err = r.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if rep.Events != 0 {
		t.Fatalf("second identical cycle must detect nothing, got %d events", rep.Events)
	}
}

func TestRunAdapterFailureIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	broken, err := store.AddTrackedItem(ctx, release.TrackedItem{
		Key:         release.ItemKey{Site: "tumanga", SiteItemID: "9"},
		Name:        "One Shot",
		LastRelease: "Ch.1",
	})
	if err != nil {
		t.Fatal(err)
	}
	healthy, err := store.AddTrackedItem(ctx, release.TrackedItem{
		Key:         release.ItemKey{Site: "mangaupdates", SiteItemID: "42"},
		Name:        "Berserk",
		LastRelease: "Ch.101",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AddPrivateSubscription(ctx, healthy, 55); err != nil {
		t.Fatal(err)
	}

	failing := crawler.Func{
		SiteID: "tumanga",
		Fn: func(ctx context.Context) ([]release.Record, error) {
			return nil, errors.New("gateway timeout")
		},
	}
	sink := &recordingSink{}
	r := newTestRunner(t, store, sink,
		failing,
		staticAdapter("mangaupdates", release.Record{SiteItemID: "42", Release: "Ch.102"}))

	rep, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Events != 1 || rep.Sent != 1 {
		t.Fatalf("healthy site must still dispatch: %+v", rep)
	}

	// The failing site's item keeps its label untouched.
	items, err := store.TrackedItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range items {
		switch it.ID {
		case broken:
			if it.LastRelease != "Ch.1" {
				t.Fatalf("failed crawl must not advance state, got %q", it.LastRelease)
			}
		case healthy:
			if it.LastRelease != "Ch.102" {
				t.Fatalf("healthy item label = %q, want Ch.102", it.LastRelease)
			}
		}
	}
}

func TestRunSingleFlight(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	if _, err := store.AddTrackedItem(ctx, release.TrackedItem{
		Key:  release.ItemKey{Site: "mangaupdates", SiteItemID: "42"},
		Name: "Berserk",
	}); err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{})
	var enteredOnce sync.Once
	release2 := make(chan struct{})
	slow := crawler.Func{
		SiteID: "mangaupdates",
		Fn: func(ctx context.Context) ([]release.Record, error) {
			// Run is invoked again after release2 is closed; only the
			// first crawl may close the entered channel.
			enteredOnce.Do(func() { close(entered) })
			<-release2
			return nil, nil
		},
	}
	r := newTestRunner(t, store, &recordingSink{}, slow)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx)
		done <- err
	}()
	<-entered

	if _, err := r.Run(ctx); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("overlapping Run = %v, want ErrCycleRunning", err)
	}

	close(release2)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("first Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first Run did not finish")
	}

	// The lock is free again.
	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("Run after release: %v", err)
	}
}
