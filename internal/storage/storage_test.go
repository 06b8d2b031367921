package storage

import (
	"context"
	"path/filepath"
	"testing"

	"mangawatch/internal/release"
	logx "mangawatch/pkg/logx"
)

// driverUnderTest runs the same behavior checks against both drivers.
func driversUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "mangawatch.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestTrackedItemRoundTrip(t *testing.T) {
	for name, st := range driversUnderTest(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := st.AddTrackedItem(ctx, release.TrackedItem{
				Key:         release.ItemKey{Site: "mangaupdates", SiteItemID: "42"},
				Name:        "Berserk",
				LastRelease: "Ch.101",
			})
			if err != nil {
				t.Fatalf("AddTrackedItem: %v", err)
			}

			// Upsert with the same key returns the same id.
			again, err := st.AddTrackedItem(ctx, release.TrackedItem{
				Key:  release.ItemKey{Site: "mangaupdates", SiteItemID: "42"},
				Name: "Berserk (2021)",
			})
			if err != nil {
				t.Fatalf("AddTrackedItem again: %v", err)
			}
			if again != id {
				t.Fatalf("upsert id = %d, want %d", again, id)
			}

			if err := st.UpdateLastRelease(ctx, id, "Ch.102"); err != nil {
				t.Fatalf("UpdateLastRelease: %v", err)
			}
			items, err := st.TrackedItems(ctx)
			if err != nil {
				t.Fatalf("TrackedItems: %v", err)
			}
			if len(items) != 1 || items[0].LastRelease != "Ch.102" {
				t.Fatalf("unexpected items: %+v", items)
			}

			if err := st.UpdateLastRelease(ctx, id+999, "x"); err == nil {
				t.Fatal("expected error updating unknown item")
			}
		})
	}
}

func TestSubscriptionTiersAndPurge(t *testing.T) {
	for name, st := range driversUnderTest(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := st.AddTrackedItem(ctx, release.TrackedItem{
				Key: release.ItemKey{Site: "tumanga", SiteItemID: "9"}, Name: "X",
			})
			if err != nil {
				t.Fatalf("AddTrackedItem: %v", err)
			}

			if err := st.AddServerSubscription(ctx, id, 100); err != nil {
				t.Fatalf("AddServerSubscription: %v", err)
			}
			if err := st.AddServerSubscription(ctx, id, 100); err != nil {
				t.Fatalf("AddServerSubscription dup: %v", err)
			}
			if err := st.AddGroupSubscription(ctx, id, 100, 7); err != nil {
				t.Fatalf("AddGroupSubscription: %v", err)
			}
			if err := st.AddGroupSubscription(ctx, id, 200, 8); err != nil {
				t.Fatalf("AddGroupSubscription: %v", err)
			}
			if err := st.AddPrivateSubscription(ctx, id, 7); err != nil {
				t.Fatalf("AddPrivateSubscription: %v", err)
			}

			subs, err := st.Subscriptions(ctx, id)
			if err != nil {
				t.Fatalf("Subscriptions: %v", err)
			}
			if len(subs.Servers) != 1 || len(subs.Group) != 2 || len(subs.Private) != 1 {
				t.Fatalf("unexpected subs: %+v", subs)
			}

			if err := st.RemoveServerSubscriptions(ctx, 100); err != nil {
				t.Fatalf("RemoveServerSubscriptions: %v", err)
			}
			subs, err = st.Subscriptions(ctx, id)
			if err != nil {
				t.Fatalf("Subscriptions: %v", err)
			}
			if len(subs.Servers) != 0 {
				t.Fatalf("server subs not purged: %+v", subs.Servers)
			}
			if len(subs.Group) != 1 || subs.Group[0].Server != 200 {
				t.Fatalf("group subs for other servers must survive: %+v", subs.Group)
			}
			if len(subs.Private) != 1 {
				t.Fatalf("private subs must survive a server purge: %+v", subs.Private)
			}
		})
	}
}

func TestChannelBindingAndLocales(t *testing.T) {
	for name, st := range driversUnderTest(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := st.ChannelBinding(ctx, 100); err != nil || ok {
				t.Fatalf("expected no binding, got ok=%v err=%v", ok, err)
			}
			if err := st.SaveChannelBinding(ctx, 100, 555); err != nil {
				t.Fatalf("SaveChannelBinding: %v", err)
			}
			if err := st.SaveChannelBinding(ctx, 100, 556); err != nil {
				t.Fatalf("SaveChannelBinding update: %v", err)
			}
			ch, ok, err := st.ChannelBinding(ctx, 100)
			if err != nil || !ok || ch != 556 {
				t.Fatalf("binding = (%v,%v,%v), want (556,true,nil)", ch, ok, err)
			}

			if err := st.SetUserLocale(ctx, 7, "pt-BR"); err != nil {
				t.Fatalf("SetUserLocale: %v", err)
			}
			if err := st.SetServerLocale(ctx, 100, "es-ES"); err != nil {
				t.Fatalf("SetServerLocale: %v", err)
			}
			snap, err := st.LocaleSnapshot(ctx)
			if err != nil {
				t.Fatalf("LocaleSnapshot: %v", err)
			}
			if snap.User(7) != "pt-BR" || snap.Server(100) != "es-ES" {
				t.Fatalf("unexpected snapshot: %+v", snap)
			}
			if snap.User(999) != "" {
				t.Fatalf("unknown user should have empty pref")
			}
		})
	}
}
