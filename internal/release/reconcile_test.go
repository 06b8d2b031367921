package release

import "testing"

func item(site SiteID, siteItemID, name, last string) TrackedItem {
	return TrackedItem{
		Key:         ItemKey{Site: site, SiteItemID: siteItemID},
		Name:        name,
		LastRelease: last,
	}
}

func TestReconcileDetectsChange(t *testing.T) {
	t.Parallel()
	items := []TrackedItem{item("mangaupdates", "42", "Berserk", "Ch.101")}
	batches := []Batch{{Site: "mangaupdates", Records: []Record{{SiteItemID: "42", Release: "Ch.102"}}}}

	events := Reconcile(items, batches)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].NewRelease != "Ch.102" {
		t.Fatalf("NewRelease = %q, want Ch.102", events[0].NewRelease)
	}
	if events[0].Item.Name != "Berserk" {
		t.Fatalf("unexpected item: %+v", events[0].Item)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	t.Parallel()
	items := []TrackedItem{item("mangaupdates", "42", "Berserk", "Ch.101")}
	batches := []Batch{{Site: "mangaupdates", Records: []Record{{SiteItemID: "42", Release: "Ch.102"}}}}

	first := Reconcile(items, batches)
	if len(first) != 1 {
		t.Fatalf("expected 1 event, got %d", len(first))
	}

	// Apply the new label; a second pass over the same adapter data must be quiet.
	items[0].LastRelease = first[0].NewRelease
	second := Reconcile(items, batches)
	if len(second) != 0 {
		t.Fatalf("expected 0 events on second pass, got %d", len(second))
	}
}

func TestReconcileSkipsMissingItems(t *testing.T) {
	t.Parallel()
	items := []TrackedItem{
		item("mangaupdates", "42", "Berserk", "Ch.101"),
		item("mangaupdates", "77", "Delisted", "Ch.5"),
	}
	// The listing omits item 77 this cycle: no event, no error.
	batches := []Batch{{Site: "mangaupdates", Records: []Record{{SiteItemID: "42", Release: "Ch.102"}}}}

	events := Reconcile(items, batches)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Item.Key.SiteItemID != "42" {
		t.Fatalf("unexpected item key: %+v", events[0].Item.Key)
	}
}

func TestReconcileExactLabelComparison(t *testing.T) {
	t.Parallel()
	// A "lower" label is still a change: labels are opaque.
	items := []TrackedItem{item("tumanga", "9", "One Shot", "Ch.102")}
	batches := []Batch{{Site: "tumanga", Records: []Record{{SiteItemID: "9", Release: "Ch.100"}}}}

	events := Reconcile(items, batches)
	if len(events) != 1 || events[0].NewRelease != "Ch.100" {
		t.Fatalf("expected change to Ch.100, got %+v", events)
	}
}

func TestReconcileDeterministicOrder(t *testing.T) {
	t.Parallel()
	items := []TrackedItem{
		item("mangaupdates", "1", "A", "x"),
		item("mangaupdates", "2", "B", "x"),
		item("tumanga", "1", "C", "x"),
	}
	batches := []Batch{
		{Site: "mangaupdates", Records: []Record{
			{SiteItemID: "2", Release: "y"},
			{SiteItemID: "1", Release: "y"},
		}},
		{Site: "tumanga", Records: []Record{{SiteItemID: "1", Release: "y"}}},
	}

	for i := 0; i < 10; i++ {
		events := Reconcile(items, batches)
		if len(events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(events))
		}
		// Batch order first, then source order within the batch.
		if events[0].Item.Name != "B" || events[1].Item.Name != "A" || events[2].Item.Name != "C" {
			t.Fatalf("unexpected order: %s %s %s",
				events[0].Item.Name, events[1].Item.Name, events[2].Item.Name)
		}
	}
}

func TestReconcileDuplicateRecordsFirstWins(t *testing.T) {
	t.Parallel()
	items := []TrackedItem{item("mangaupdates", "42", "Berserk", "Ch.101")}
	batches := []Batch{{Site: "mangaupdates", Records: []Record{
		{SiteItemID: "42", Release: "Ch.102"},
		{SiteItemID: "42", Release: "Ch.103"},
	}}}

	events := Reconcile(items, batches)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].NewRelease != "Ch.102" {
		t.Fatalf("NewRelease = %q, want first occurrence Ch.102", events[0].NewRelease)
	}
}

func TestSiteReadOnlineLink(t *testing.T) {
	t.Parallel()
	s := Site{ID: "tumanga", Name: "TuManga", ReadOnlineURL: "https://example.org/library/{id}/x"}
	if !s.HasReadOnline() {
		t.Fatal("expected HasReadOnline")
	}
	if got := s.ReadOnlineLink("99"); got != "https://example.org/library/99/x" {
		t.Fatalf("ReadOnlineLink = %q", got)
	}

	plain := Site{ID: "mangaupdates", Name: "MangaUpdates"}
	if plain.HasReadOnline() {
		t.Fatal("expected no read-online line for plain site")
	}
}

func TestRegistryOrder(t *testing.T) {
	t.Parallel()
	r := NewRegistry(BuiltinSites()...)
	all := r.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 builtin sites, got %d", len(all))
	}
	if all[0].ID != "mangaupdates" || all[1].ID != "tumanga" {
		t.Fatalf("unexpected order: %v, %v", all[0].ID, all[1].ID)
	}

	// Override keeps position.
	r.Add(Site{ID: "mangaupdates", Name: "MU"})
	all = r.All()
	if all[0].Name != "MU" {
		t.Fatalf("override not applied: %+v", all[0])
	}
}
