package release

// Reconcile diffs adapter output against the last known state of each
// tracked item and returns one ChangeEvent per item whose listed release
// label differs from the stored one.
//
// Rules:
//   - A tracked item with no record in its site's batch is skipped this
//     cycle. Absence is not an error; the site listing simply omitted it.
//   - Labels are compared by exact value. "Ch.102" != "Ch.101" is a change;
//     so is "Ch.100" after "Ch.102". Labels are opaque, there is no
//     semantic ordering to fall back on.
//   - Ordering is deterministic: batches in adapter invocation order,
//     records within a batch in source order. Duplicate records for the
//     same site-local id keep the first occurrence.
//   - At most one event per item per cycle.
//
// Reconcile has no side effects; persisting the new label is the caller's
// job once dispatch attempts for the event have been issued.
func Reconcile(items []TrackedItem, batches []Batch) []ChangeEvent {
	byKey := make(map[ItemKey]TrackedItem, len(items))
	for _, it := range items {
		if _, dup := byKey[it.Key]; dup {
			continue
		}
		byKey[it.Key] = it
	}

	var events []ChangeEvent
	emitted := make(map[ItemKey]bool)

	for _, b := range batches {
		seen := make(map[string]bool, len(b.Records))
		for _, rec := range b.Records {
			if seen[rec.SiteItemID] {
				continue
			}
			seen[rec.SiteItemID] = true

			key := ItemKey{Site: b.Site, SiteItemID: rec.SiteItemID}
			item, ok := byKey[key]
			if !ok || emitted[key] {
				continue
			}
			if rec.Release == item.LastRelease {
				continue
			}
			emitted[key] = true
			events = append(events, ChangeEvent{Item: item, NewRelease: rec.Release})
		}
	}
	return events
}
