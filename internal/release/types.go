package release

// SiteID names a catalog site an adapter crawls (e.g. "mangaupdates").
type SiteID string

// ItemKey is the identity of a tracked item: which site, and the item's
// site-local identifier on that site.
type ItemKey struct {
	Site       SiteID
	SiteItemID string
}

// TrackedItem is a catalog entry whose release state is monitored.
//
// LastRelease is an opaque label ("Ch.102", "v12", ...) coming from
// heterogeneous sites. It is compared by exact value only; there is no
// ordering between labels.
type TrackedItem struct {
	ID          int64 // storage id
	Key         ItemKey
	Name        string
	LastRelease string
}

// Record is one adapter result: a site-local item id and the latest release
// label the site lists for it. Ephemeral, lives only within one cycle.
type Record struct {
	SiteItemID string
	Release    string
}

// Batch is the output of one adapter invocation, tagged with its site.
// Batches keep the order adapters were invoked in.
type Batch struct {
	Site    SiteID
	Records []Record
}

// ChangeEvent marks a tracked item whose site listing moved to a new
// release label this cycle.
type ChangeEvent struct {
	Item       TrackedItem
	NewRelease string
}
