package release

import "strings"

// Site describes a catalog site: its display name and whether notifications
// for its items carry a supplementary "read online" line. The URL template
// substitutes "{id}" with the site-local item id.
//
// Sites are data, not code: a new site is a new descriptor, never a type
// check against a site name.
type Site struct {
	ID            SiteID
	Name          string
	ReadOnlineURL string // empty: no supplementary line
}

// HasReadOnline reports whether items from this site get the extra line.
func (s Site) HasReadOnline() bool { return s.ReadOnlineURL != "" }

// ReadOnlineLink expands the URL template for one item.
func (s Site) ReadOnlineLink(siteItemID string) string {
	return strings.ReplaceAll(s.ReadOnlineURL, "{id}", siteItemID)
}

// Registry holds the known site descriptors, preserving insertion order.
type Registry struct {
	order []SiteID
	sites map[SiteID]Site
}

func NewRegistry(sites ...Site) *Registry {
	r := &Registry{sites: map[SiteID]Site{}}
	for _, s := range sites {
		r.Add(s)
	}
	return r
}

func (r *Registry) Add(s Site) {
	if _, ok := r.sites[s.ID]; !ok {
		r.order = append(r.order, s.ID)
	}
	r.sites[s.ID] = s
}

func (r *Registry) Get(id SiteID) (Site, bool) {
	s, ok := r.sites[id]
	return s, ok
}

// All returns descriptors in registration order.
func (r *Registry) All() []Site {
	out := make([]Site, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sites[id])
	}
	return out
}

// BuiltinSites returns the descriptors for the sites the bot grew up with.
// Deployments can extend or override them from config.
func BuiltinSites() []Site {
	return []Site{
		{ID: "mangaupdates", Name: "MangaUpdates"},
		{ID: "tumanga", Name: "TuManga", ReadOnlineURL: "https://tmofans.com/library/manga/{id}/mangawatch"},
	}
}
