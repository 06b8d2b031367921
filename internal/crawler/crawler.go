// Package crawler defines the seam between the notification core and the
// site-specific crawlers. The core only sees finite batches of
// (site-local id, release label) records; how a site's catalog is fetched
// and parsed lives behind the Adapter interface.
package crawler

import (
	"context"

	"mangawatch/internal/release"
)

// Adapter produces the latest listed releases for one catalog site.
// One call per site per cycle; the result may be empty. Implementations
// must not block indefinitely (own their timeouts).
type Adapter interface {
	Site() release.SiteID
	LatestReleases(ctx context.Context) ([]release.Record, error)
}

// Func adapts a plain function into an Adapter. Handy in tests.
type Func struct {
	SiteID release.SiteID
	Fn     func(ctx context.Context) ([]release.Record, error)
}

func (f Func) Site() release.SiteID { return f.SiteID }

func (f Func) LatestReleases(ctx context.Context) ([]release.Record, error) {
	return f.Fn(ctx)
}
