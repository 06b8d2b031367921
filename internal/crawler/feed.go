package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mangawatch/internal/release"
)

// FeedAdapter reads a pre-normalized release feed over HTTP:
// a JSON array of {"id": "...", "release": "..."} objects.
//
// Site-specific scraping stays external; deployments front each catalog
// site with a feed endpoint in this shape and point an adapter at it.
type FeedAdapter struct {
	site release.SiteID
	url  string
	http *http.Client
}

const feedMaxRecords = 10000

func NewFeedAdapter(site release.SiteID, url string, timeout time.Duration) (*FeedAdapter, error) {
	if url == "" {
		return nil, errors.New("feed url is empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FeedAdapter{
		site: site,
		url:  url,
		http: &http.Client{Timeout: timeout},
	}, nil
}

func (a *FeedAdapter) Site() release.SiteID { return a.site }

func (a *FeedAdapter) LatestReleases(ctx context.Context) ([]release.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("feed %s: http %d", a.site, resp.StatusCode)
	}

	var raw []struct {
		ID      string `json:"id"`
		Release string `json:"release"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("feed %s: decode: %w", a.site, err)
	}

	out := make([]release.Record, 0, len(raw))
	for _, r := range raw {
		if r.ID == "" {
			continue
		}
		out = append(out, release.Record{SiteItemID: r.ID, Release: r.Release})
		if len(out) >= feedMaxRecords {
			break
		}
	}
	return out, nil
}
