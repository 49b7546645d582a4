// Package driver loads pages and evaluates probes against them.
package driver

import "context"

// Link is raw anchor data extracted from a loaded page.
// Href is absolute; the other fields are components of the same URL plus
// the anchor text. Search keeps its leading "?".
type Link struct {
	Href     string `json:"href"`
	Pathname string `json:"pathname"`
	Search   string `json:"search"`
	Text     string `json:"text"`
}

// PageDriver navigates to one page at a time and answers probes about the
// page it currently holds. Implementations are not safe for concurrent use.
type PageDriver interface {
	// Navigate loads url. Failures are returned as *NavigationError.
	Navigate(ctx context.Context, url string) error
	// HasMarker reports whether the loaded document's HTML contains marker.
	HasMarker(ctx context.Context, marker string) (bool, error)
	// Links lists the anchors of the loaded document that point at the
	// document's own hostname.
	Links(ctx context.Context) ([]Link, error)
	Close() error
}
