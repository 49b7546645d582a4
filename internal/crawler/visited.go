package crawler

import (
	"net/url"
	"strings"
)

// VisitedSet records the pages of one site traversal by (hostname, pathname)
type VisitedSet struct {
	keys map[string]struct{}
}

// NewVisitedSet creates an empty set
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{keys: make(map[string]struct{})}
}

// MarkIfNotVisited inserts the key derived from href.
// Returns false when the key was already present.
func (v *VisitedSet) MarkIfNotVisited(href string) bool {
	key := visitedKey(href)
	if _, ok := v.keys[key]; ok {
		return false
	}
	v.keys[key] = struct{}{}
	return true
}

// Len returns the number of visited pages
func (v *VisitedSet) Len() int {
	return len(v.keys)
}

// visitedKey creates a deduplication key from hostname and path.
// Query strings and fragments do not make a page distinct.
func visitedKey(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return strings.ToLower(parsed.Hostname()) + "|" + path
}
