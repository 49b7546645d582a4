package storage

import (
	"strconv"
	"time"
)

// SiteResult is the verdict for one crawled site
type SiteResult struct {
	Site        string `json:"site"`
	TargetFound bool   `json:"targetFound"`
}

// Record renders the result as one result log record, without terminator
func (r SiteResult) Record() string {
	return r.Site + "," + strconv.FormatBool(r.TargetFound)
}

// TraversalStats describes the work done while crawling one site
type TraversalStats struct {
	Visited  int
	Skipped  int
	Duration time.Duration
}

// Run is one invocation of the distributor
type Run struct {
	RunID             string
	StartedAt         time.Time
	FinishedAt        *time.Time
	SitesTotal        int
	SitesFound        int
	TerminationReason string
}

// SiteRecord is a persisted site result with its traversal stats
type SiteRecord struct {
	ID           int
	RunID        string
	Site         string
	TargetFound  bool
	PagesVisited int
	LinksSkipped int
	DurationMs   int64
	CrawledAt    time.Time
}

// Metrics tracks run statistics for export on exit
type Metrics struct {
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
	SitesTotal           int       `json:"sites_total"`
	SitesProcessed       int       `json:"sites_processed"`
	SitesFound           int       `json:"sites_found"`
	PagesVisited         int       `json:"pages_visited"`
	LinksSkipped         int       `json:"links_skipped"`
	NameResolutionFailed int       `json:"name_resolution_failed"`
	NavigationAborted    int       `json:"navigation_aborted"`
	NavigationFailed     int       `json:"navigation_failed"`
	Rebalances           int       `json:"rebalances"`
	TotalSiteTimeMs      int64     `json:"total_site_time_ms"`
	AvgSiteTimeMs        int64     `json:"avg_site_time_ms"`
	TerminationReason    string    `json:"termination_reason"`
}
