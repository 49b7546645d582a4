package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/marker-scout/internal/driver"
	"github.com/alvmarrod/marker-scout/internal/storage"
)

// Tracker holds and manages run metrics. It is safe for concurrent use and
// serves as the crawl engine's observer for every worker.
type Tracker struct {
	mu              sync.Mutex
	data            storage.Metrics
	totalSiteTimeMs int64
	now             func() time.Time
}

// NewTracker creates a new metrics tracker
func NewTracker() *Tracker {
	return &Tracker{
		data: storage.Metrics{
			StartTime: time.Now(),
		},
		now: time.Now,
	}
}

// SetSitesTotal sets the number of sites scheduled for this run
func (t *Tracker) SetSitesTotal(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.SitesTotal = n
}

// PageVisited counts a successfully loaded page
func (t *Tracker) PageVisited() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesVisited++
}

// NavigationFailed counts a failed navigation by class
func (t *Tracker) NavigationFailed(kind driver.ErrorKind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch kind {
	case driver.KindNameNotResolved, driver.KindNameResolutionFailed:
		t.data.NameResolutionFailed++
	case driver.KindAborted:
		t.data.NavigationAborted++
	default:
		t.data.NavigationFailed++
	}
}

// SiteCompleted records a finished site
func (t *Tracker) SiteCompleted(result storage.SiteResult, stats storage.TraversalStats) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.SitesProcessed++
	if result.TargetFound {
		t.data.SitesFound++
	}
	t.data.LinksSkipped += stats.Skipped
	t.totalSiteTimeMs += stats.Duration.Milliseconds()
}

// Rebalanced counts a switch of the pool to work stealing
func (t *Tracker) Rebalanced() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Rebalances++
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	t.finalizeAverages(&snapshot)
	return snapshot
}

// ETA estimates the time left from the wall clock rate of completed sites
func (t *Tracker) ETA() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eta()
}

func (t *Tracker) eta() time.Duration {
	if t.data.SitesProcessed == 0 || t.data.SitesTotal <= t.data.SitesProcessed {
		return 0
	}
	elapsed := t.now().Sub(t.data.StartTime)
	perSite := elapsed / time.Duration(t.data.SitesProcessed)
	return perSite * time.Duration(t.data.SitesTotal-t.data.SitesProcessed)
}

func (t *Tracker) finalizeAverages(m *storage.Metrics) {
	m.TotalSiteTimeMs = t.totalSiteTimeMs
	if t.data.SitesProcessed > 0 {
		m.AvgSiteTimeMs = t.totalSiteTimeMs / int64(t.data.SitesProcessed)
	}
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Finalize metrics
	t.data.EndTime = t.now()
	t.data.TerminationReason = reason
	t.finalizeAverages(&t.data)

	jsonData, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress returns a one line progress summary (for periodic updates)
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	percent := 100.0
	if t.data.SitesTotal > 0 {
		percent = float64(t.data.SitesProcessed) / float64(t.data.SitesTotal) * 100
	}

	return fmt.Sprintf("Sites: %d/%d (%.1f%%), %d found | Pages: %d visited | ETA: %s",
		t.data.SitesProcessed,
		t.data.SitesTotal,
		percent,
		t.data.SitesFound,
		t.data.PagesVisited,
		t.eta().Round(time.Second),
	)
}
