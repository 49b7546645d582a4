package crawler

import (
	"context"
	"time"

	"github.com/alvmarrod/marker-scout/internal/config"
	"github.com/alvmarrod/marker-scout/internal/driver"
	"github.com/alvmarrod/marker-scout/internal/storage"
	"github.com/sirupsen/logrus"
)

// Observer receives page level events during a traversal
type Observer interface {
	PageVisited()
	NavigationFailed(kind driver.ErrorKind)
}

// Engine crawls one site at a time through a single page driver.
// It is not safe for concurrent use.
type Engine struct {
	driver     driver.PageDriver
	marker     string
	maxDepth   int
	filterMode string
	log        *logrus.Entry
	observer   Observer
}

// traversal is the state of one CrawlSite call
type traversal struct {
	landingPage string
	visited     *VisitedSet
	skipped     map[string]struct{}
	log         *logrus.Entry
}

// NewEngine creates an engine driving d. observer may be nil.
func NewEngine(d driver.PageDriver, cfg *config.Config, log *logrus.Entry, observer Observer) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		driver:     d,
		marker:     cfg.TargetMarker,
		maxDepth:   cfg.MaxDepth,
		filterMode: cfg.FilterMode,
		log:        log,
		observer:   observer,
	}
}

// Close releases the engine's page driver
func (e *Engine) Close() error {
	return e.driver.Close()
}

// CrawlSite walks site's internal link graph looking for the target marker
func (e *Engine) CrawlSite(ctx context.Context, site string) storage.SiteResult {
	result, _ := e.Crawl(ctx, site)
	return result
}

// Crawl is CrawlSite that also reports the traversal stats
func (e *Engine) Crawl(ctx context.Context, site string) (storage.SiteResult, storage.TraversalStats) {
	start := time.Now()
	t := &traversal{
		landingPage: site,
		visited:     NewVisitedSet(),
		skipped:     make(map[string]struct{}),
		log:         e.log.WithField("site", site),
	}

	t.log.Infof("scraping %s", site)

	found := e.visitHelper(ctx, t, []driver.Link{{Href: site}}, 0, true)

	stats := storage.TraversalStats{
		Visited:  t.visited.Len(),
		Skipped:  len(t.skipped),
		Duration: time.Since(start),
	}
	t.log.WithFields(logrus.Fields{
		"visited": stats.Visited,
		"skipped": stats.Skipped,
	}).Infof("Has target link: %t", found)

	return storage.SiteResult{Site: site, TargetFound: found}, stats
}

// visitHelper explores links in descending rank order until the marker is
// found or the links run out
func (e *Engine) visitHelper(ctx context.Context, t *traversal, links []driver.Link, depth int, isLandingPage bool) bool {
	kept, skipped := FilterLinks(links, t.landingPage, e.filterMode)
	for _, link := range skipped {
		t.skipped[link.Href] = struct{}{}
	}

	for _, link := range RankLinks(kept) {
		// Sorted by rank, only the landing page may be unranked
		if link.Rank == 0 && !isLandingPage {
			break
		}

		if depth >= e.maxDepth {
			return false
		}
		if ctx.Err() != nil {
			return false
		}

		if !t.visited.MarkIfNotVisited(link.Href) {
			continue
		}

		if e.visit(ctx, t, link.Href, depth+1) {
			return true
		}
	}

	return false
}

// visit loads url, probes it for the marker and descends into its links
func (e *Engine) visit(ctx context.Context, t *traversal, url string, depth int) bool {
	t.log.Debugf("visiting %s (depth=%d)", url, depth)

	if err := e.driver.Navigate(ctx, url); err != nil {
		e.handleNavigationError(ctx, t, url, err)
		return false
	}
	if e.observer != nil {
		e.observer.PageVisited()
	}

	found, err := e.driver.HasMarker(ctx, e.marker)
	if err != nil {
		if ctx.Err() == nil {
			t.log.Errorf("marker probe failed for %s: %v", url, err)
		}
		return false
	}
	if found {
		return true
	}

	links, err := e.driver.Links(ctx)
	if err != nil {
		if ctx.Err() == nil {
			t.log.Errorf("link probe failed for %s: %v", url, err)
		}
		return false
	}

	return e.visitHelper(ctx, t, links, depth, false)
}

func (e *Engine) handleNavigationError(ctx context.Context, t *traversal, url string, err error) {
	if ctx.Err() != nil {
		return
	}

	kind := driver.Classify(err)
	if e.observer != nil {
		e.observer.NavigationFailed(kind)
	}

	switch kind {
	case driver.KindNameNotResolved:
		t.log.Infof("site does not exist: %s", url)
	case driver.KindNameResolutionFailed:
		t.log.Infof("could not resolve address for site: %s", url)
	case driver.KindAborted:
		// Download links end up here
	default:
		t.log.Errorf("navigation failed for %s: %v", url, err)
	}
}
