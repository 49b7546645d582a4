// Package distributor runs a batch of sites across a fixed pool of crawl
// workers and collects their verdicts.
package distributor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alvmarrod/marker-scout/internal/config"
	"github.com/alvmarrod/marker-scout/internal/dedupe"
	"github.com/alvmarrod/marker-scout/internal/metrics"
	"github.com/alvmarrod/marker-scout/internal/sink"
	"github.com/alvmarrod/marker-scout/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Crawler decides one site at a time. Each worker owns one.
type Crawler interface {
	Crawl(ctx context.Context, site string) (storage.SiteResult, storage.TraversalStats)
	Close() error
}

// CrawlerFactory builds the crawler for a worker
type CrawlerFactory func(worker int) (Crawler, error)

// RunStore persists run history. *storage.Storage implements it.
type RunStore interface {
	StartRun(sitesTotal int) (string, error)
	RecordSiteResult(runID string, result storage.SiteResult, stats storage.TraversalStats) error
	FinishRun(runID, reason string) error
}

// Options carries the optional collaborators of a Distributor
type Options struct {
	// Sinks defaults to a registry on cfg.OutputPath
	Sinks *sink.Registry
	// Store may be nil to skip run history
	Store RunStore
	// Tracker defaults to a fresh tracker
	Tracker *metrics.Tracker
	Log     *logrus.Entry
}

// Distributor is the master of one crawl run
type Distributor struct {
	cfg        *config.Config
	newCrawler CrawlerFactory
	sinks      *sink.Registry
	store      RunStore
	tracker    *metrics.Tracker
	log        *logrus.Entry
	runID      string
}

// Termination reasons recorded for a run
const (
	ReasonCompleted   = "completed"
	ReasonInterrupted = "interrupted"
	ReasonFailed      = "failed"
)

// New creates a distributor
func New(cfg *config.Config, newCrawler CrawlerFactory, opts Options) *Distributor {
	d := &Distributor{
		cfg:        cfg,
		newCrawler: newCrawler,
		sinks:      opts.Sinks,
		store:      opts.Store,
		tracker:    opts.Tracker,
		log:        opts.Log,
	}
	if d.sinks == nil {
		d.sinks = sink.NewRegistry(cfg.OutputPath, nil)
	}
	if d.tracker == nil {
		d.tracker = metrics.NewTracker()
	}
	if d.log == nil {
		d.log = logrus.NewEntry(logrus.StandardLogger())
	}
	return d
}

// RunID returns the run history ID of the last Run, empty without a store
func (d *Distributor) RunID() string {
	return d.runID
}

// Tracker returns the metrics tracker of this distributor
func (d *Distributor) Tracker() *metrics.Tracker {
	return d.tracker
}

// Run dedupes allSites against the result log, crawls what is left and
// returns the verdicts chunk-major. Every verdict is already in the result
// log when Run returns, including on error.
func (d *Distributor) Run(ctx context.Context, allSites []string) ([]storage.SiteResult, error) {
	sites, err := dedupe.Dedupe(allSites, d.cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to dedupe sites: %w", err)
	}

	if d.cfg.WriteDeduped {
		if err := dedupe.WriteDeduped(d.cfg.DedupedPath, sites); err != nil {
			return nil, err
		}
	}

	d.tracker.SetSitesTotal(len(sites))
	if len(sites) == 0 {
		d.log.Info("No sites left to crawl")
		return []storage.SiteResult{}, nil
	}

	if d.store != nil {
		d.runID, err = d.store.StartRun(len(sites))
		if err != nil {
			return nil, fmt.Errorf("failed to start run: %w", err)
		}
	}

	workers := d.cfg.Workers
	chunks := Partition(sites, workers)
	queue := NewWorkQueue(chunks)

	// slots[chunk][index] is written only by the worker that took that task
	slots := make([][]*storage.SiteResult, len(chunks))
	for c, chunk := range chunks {
		slots[c] = make([]*storage.SiteResult, len(chunk))
	}

	d.log.Infof("Crawling %d sites with %d workers", len(sites), workers)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, queue.Stop)
	defer stop()

	for w, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		g.Go(func() error {
			return d.worker(gctx, w, queue, slots)
		})
	}
	runErr := g.Wait()

	results := make([]storage.SiteResult, 0, len(sites))
	for _, chunk := range slots {
		for _, r := range chunk {
			if r != nil {
				results = append(results, *r)
			}
		}
	}

	if pending := queue.Pending(); len(pending) > 0 {
		d.log.WithField("sites", pending).
			Warnf("%d sites left uncrawled, the next run retries them", len(pending))
	}

	d.finishRun(runErr)
	return results, runErr
}

// TerminationReason names how a run that returned runErr ended
func TerminationReason(runErr error) string {
	switch {
	case runErr == nil:
		return ReasonCompleted
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		return ReasonInterrupted
	default:
		return ReasonFailed
	}
}

func (d *Distributor) finishRun(runErr error) {
	if d.store == nil {
		return
	}

	if err := d.store.FinishRun(d.runID, TerminationReason(runErr)); err != nil {
		d.log.Errorf("Failed to finish run %s: %v", d.runID, err)
	}
}

// worker drains its own chunk in order, then steals while the pool is
// rebalancing
func (d *Distributor) worker(ctx context.Context, id int, queue *WorkQueue, slots [][]*storage.SiteResult) error {
	log := d.log.WithField("worker", id)

	crawler, err := d.newCrawler(id)
	if err != nil {
		return fmt.Errorf("failed to create crawler for worker %d: %w", id, err)
	}
	defer func() {
		if err := crawler.Close(); err != nil {
			log.Warnf("Failed to close crawler: %v", err)
		}
	}()

	// Held for the worker's lifetime so the log is opened once per worker
	handle, err := d.sinks.Acquire(id)
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Release(); err != nil {
			log.Errorf("%v", err)
		}
	}()

	processed := 0
	for {
		t, ok := queue.Pop(id)
		if !ok {
			break
		}
		if err := d.process(ctx, log, id, crawler, t, slots); err != nil {
			return err
		}
		processed++
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stealing, triggered := queue.ChunkDone(processed, d.cfg.RebalanceThreshold, d.cfg.Workers)
	if triggered {
		log.Infof("rebalancing pool after %d sites, %d pending", processed, queue.Size())
		d.tracker.Rebalanced()
	}
	if !stealing {
		log.Debugf("Chunk done after %d sites", processed)
		return nil
	}

	for {
		t, ok := queue.Steal()
		if !ok {
			break
		}
		log.Debugf("Took %s from chunk %d", t.Site, t.Chunk)
		if err := d.process(ctx, log, id, crawler, t, slots); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// process crawls one site and records the verdict. Errors are fatal to the
// run.
func (d *Distributor) process(ctx context.Context, log *logrus.Entry, id int, crawler Crawler, t task, slots [][]*storage.SiteResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// One reference per in-flight task
	handle, err := d.sinks.Acquire(id)
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Release(); err != nil {
			log.Errorf("%v", err)
		}
	}()

	result, stats := crawler.Crawl(ctx, t.Site)

	// A cancelled traversal has no verdict
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := handle.Append(result); err != nil {
		return err
	}
	slots[t.Chunk][t.Index] = &result

	if d.store != nil {
		if err := d.store.RecordSiteResult(d.runID, result, stats); err != nil {
			return fmt.Errorf("failed to record %s: %w", t.Site, err)
		}
	}

	d.tracker.SiteCompleted(result, stats)
	log.WithField("site", t.Site).Infof("Site done in %s. %s",
		stats.Duration.Round(time.Millisecond), d.tracker.LogProgress())

	return nil
}
