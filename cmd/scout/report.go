package main

import (
	"fmt"

	"github.com/alvmarrod/marker-scout/internal/storage"
	"github.com/sirupsen/logrus"
)

// runHistory reads back a recorded run. *storage.Storage implements it.
type runHistory interface {
	GetRun(runID string) (*storage.Run, error)
	ListRunResults(runID string) ([]*storage.SiteRecord, error)
}

// reportRun logs the stored summary of a run and the traversal stats of
// every site it decided
func reportRun(history runHistory, runID string, log *logrus.Entry) error {
	run, err := history.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	records, err := history.ListRunResults(runID)
	if err != nil {
		return err
	}

	for _, r := range records {
		log.WithFields(logrus.Fields{
			"site":          r.Site,
			"found":         r.TargetFound,
			"pages_visited": r.PagesVisited,
			"links_skipped": r.LinksSkipped,
			"duration_ms":   r.DurationMs,
		}).Info("Site report")
	}

	log.WithField("run", run.RunID).Infof("Run %s: %d/%d sites found the target, %d recorded",
		run.TerminationReason, run.SitesFound, run.SitesTotal, len(records))
	return nil
}
