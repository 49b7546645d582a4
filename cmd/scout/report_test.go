package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/alvmarrod/marker-scout/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportRun(t *testing.T) {
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "scout.db"))
	require.NoError(t, err)
	defer store.Close()

	runID, err := store.StartRun(2)
	require.NoError(t, err)
	require.NoError(t, store.RecordSiteResult(runID,
		storage.SiteResult{Site: "https://a.test", TargetFound: true},
		storage.TraversalStats{Visited: 3, Skipped: 1, Duration: 250 * time.Millisecond}))
	require.NoError(t, store.RecordSiteResult(runID,
		storage.SiteResult{Site: "https://b.test"},
		storage.TraversalStats{Visited: 1, Duration: 40 * time.Millisecond}))
	require.NoError(t, store.FinishRun(runID, "completed"))

	logger, hook := test.NewNullLogger()
	require.NoError(t, reportRun(store, runID, logrus.NewEntry(logger)))

	entries := hook.AllEntries()
	require.Len(t, entries, 3)

	assert.Equal(t, "https://a.test", entries[0].Data["site"])
	assert.Equal(t, true, entries[0].Data["found"])
	assert.Equal(t, 3, entries[0].Data["pages_visited"])
	assert.Equal(t, 1, entries[0].Data["links_skipped"])
	assert.Equal(t, int64(250), entries[0].Data["duration_ms"])
	assert.Equal(t, "https://b.test", entries[1].Data["site"])

	assert.Equal(t, runID, entries[2].Data["run"])
	assert.Equal(t, "Run completed: 1/2 sites found the target, 2 recorded", entries[2].Message)
}

func TestReportRun_UnknownRun(t *testing.T) {
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "scout.db"))
	require.NoError(t, err)
	defer store.Close()

	logger, hook := test.NewNullLogger()
	assert.ErrorContains(t, reportRun(store, "missing", logrus.NewEntry(logger)), "not found")
	assert.Empty(t, hook.AllEntries())
}
