package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alvmarrod/marker-scout/internal/config"
	"github.com/alvmarrod/marker-scout/internal/crawler"
	"github.com/alvmarrod/marker-scout/internal/dedupe"
	"github.com/alvmarrod/marker-scout/internal/distributor"
	"github.com/alvmarrod/marker-scout/internal/driver"
	"github.com/alvmarrod/marker-scout/internal/metrics"
	"github.com/alvmarrod/marker-scout/internal/storage"
	"github.com/alvmarrod/marker-scout/internal/version"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	// Configure logging
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := setupLogging(cfg)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	logrus.Infof("Marker Scout v%s starting...", version.Version)
	logrus.Infof("Configuration loaded: input=%s, output=%s, workers=%d, depth=%d, driver=%s, filter=%s",
		cfg.InputPath, cfg.OutputPath, cfg.Workers, cfg.MaxDepth, cfg.Driver, cfg.FilterMode)

	sites, err := dedupe.ReadSites(cfg.InputPath)
	if err != nil {
		logrus.Fatalf("Failed to read input list: %v", err)
	}
	logrus.Infof("Loaded %d candidate sites from %s", len(sites), cfg.InputPath)

	// Initialize storage
	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}

	logrus.Infof("Database initialized: %s", cfg.DBPath)

	// Initialize metrics tracker
	tracker := metrics.NewTracker()

	// First signal cancels the run, completed sites are already logged
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Handle force quit on second signal
	go func() {
		<-ctx.Done()
		forceQuitChan := make(chan os.Signal, 1)
		signal.Notify(forceQuitChan, os.Interrupt, syscall.SIGTERM)
		sig := <-forceQuitChan
		logrus.Warnf("Received second signal (%v) - forcing immediate exit!", sig)

		// Emergency metrics save
		if err := tracker.WriteToFile(cfg.MetricsPath, "forced_exit"); err != nil {
			logrus.Errorf("Emergency metrics save failed: %v", err)
		}
		os.Exit(1)
	}()

	// Start progress logger
	var wg sync.WaitGroup
	stopProgress := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logrus.Info(tracker.LogProgress())
			case <-stopProgress:
				return
			}
		}
	}()

	throttle := driver.NewHostThrottle(cfg.HostRequestsPerSec, cfg.HostBurst)
	d := distributor.New(cfg, newCrawlerFactory(ctx, cfg, throttle, tracker), distributor.Options{
		Store:   store,
		Tracker: tracker,
	})

	results, runErr := d.Run(ctx, sites)

	close(stopProgress)
	wg.Wait()

	terminationReason := distributor.TerminationReason(runErr)
	if terminationReason == distributor.ReasonInterrupted {
		logrus.Warnf("Run interrupted, completed sites are in the result log (about %s of crawling left)",
			tracker.ETA().Round(time.Second))
	}

	logrus.Info("Step 1/3: Reporting results...")

	for _, r := range results {
		fmt.Println(r.Record())
	}
	if runID := d.RunID(); runID != "" {
		if err := reportRun(store, runID, logrus.WithField("component", "report")); err != nil {
			logrus.Errorf("Failed to report run %s: %v", runID, err)
		}
	}

	logrus.Info("Step 2/3: Writing final metrics...")

	// Final progress log
	logrus.Info("Final stats: " + tracker.LogProgress())

	// Write metrics to file
	if err := tracker.WriteToFile(cfg.MetricsPath, terminationReason); err != nil {
		logrus.Errorf("Failed to write metrics: %v", err)
	} else {
		logrus.Infof("Metrics written to %s", cfg.MetricsPath)
	}

	logrus.Info("Step 3/3: Closing database connection...")

	if err := store.Close(); err != nil {
		logrus.Errorf("Failed to close database: %v", err)
	}

	if terminationReason == distributor.ReasonFailed {
		logrus.Fatalf("Run failed: %v", runErr)
	}

	logrus.Info("Done. Goodbye!")
}

// setupLogging tees log output to stdout and the configured log file
func setupLogging(cfg *config.Config) (*os.File, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)

	logFile, err := os.OpenFile(cfg.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, logFile))

	return logFile, nil
}

// newCrawlerFactory builds one crawl engine with its own page driver per
// worker. Every driver shares the host throttle.
func newCrawlerFactory(ctx context.Context, cfg *config.Config, throttle *driver.HostThrottle, observer crawler.Observer) distributor.CrawlerFactory {
	opts := driver.Options{
		Timeout:         time.Duration(cfg.NavigationTimeoutMs) * time.Millisecond,
		UserAgent:       cfg.UserAgent,
		DisableHeadless: cfg.DisableHeadless,
		Throttle:        throttle,
	}

	return func(worker int) (distributor.Crawler, error) {
		var pd driver.PageDriver
		switch cfg.Driver {
		case config.DriverColly:
			pd = driver.NewCollyDriver(opts)
		default:
			cd, err := driver.NewChromedpDriver(ctx, opts)
			if err != nil {
				return nil, err
			}
			pd = cd
		}

		log := logrus.WithField("worker", worker)
		log.Debugf("Started %s page driver", cfg.Driver)

		return crawler.NewEngine(pd, cfg, log, observer), nil
	}
}
