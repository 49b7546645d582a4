package driver

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// Resource types aborted before they load
var blockedResourceTypes = map[network.ResourceType]bool{
	network.ResourceTypeImage: true,
	network.ResourceTypeFont:  true,
	network.ResourceTypeMedia: true,
}

const linksScript = `Array.from(document.getElementsByTagName('a'))
	.filter(a => a.hostname == location.hostname)
	.map(a => ({ href: a.href, pathname: a.pathname, search: a.search, text: (a.innerText || '').trim() }))`

// ChromedpDriver drives one headless Chrome tab
type ChromedpDriver struct {
	opts        Options
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

// NewChromedpDriver starts a browser and a single tab with request
// interception enabled. ctx bounds the browser's lifetime.
func NewChromedpDriver(ctx context.Context, opts Options) (*ChromedpDriver, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(selectUserAgent(opts.UserAgent)),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go interceptRequest(tabCtx, paused)
	})

	// The first Run launches the browser
	if err := chromedp.Run(tabCtx, fetch.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &ChromedpDriver{
		opts:        opts,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}, nil
}

func interceptRequest(tabCtx context.Context, ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(tabCtx, c.Target)

	var err error
	if blockedResourceTypes[ev.ResourceType] {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	} else {
		err = fetch.ContinueRequest(ev.RequestID).Do(execCtx)
	}
	if err != nil && tabCtx.Err() == nil {
		logrus.Debugf("Request interception failed for %s: %v", ev.Request.URL, err)
	}
}

// run executes actions on the tab, bounded by the navigation timeout and ctx
func (d *ChromedpDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(d.tabCtx, d.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads rawURL in the tab
func (d *ChromedpDriver) Navigate(ctx context.Context, rawURL string) error {
	if err := d.opts.Throttle.Wait(ctx, rawURL); err != nil {
		return NewNavigationError(rawURL, err)
	}
	if err := d.run(ctx, chromedp.Navigate(rawURL)); err != nil {
		return NewNavigationError(rawURL, err)
	}
	return nil
}

// HasMarker evaluates the marker probe against the rendered document
func (d *ChromedpDriver) HasMarker(ctx context.Context, marker string) (bool, error) {
	expr := fmt.Sprintf(`document.getElementsByTagName('html')[0].innerHTML.includes(%s)`, strconv.Quote(marker))

	var found bool
	if err := d.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return false, fmt.Errorf("marker probe failed: %w", err)
	}
	return found, nil
}

// Links evaluates the same-host anchor probe
func (d *ChromedpDriver) Links(ctx context.Context) ([]Link, error) {
	var links []Link
	if err := d.run(ctx, chromedp.Evaluate(linksScript, &links)); err != nil {
		return nil, fmt.Errorf("link probe failed: %w", err)
	}
	return links, nil
}

// Close shuts the tab and the browser down
func (d *ChromedpDriver) Close() error {
	d.tabCancel()
	d.allocCancel()
	return nil
}
