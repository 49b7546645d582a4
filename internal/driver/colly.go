package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// Options configures both page drivers
type Options struct {
	Timeout         time.Duration
	UserAgent       string
	DisableHeadless bool
	Throttle        *HostThrottle
}

// CollyDriver loads pages over plain HTTP with colly and evaluates probes
// against the static HTML. Scripts are not executed.
type CollyDriver struct {
	opts      Options
	collector *colly.Collector
	pageURL   *url.URL
	doc       *goquery.Document
}

// NewCollyDriver creates a static HTML page driver
func NewCollyDriver(opts Options) *CollyDriver {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxDepth(0), // Managed by the crawl engine
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(selectUserAgent(opts.UserAgent)),
	)
	collector.SetRequestTimeout(opts.Timeout)

	return &CollyDriver{
		opts:      opts,
		collector: collector,
	}
}

// Navigate fetches rawURL and keeps the parsed document for the probes
func (d *CollyDriver) Navigate(ctx context.Context, rawURL string) error {
	d.pageURL = nil
	d.doc = nil

	if err := d.opts.Throttle.Wait(ctx, rawURL); err != nil {
		return NewNavigationError(rawURL, err)
	}

	// Callbacks are per navigation, the clone shares the HTTP backend
	c := d.collector.Clone()
	c.Context = ctx

	var response *colly.Response
	c.OnResponseHeaders(func(r *colly.Response) {
		if !isHTML(r.Headers.Get("Content-Type")) {
			r.Request.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		response = r
	})

	if err := c.Visit(rawURL); err != nil {
		return NewNavigationError(rawURL, err)
	}
	if response == nil {
		return NewNavigationError(rawURL, errors.New("no response received"))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(response.Body))
	if err != nil {
		return NewNavigationError(rawURL, fmt.Errorf("failed to parse document: %w", err))
	}

	d.pageURL = response.Request.URL
	d.doc = doc
	return nil
}

// HasMarker reports whether the document's inner HTML contains marker
func (d *CollyDriver) HasMarker(_ context.Context, marker string) (bool, error) {
	if d.doc == nil {
		return false, errors.New("no page loaded")
	}

	html, err := d.doc.Find("html").First().Html()
	if err != nil {
		return false, fmt.Errorf("failed to render document: %w", err)
	}
	return strings.Contains(html, marker), nil
}

// Links lists anchors pointing at the loaded page's hostname
func (d *CollyDriver) Links(_ context.Context) ([]Link, error) {
	if d.doc == nil {
		return nil, errors.New("no page loaded")
	}

	var links []Link
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		target, err := d.pageURL.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if !strings.EqualFold(target.Hostname(), d.pageURL.Hostname()) {
			return
		}
		links = append(links, linkFromURL(target, strings.TrimSpace(s.Text())))
	})
	return links, nil
}

// Close drops the loaded document
func (d *CollyDriver) Close() error {
	d.doc = nil
	return nil
}

// linkFromURL splits u the way a browser exposes anchor properties
func linkFromURL(u *url.URL, text string) Link {
	pathname := u.EscapedPath()
	if pathname == "" {
		pathname = "/"
	}
	search := ""
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}
	return Link{
		Href:     u.String(),
		Pathname: pathname,
		Search:   search,
		Text:     text,
	}
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "html") || strings.Contains(contentType, "xml")
}

func selectUserAgent(base string) string {
	if strings.TrimSpace(base) != "" {
		return base
	}
	return "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"
}
