package driver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/gocolly/colly/v2"
)

// ErrorKind classifies navigation failures
type ErrorKind int

const (
	// KindOther is any failure not covered below
	KindOther ErrorKind = iota
	// KindNameNotResolved means the host does not exist
	KindNameNotResolved
	// KindNameResolutionFailed means the resolver could not answer
	KindNameResolutionFailed
	// KindAborted means the request was cancelled, usually a download link
	KindAborted
)

func (k ErrorKind) String() string {
	switch k {
	case KindNameNotResolved:
		return "name_not_resolved"
	case KindNameResolutionFailed:
		return "name_resolution_failed"
	case KindAborted:
		return "aborted"
	default:
		return "other"
	}
}

// NavigationError is returned by PageDriver.Navigate
type NavigationError struct {
	URL  string
	Kind ErrorKind
	Err  error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// NewNavigationError wraps err with its classification
func NewNavigationError(url string, err error) *NavigationError {
	return &NavigationError{URL: url, Kind: Classify(err), Err: err}
}

// Chrome network error codes surfaced in navigation errors
const (
	chromeNameNotResolved      = "net::ERR_NAME_NOT_RESOLVED"
	chromeNameResolutionFailed = "net::ERR_NAME_RESOLUTION_FAILED"
	chromeAborted              = "net::ERR_ABORTED"
	chromeBlockedByClient      = "net::ERR_BLOCKED_BY_CLIENT"
)

// Classify maps an error from either driver to an ErrorKind
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}

	var navErr *NavigationError
	if errors.As(err, &navErr) {
		return navErr.Kind
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return KindNameNotResolved
		}
		return KindNameResolutionFailed
	}

	if errors.Is(err, colly.ErrAbortedAfterHeaders) || errors.Is(err, context.Canceled) {
		return KindAborted
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, chromeNameNotResolved):
		return KindNameNotResolved
	case strings.Contains(msg, chromeNameResolutionFailed):
		return KindNameResolutionFailed
	case strings.Contains(msg, chromeAborted), strings.Contains(msg, chromeBlockedByClient):
		return KindAborted
	}
	return KindOther
}
