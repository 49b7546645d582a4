// Package sink appends site results to the shared result log.
//
// Each worker gets its own append handle. A handle stays open while any task
// of its worker is in flight and is closed when the last reference is released.
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/alvmarrod/marker-scout/internal/storage"
	"github.com/sirupsen/logrus"
)

// OpenFunc opens the result log for appending
type OpenFunc func(path string) (io.WriteCloser, error)

// OpenAppend opens path in append mode, creating it if needed
func OpenAppend(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// Registry hands out per-worker handles on one result log
type Registry struct {
	mu      sync.Mutex
	path    string
	open    OpenFunc
	handles map[int]*Handle
	opened  int
}

// Handle is one worker's open append stream
type Handle struct {
	registry *Registry
	worker   int

	// refs and writer are guarded by registry.mu
	refs   int
	writer io.WriteCloser

	writeMu sync.Mutex
}

// NewRegistry creates a registry for the log at path. open may be nil.
func NewRegistry(path string, open OpenFunc) *Registry {
	if open == nil {
		open = OpenAppend
	}
	return &Registry{
		path:    path,
		open:    open,
		handles: make(map[int]*Handle),
	}
}

// Acquire takes a reference on worker's handle, opening the log if the worker
// holds no reference yet
func (r *Registry) Acquire(worker int) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[worker]
	if ok {
		h.refs++
		return h, nil
	}

	w, err := r.open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result log for worker %d: %w", worker, err)
	}
	r.opened++

	h = &Handle{registry: r, worker: worker, refs: 1, writer: w}
	r.handles[worker] = h

	logrus.Debugf("worker %d opened result log %s (open #%d)", worker, r.path, r.opened)
	return h, nil
}

// Append writes one result record. The record goes out in a single write so
// lines from different handles never interleave.
func (h *Handle) Append(result storage.SiteResult) error {
	record := []byte(result.Record() + "\r\n")

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if _, err := h.writer.Write(record); err != nil {
		return fmt.Errorf("failed to append result for %s: %w", result.Site, err)
	}
	return nil
}

// Release drops one reference, closing the handle when none remain
func (h *Handle) Release() error {
	r := h.registry

	r.mu.Lock()
	h.refs--
	if h.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	if h.refs < 0 {
		r.mu.Unlock()
		return fmt.Errorf("result log handle for worker %d released too many times", h.worker)
	}
	delete(r.handles, h.worker)
	r.mu.Unlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if err := h.writer.Close(); err != nil {
		return fmt.Errorf("failed to close result log for worker %d: %w", h.worker, err)
	}
	logrus.Debugf("worker %d closed result log", h.worker)
	return nil
}
