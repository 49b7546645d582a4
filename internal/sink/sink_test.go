package sink

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alvmarrod/marker-scout/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWriter keeps writes in memory and counts closes
type recordingWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
	closes int
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closes > 0 {
		return 0, errors.New("write on closed handle")
	}
	w.writes++
	return w.buf.Write(p)
}

func (w *recordingWriter) closeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closes
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closes++
	return nil
}

func TestHandle_RefCountAcrossTasks(t *testing.T) {
	var writers []*recordingWriter
	open := func(string) (io.WriteCloser, error) {
		w := &recordingWriter{}
		writers = append(writers, w)
		return w, nil
	}
	r := NewRegistry("output.csv", open)

	// Three tasks of one worker acquire before any of them appends
	handles := make([]*Handle, 3)
	for i := range handles {
		h, err := r.Acquire(0)
		require.NoError(t, err)
		handles[i] = h
	}
	require.Len(t, writers, 1)
	assert.Same(t, handles[0], handles[2])
	assert.Equal(t, 3, r.InFlight(0))

	var appended, done sync.WaitGroup
	release := make(chan struct{})
	sites := []string{"https://a.test", "https://b.test", "https://c.test"}
	for i, h := range handles {
		appended.Add(1)
		done.Add(1)
		go func(h *Handle, site string) {
			defer done.Done()
			assert.NoError(t, h.Append(storage.SiteResult{Site: site, TargetFound: site == "https://b.test"}))
			appended.Done()
			<-release
			assert.NoError(t, h.Release())
		}(h, sites[i])
	}

	w := writers[0]
	appended.Wait()
	assert.Equal(t, 0, w.closeCount())

	close(release)
	done.Wait()

	assert.Equal(t, 3, w.writes)
	assert.Equal(t, 1, w.closeCount())
	assert.Equal(t, 0, r.InFlight(0))
	assert.Equal(t, 1, r.Opened())

	lines := strings.Split(strings.TrimSuffix(w.buf.String(), "\r\n"), "\r\n")
	assert.ElementsMatch(t, []string{
		"https://a.test,false",
		"https://b.test,true",
		"https://c.test,false",
	}, lines)
}

func TestHandle_StaysOpenUntilLastRelease(t *testing.T) {
	w := &recordingWriter{}
	r := NewRegistry("output.csv", func(string) (io.WriteCloser, error) { return w, nil })

	first, err := r.Acquire(1)
	require.NoError(t, err)
	second, err := r.Acquire(1)
	require.NoError(t, err)

	require.NoError(t, first.Release())
	assert.Equal(t, 0, w.closeCount())
	require.NoError(t, second.Append(storage.SiteResult{Site: "https://a.test"}))

	require.NoError(t, second.Release())
	assert.Equal(t, 1, w.closeCount())
	assert.Error(t, second.Release())
}

func TestRegistry_HandlesArePerWorker(t *testing.T) {
	r := NewRegistry("output.csv", func(string) (io.WriteCloser, error) { return &recordingWriter{}, nil })

	a, err := r.Acquire(0)
	require.NoError(t, err)
	b, err := r.Acquire(1)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, r.Opened())
	require.NoError(t, a.Release())
	assert.Equal(t, 1, r.InFlight(1))
	require.NoError(t, b.Release())
}

func TestRegistry_OpenError(t *testing.T) {
	r := NewRegistry("output.csv", func(string) (io.WriteCloser, error) {
		return nil, errors.New("read-only file system")
	})

	_, err := r.Acquire(0)
	assert.ErrorContains(t, err, "read-only file system")
	assert.Equal(t, 0, r.InFlight(0))
}

func TestRegistry_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	require.NoError(t, os.WriteFile(path, []byte("https://old.test,false\r\n"), 0o644))

	r := NewRegistry(path, nil)
	var wg sync.WaitGroup
	for worker := range 4 {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			h, err := r.Acquire(worker)
			if !assert.NoError(t, err) {
				return
			}
			defer h.Release()
			for i := range 25 {
				site := "https://w" + string(rune('a'+worker)) + ".test/" + string(rune('a'+i))
				assert.NoError(t, h.Append(storage.SiteResult{Site: site, TargetFound: true}))
			}
		}(worker)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\r\n"), "\r\n")
	require.Len(t, lines, 101)
	assert.Equal(t, "https://old.test,false", lines[0])
	for _, line := range lines[1:] {
		assert.Regexp(t, `^https://w[a-d]\.test/[a-y],true$`, line)
	}
}
