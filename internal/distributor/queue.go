package distributor

import (
	"sync"
)

// task is one site with its position in the original partition
type task struct {
	Chunk int
	Index int
	Site  string
}

// WorkQueue holds the pending sites of every chunk. Each worker pops from
// the head of its own chunk. Once stealing is enabled, idle workers take
// from the tail of the longest chunk so every chunk's head keeps its order.
type WorkQueue struct {
	mu       sync.Mutex
	chunks   [][]task
	decided  bool
	stealing bool
	stopped  bool
}

// NewWorkQueue creates a queue over the given chunks
func NewWorkQueue(chunks [][]string) *WorkQueue {
	q := &WorkQueue{
		chunks: make([][]task, len(chunks)),
	}
	for c, chunk := range chunks {
		q.chunks[c] = make([]task, len(chunk))
		for i, site := range chunk {
			q.chunks[c][i] = task{Chunk: c, Index: i, Site: site}
		}
	}
	return q
}

// Pop removes and returns the head of worker's own chunk.
// Returns (task, true) if successful, (empty, false) if the chunk is drained
// or the queue is stopped.
func (q *WorkQueue) Pop(worker int) (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || worker < 0 || worker >= len(q.chunks) {
		return task{}, false
	}

	items := q.chunks[worker]
	if len(items) == 0 {
		return task{}, false
	}

	t := items[0]
	q.chunks[worker] = items[1:]
	return t, true
}

// ChunkDone is called by a worker that drained its own chunk. The first call
// decides whether the pool rebalances: it does when more than one worker runs
// and the first finisher processed more than threshold sites. Later calls
// only report the decision. triggered is true for the call that enabled it.
func (q *WorkQueue) ChunkDone(processed, threshold, workers int) (stealing, triggered bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.decided {
		q.decided = true
		if workers > 1 && processed > threshold {
			q.stealing = true
			triggered = true
		}
	}
	return q.stealing, triggered
}

// Steal removes and returns the tail of the longest remaining chunk.
// Returns false when stealing is off, the queue is stopped or nothing is left.
func (q *WorkQueue) Steal() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || !q.stealing {
		return task{}, false
	}

	longest := -1
	for c, items := range q.chunks {
		if len(items) > 0 && (longest < 0 || len(items) > len(q.chunks[longest])) {
			longest = c
		}
	}
	if longest < 0 {
		return task{}, false
	}

	items := q.chunks[longest]
	t := items[len(items)-1]
	q.chunks[longest] = items[:len(items)-1]
	return t, true
}

// Size returns the number of pending sites across all chunks
func (q *WorkQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, items := range q.chunks {
		n += len(items)
	}
	return n
}

// Stop makes every later Pop and Steal fail. Pending sites stay in place
// for Pending.
func (q *WorkQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
}

// Pending returns a snapshot of the sites not yet handed out, chunk-major
func (q *WorkQueue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var sites []string
	for _, items := range q.chunks {
		for _, t := range items {
			sites = append(sites, t.Site)
		}
	}
	return sites
}
