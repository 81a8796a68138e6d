package crawler

import "sync"

// frontier is the FIFO work queue plus the visited set. A URL is marked
// visited when it is enqueued, so each normalized URL yields at most one
// CrawlTarget per crawl. All methods are safe for concurrent use; Push is an
// atomic check-and-insert across the goroutines of a batch.
type frontier struct {
	mu      sync.Mutex
	queue   []CrawlTarget
	visited map[string]struct{}
	order   []string
}

func newFrontier() *frontier {
	return &frontier{
		visited: make(map[string]struct{}),
	}
}

// Push marks url visited and appends it at depth. It returns false when the
// URL was already visited.
func (f *frontier) Push(url string, depth int) bool {
	if url == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, seen := f.visited[url]; seen {
		return false
	}
	f.visited[url] = struct{}{}
	f.order = append(f.order, url)
	f.queue = append(f.queue, CrawlTarget{URL: url, Depth: depth})
	return true
}

// NextBatch removes up to n targets from the front of the queue.
func (f *frontier) NextBatch(n int) []CrawlTarget {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= 0 || len(f.queue) == 0 {
		return nil
	}
	if n > len(f.queue) {
		n = len(f.queue)
	}
	batch := make([]CrawlTarget, n)
	copy(batch, f.queue[:n])
	f.queue = f.queue[n:]
	return batch
}

// Len returns the number of queued targets.
func (f *frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Seen reports whether url was ever enqueued.
func (f *frontier) Seen(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[url]
	return ok
}

// Visited returns every enqueued URL in enqueue order.
func (f *frontier) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}
