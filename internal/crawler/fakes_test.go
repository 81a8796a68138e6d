package crawler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/a11ycrawl/internal/issues"
)

// site maps a normalized page URL to the raw hrefs found on it.
type site map[string][]string

type fakeAnalyzer struct {
	mu       sync.Mutex
	calls    []CrawlTarget
	issues   map[string][]issues.Issue
	hang     map[string]bool
	fail     map[string]error
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		issues: make(map[string][]issues.Issue),
		hang:   make(map[string]bool),
		fail:   make(map[string]error),
	}
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, rawURL string, _ AnalyzeOptions) (PageResult, error) {
	n := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	for {
		prev := a.maxSeen.Load()
		if n <= prev || a.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}

	a.mu.Lock()
	a.calls = append(a.calls, CrawlTarget{URL: rawURL})
	hang := a.hang[rawURL]
	failErr := a.fail[rawURL]
	found := a.issues[rawURL]
	a.mu.Unlock()

	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if hang {
		<-ctx.Done()
		return PageResult{}, &AnalysisError{URL: rawURL, Cause: ctx.Err()}
	}
	if failErr != nil {
		return PageResult{}, failErr
	}
	return PageResult{Title: "title of " + rawURL, Issues: found}, nil
}

func (a *fakeAnalyzer) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.calls))
	for _, c := range a.calls {
		out = append(out, c.URL)
	}
	return out
}

type fakePage struct {
	url      string
	released *atomic.Int32
}

func (p *fakePage) URL() string { return p.url }
func (p *fakePage) HTML(context.Context) (string, error) { return "<html></html>", nil }
func (p *fakePage) Release() { p.released.Add(1) }

type fakeRenderer struct {
	started  atomic.Bool
	closed   atomic.Int32
	renders  atomic.Int32
	released atomic.Int32
	failOn   map[string]bool
}

func (r *fakeRenderer) Start(context.Context) error {
	r.started.Store(true)
	return nil
}

func (r *fakeRenderer) Render(_ context.Context, rawURL string, _ time.Duration) (RenderedPage, error) {
	if !r.started.Load() {
		return nil, ErrRendererNotStarted
	}
	if r.failOn[rawURL] {
		return nil, errors.New("navigation failed")
	}
	r.renders.Add(1)
	return &fakePage{url: rawURL, released: &r.released}, nil
}

func (r *fakeRenderer) Close(context.Context) error {
	r.closed.Add(1)
	return nil
}

type fakeExtractor struct {
	site    site
	failOn  map[string]bool
	visited sync.Map
}

func (x *fakeExtractor) ExtractLinks(_ context.Context, page RenderedPage, _ string) ([]string, error) {
	x.visited.Store(page.URL(), true)
	if x.failOn[page.URL()] {
		return nil, errors.New("dom detached")
	}
	return x.site[page.URL()], nil
}

type memRecorder struct {
	mu      sync.Mutex
	results []PageResult
}

func (m *memRecorder) Record(r PageResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
}

func (m *memRecorder) Results() []PageResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PageResult(nil), m.results...)
}

func (m *memRecorder) URLs() []string {
	var out []string
	for _, r := range m.Results() {
		out = append(out, r.URL)
	}
	return out
}

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockRenderer) Render(ctx context.Context, rawURL string, timeout time.Duration) (RenderedPage, error) {
	args := m.Called(ctx, rawURL, timeout)
	page, _ := args.Get(0).(RenderedPage)
	return page, args.Error(1)
}

func (m *mockRenderer) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockRobots struct {
	mock.Mock
}

func (m *mockRobots) Allowed(ctx context.Context, rawURL string) bool {
	return m.Called(ctx, rawURL).Bool(0)
}
