package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/a11ycrawl/internal/progress"
)

// PrometheusSink exports crawl progress via Prometheus collectors: crawls
// started, completed and running, pages by outcome, issues by severity, and
// analysis latency.
type PrometheusSink struct {
	crawlsStarted   prometheus.Counter
	crawlsCompleted *prometheus.CounterVec
	crawlsRunning   prometheus.Gauge
	crawlRuntime    *prometheus.HistogramVec

	pages        *prometheus.CounterVec
	issues       *prometheus.CounterVec
	pageDuration prometheus.Histogram

	tracker *crawlTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		crawlsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "a11ycrawl_crawls_started_total",
			Help: "Total crawls that have started.",
		}),
		crawlsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a11ycrawl_crawls_completed_total",
			Help: "Total crawls completed partitioned by result.",
		}, []string{"result"}),
		crawlsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "a11ycrawl_crawls_running",
			Help: "Current number of running crawls.",
		}),
		crawlRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a11ycrawl_crawl_runtime_seconds",
			Help:    "Wall time per completed crawl.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"result"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a11ycrawl_pages_total",
			Help: "Pages processed partitioned by outcome.",
		}, []string{"outcome"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a11ycrawl_issues_total",
			Help: "Accessibility issues recorded partitioned by severity.",
		}, []string{"severity"}),
		pageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "a11ycrawl_page_analysis_seconds",
			Help:    "Analysis duration per successfully analyzed page.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		tracker: newCrawlTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.crawlsStarted,
		s.crawlsCompleted,
		s.crawlsRunning,
		s.crawlRuntime,
		s.pages,
		s.issues,
		s.pageDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCrawlStart:
		s.crawlsStarted.Inc()
		if s.tracker.start(evt.CrawlID) {
			s.crawlsRunning.Inc()
		}
	case progress.StageCrawlDone:
		s.finishCrawl(evt, "success")
	case progress.StageCrawlError:
		s.finishCrawl(evt, "error")
	case progress.StagePageAnalyzed:
		s.pages.WithLabelValues("analyzed").Inc()
		s.issues.WithLabelValues("error").Add(float64(evt.Errors))
		s.issues.WithLabelValues("warning").Add(float64(evt.Warnings))
		s.issues.WithLabelValues("notice").Add(float64(evt.Notices))
		if evt.Dur > 0 {
			s.pageDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StagePageFailed:
		s.pages.WithLabelValues("analysis_failed").Inc()
	case progress.StageRenderFailed:
		s.pages.WithLabelValues("render_failed").Inc()
	}
}

func (s *PrometheusSink) finishCrawl(evt progress.Event, result string) {
	s.crawlsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.crawlRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.CrawlID) {
		s.crawlsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type crawlTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newCrawlTracker() *crawlTracker {
	return &crawlTracker{running: make(map[[16]byte]struct{})}
}

func (t *crawlTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *crawlTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
