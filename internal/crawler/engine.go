package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/a11ycrawl/internal/metrics"
	"github.com/JakeFAU/a11ycrawl/internal/progress"
)

// Options configures one crawl.
type Options struct {
	StartURL    string
	MaxDepth    int
	Concurrency int
	// Timeout bounds each page analysis and each link-discovery render.
	Timeout    time.Duration
	Analyze    AnalyzeOptions
	Exclusions []string
}

// Defaults applied by NewEngine to zero-valued Options fields.
const (
	DefaultMaxDepth    = 3
	DefaultConcurrency = 3
	DefaultTimeout     = 30 * time.Second
	DefaultStandard    = "WCAG2AA"
)

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithRobotsPolicy admits discovered links only when policy allows them.
func WithRobotsPolicy(policy RobotsPolicy) EngineOption {
	return func(e *Engine) {
		if policy != nil {
			e.robots = policy
		}
	}
}

// WithEmitter publishes progress events for the crawl.
func WithEmitter(emitter progress.Emitter) EngineOption {
	return func(e *Engine) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithCrawlID overrides the generated crawl identifier.
func WithCrawlID(id uuid.UUID) EngineOption {
	return func(e *Engine) {
		e.crawlID = id
	}
}

// Engine performs a breadth-first crawl of a single origin. Targets are
// dispatched in batches of at most Concurrency; the engine waits for a whole
// batch before dequeuing the next one. An Engine runs once.
type Engine struct {
	opts      Options
	analyzer  Analyzer
	renderer  Renderer
	extractor LinkExtractor
	recorder  Recorder
	robots    RobotsPolicy
	emitter   progress.Emitter
	filter    *Filter
	frontier  *frontier
	logger    *zap.Logger
	crawlID   uuid.UUID
	startURL  string

	state atomic.Int32

	pagesAnalyzed  atomic.Int64
	pagesFailed    atomic.Int64
	pagesSkipped   atomic.Int64
	renderFailures atomic.Int64
	linksEnqueued  atomic.Int64
	linksExcluded  atomic.Int64
	batches        atomic.Int64
}

// NewEngine validates opts and wires the crawl collaborators. An invalid
// start URL is rejected before any crawling happens.
func NewEngine(
	opts Options,
	analyzer Analyzer,
	renderer Renderer,
	extractor LinkExtractor,
	recorder Recorder,
	logger *zap.Logger,
	options ...EngineOption,
) (*Engine, error) {
	if analyzer == nil || renderer == nil || extractor == nil || recorder == nil {
		return nil, errors.New("engine requires analyzer, renderer, extractor and recorder")
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Analyze.Timeout <= 0 {
		opts.Analyze.Timeout = opts.Timeout
	}
	if opts.Analyze.Standard == "" {
		opts.Analyze.Standard = DefaultStandard
	}
	start, err := Normalize(opts.StartURL, "")
	if err != nil {
		return nil, fmt.Errorf("invalid start url: %w", err)
	}
	filter, err := NewFilter(start, opts.Exclusions)
	if err != nil {
		return nil, fmt.Errorf("invalid start url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		opts:      opts,
		analyzer:  analyzer,
		renderer:  renderer,
		extractor: extractor,
		recorder:  recorder,
		robots:    allowAll{},
		emitter:   progress.Nop{},
		filter:    filter,
		frontier:  newFrontier(),
		crawlID:   uuid.New(),
		startURL:  start,
	}
	for _, opt := range options {
		opt(e)
	}
	e.logger = logger.Named("engine").With(zap.Stringer("crawl_id", e.crawlID))
	return e, nil
}

// CrawlID identifies this crawl in logs and progress events.
func (e *Engine) CrawlID() uuid.UUID { return e.crawlID }

// StartURL returns the normalized start URL.
func (e *Engine) StartURL() string { return e.startURL }

// State returns the current lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Visited returns every URL admitted to the frontier in admission order.
func (e *Engine) Visited() []string { return e.frontier.Visited() }

// Stats returns a snapshot of the crawl counters.
func (e *Engine) Stats() Stats {
	return Stats{
		PagesAnalyzed:  e.pagesAnalyzed.Load(),
		PagesFailed:    e.pagesFailed.Load(),
		PagesSkipped:   e.pagesSkipped.Load(),
		RenderFailures: e.renderFailures.Load(),
		LinksEnqueued:  e.linksEnqueued.Load(),
		LinksExcluded:  e.linksExcluded.Load(),
		Batches:        e.batches.Load(),
	}
}

// Run crawls until the frontier is exhausted or ctx is cancelled. Per-page
// analysis and render failures are logged and skipped; only a renderer setup
// failure is returned as *SetupError. Cancellation stops dispatch between
// batches and returns ctx's error with the engine in StateDone.
func (e *Engine) Run(ctx context.Context) (err error) {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrEngineUsed
	}
	started := time.Now()
	e.emit(progress.Event{Stage: progress.StageCrawlStart, URL: e.startURL})
	e.logger.Info("crawl started",
		zap.String("start_url", e.startURL),
		zap.Int("max_depth", e.opts.MaxDepth),
		zap.Int("concurrency", e.opts.Concurrency),
	)

	if startErr := e.renderer.Start(ctx); startErr != nil {
		e.state.Store(int32(StateFailed))
		err = &SetupError{Component: "renderer", Cause: startErr}
		e.logger.Error("crawl setup failed", zap.Error(err))
		e.emit(progress.Event{Stage: progress.StageCrawlError, Dur: time.Since(started), Note: err.Error()})
		e.closeRenderer(ctx)
		return err
	}
	defer e.closeRenderer(ctx)

	e.frontier.Push(e.startURL, 0)
	err = e.loop(ctx)
	e.state.Store(int32(StateDone))

	stats := e.Stats()
	e.logger.Info("crawl finished",
		zap.Int64("pages_analyzed", stats.PagesAnalyzed),
		zap.Int64("pages_failed", stats.PagesFailed),
		zap.Int64("render_failures", stats.RenderFailures),
		zap.Int64("links_enqueued", stats.LinksEnqueued),
		zap.Int64("links_excluded", stats.LinksExcluded),
		zap.Duration("elapsed", time.Since(started)),
		zap.Error(err),
	)
	evt := progress.Event{Stage: progress.StageCrawlDone, Pages: stats.PagesAnalyzed, Dur: time.Since(started)}
	if err != nil {
		evt.Note = err.Error()
	}
	e.emit(evt)
	return err
}

func (e *Engine) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl interrupted: %w", err)
		}
		batch := e.frontier.NextBatch(e.opts.Concurrency)
		if len(batch) == 0 {
			return nil
		}
		// Draining while the last queued targets are in flight; their
		// discoveries move the engine back to Running.
		if e.frontier.Len() == 0 {
			e.state.Store(int32(StateDraining))
		} else {
			e.state.Store(int32(StateRunning))
		}
		e.batches.Add(1)
		metrics.ObserveBatch(len(batch))
		e.logger.Debug("dispatching batch", zap.Int("size", len(batch)), zap.Int("depth", batch[0].Depth))

		g, gctx := errgroup.WithContext(ctx)
		for _, target := range batch {
			g.Go(func() error {
				e.visit(gctx, target)
				return nil
			})
		}
		// visit never fails the group; errors are per page.
		_ = g.Wait()
	}
}

func (e *Engine) visit(ctx context.Context, target CrawlTarget) {
	if target.Depth >= e.opts.MaxDepth {
		e.pagesSkipped.Add(1)
		return
	}
	metrics.IncActiveVisits()
	defer metrics.DecActiveVisits()

	logger := e.logger.With(zap.String("url", target.URL), zap.Int("depth", target.Depth))
	started := time.Now()
	result, err := e.analyze(ctx, target)
	if err != nil {
		e.pagesFailed.Add(1)
		ae := asAnalysisError(target.URL, err)
		logger.Warn("page analysis failed", zap.Error(ae))
		e.emit(progress.Event{Stage: progress.StagePageFailed, URL: target.URL, Depth: target.Depth, Note: ae.Error()})
		return
	}
	result.URL = target.URL
	result.Depth = target.Depth
	e.recorder.Record(result)
	e.pagesAnalyzed.Add(1)

	tally := result.Tally()
	e.emit(progress.Event{
		Stage:    progress.StagePageAnalyzed,
		URL:      target.URL,
		Depth:    target.Depth,
		Errors:   tally.Errors,
		Warnings: tally.Warnings,
		Notices:  tally.Notices,
		Dur:      time.Since(started),
	})
	logger.Debug("page analyzed", zap.Int("issues", tally.Total()))

	if target.Depth < e.opts.MaxDepth-1 {
		if err := e.discover(ctx, target, logger); err != nil {
			e.renderFailures.Add(1)
			logger.Warn("link discovery failed", zap.Error(err))
			e.emit(progress.Event{Stage: progress.StageRenderFailed, URL: target.URL, Depth: target.Depth, Note: err.Error()})
		}
	}
}

func (e *Engine) analyze(ctx context.Context, target CrawlTarget) (PageResult, error) {
	actx, cancel := context.WithTimeout(ctx, e.opts.Analyze.Timeout)
	defer cancel()
	return e.analyzer.Analyze(actx, target.URL, e.opts.Analyze)
}

// discover renders target, extracts its links and admits the survivors of
// normalization, filtering and robots checks at depth+1.
func (e *Engine) discover(ctx context.Context, target CrawlTarget, logger *zap.Logger) error {
	rctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	page, err := e.renderer.Render(rctx, target.URL, e.opts.Timeout)
	if err != nil {
		return asRenderError(target.URL, err)
	}
	defer page.Release()

	hrefs, err := e.extractor.ExtractLinks(rctx, page, target.URL)
	if err != nil {
		return asRenderError(target.URL, err)
	}

	var enqueued int
	for _, href := range hrefs {
		normalized, err := Normalize(href, target.URL)
		if err != nil {
			continue
		}
		if reason := e.filter.Reason(normalized); reason != ReasonNone {
			e.linksExcluded.Add(1)
			metrics.ObserveLinkExcluded(string(reason))
			logger.Debug("link excluded", zap.String("link", normalized), zap.String("reason", string(reason)))
			continue
		}
		if e.frontier.Seen(normalized) {
			continue
		}
		if !e.robots.Allowed(ctx, normalized) {
			e.linksExcluded.Add(1)
			metrics.ObserveLinkExcluded("robots")
			logger.Debug("link disallowed by robots.txt", zap.String("link", normalized))
			continue
		}
		if e.frontier.Push(normalized, target.Depth+1) {
			enqueued++
			e.linksEnqueued.Add(1)
			metrics.ObserveLinkEnqueued()
		}
	}
	logger.Debug("links discovered", zap.Int("found", len(hrefs)), zap.Int("enqueued", enqueued))
	return nil
}

func (e *Engine) closeRenderer(ctx context.Context) {
	if err := e.renderer.Close(context.WithoutCancel(ctx)); err != nil {
		e.logger.Warn("renderer close failed", zap.Error(err))
	}
}

func (e *Engine) emit(evt progress.Event) {
	evt.CrawlID = progress.UUIDToBytes(e.crawlID)
	evt.TS = time.Now().UTC()
	e.emitter.Emit(evt)
}
