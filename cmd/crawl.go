package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/a11ycrawl/internal/analyzer"
	"github.com/JakeFAU/a11ycrawl/internal/browser"
	"github.com/JakeFAU/a11ycrawl/internal/config"
	"github.com/JakeFAU/a11ycrawl/internal/crawler"
	"github.com/JakeFAU/a11ycrawl/internal/logging"
	"github.com/JakeFAU/a11ycrawl/internal/metrics"
	"github.com/JakeFAU/a11ycrawl/internal/policy/ratelimit"
	"github.com/JakeFAU/a11ycrawl/internal/progress"
	"github.com/JakeFAU/a11ycrawl/internal/progress/sinks"
	"github.com/JakeFAU/a11ycrawl/internal/render"
	"github.com/JakeFAU/a11ycrawl/internal/report"
	"github.com/JakeFAU/a11ycrawl/internal/storage/local"
)

const shutdownTimeout = 5 * time.Second

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <start-url>",
		Short: "Crawl a site and write an accessibility report",
		Long: `Crawls every same-origin page reachable from start-url up to --max-depth
pages deep, analyzes each one, and writes summary.json, summary.md, pages.json
and per-page reports into --output.`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCommand,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, args[0], crawlDeps{
		logger:   logger,
		registry: prometheus.DefaultRegisterer,
		out:      cmd.OutOrStdout(),
	})
}

type crawlDeps struct {
	logger   *zap.Logger
	registry prometheus.Registerer
	out      io.Writer
}

// pipeline is the set of collaborators handed to the engine.
type pipeline struct {
	renderer  crawler.Renderer
	analyzer  crawler.Analyzer
	extractor crawler.LinkExtractor
}

func buildPipeline(cfg config.Config, logger *zap.Logger) (pipeline, error) {
	limiter := ratelimit.New(cfg.RateLimit())

	var (
		p      pipeline
		chrome *browser.Browser
	)
	switch cfg.Render.Mode {
	case config.RendererChromedp:
		b, err := browser.New(cfg.BrowserConfig(), logger)
		if err != nil {
			return pipeline{}, &crawler.SetupError{Component: "browser", Cause: err}
		}
		chrome = b
		p.renderer = render.NewChromedpRenderer(chrome, limiter, cfg.Wait(), logger)
		p.extractor = render.DOMLinkExtractor{}
	case config.RendererHTTP:
		p.renderer = render.NewHTTPRenderer(cfg.HTTPConfig(), limiter, logger)
		p.extractor = render.HTMLLinkExtractor{}
	default:
		return pipeline{}, fmt.Errorf("unknown renderer %q", cfg.Render.Mode)
	}

	switch cfg.Analyzer.Mode {
	case config.AnalyzerRunner:
		if chrome == nil {
			return pipeline{}, errors.New("runner analyzer requires the chromedp renderer")
		}
		runner, err := analyzer.LoadRunner(cfg.Analyzer.RunnerScript)
		if err != nil {
			return pipeline{}, &crawler.SetupError{Component: "analyzer", Cause: err}
		}
		p.analyzer = analyzer.NewChromedpAnalyzer(chrome, runner, logger)
	case config.AnalyzerRules:
		p.analyzer = analyzer.NewRuleAnalyzer(p.renderer, logger)
	default:
		return pipeline{}, fmt.Errorf("unknown analyzer %q", cfg.Analyzer.Mode)
	}
	return p, nil
}

// runCrawl crawls startURL and writes the report. Only setup and input
// failures are returned; an interrupted crawl still writes what it has.
func runCrawl(ctx context.Context, cfg config.Config, startURL string, deps crawlDeps) error {
	logger := deps.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := local.New(local.Config{BaseDir: cfg.Report.OutputDir})
	if err != nil {
		return &crawler.SetupError{Component: "report", Cause: err}
	}
	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}

	promSink, err := sinks.NewPrometheusSink(deps.registry)
	if err != nil {
		return &crawler.SetupError{Component: "metrics", Cause: err}
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)

	agg := report.NewAggregator()
	engine, err := crawler.NewEngine(
		cfg.CrawlerOptions(startURL),
		p.analyzer,
		p.renderer,
		p.extractor,
		agg,
		logger,
		crawler.WithEmitter(hub),
		crawler.WithRobotsPolicy(crawler.NewRobotsEnforcer(cfg.Crawl.RespectRobots, cfg.Render.UserAgent, cfg.Timeout(), logger)),
	)
	if err != nil {
		_ = hub.Close(ctx)
		return err
	}

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Serve(cfg.Metrics.Addr, engineStatus(engine), logger)
		if err != nil {
			_ = hub.Close(ctx)
			return &crawler.SetupError{Component: "metrics", Cause: err}
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("metrics server shutdown failed", zap.Error(err))
			}
		}()
	}

	started := time.Now()
	runErr := engine.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := hub.Close(closeCtx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}

	var setupErr *crawler.SetupError
	if errors.As(runErr, &setupErr) {
		return runErr
	}
	if runErr != nil {
		logger.Warn("crawl ended early; writing partial report", zap.Error(runErr))
	}

	summary := agg.Finalize()
	_, err = report.NewWriter(store, logger).Write(context.WithoutCancel(ctx), report.Meta{
		ProjectKey:  cfg.Report.ProjectKey,
		SummaryText: cfg.Report.SummaryText,
		StartURL:    engine.StartURL(),
		Standard:    cfg.Analyzer.Standard,
		CrawlID:     engine.CrawlID().String(),
		StartedAt:   started,
		FinishedAt:  time.Now(),
	}, summary, agg.Results())
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if deps.out != nil {
		stats := engine.Stats()
		_, _ = fmt.Fprintf(deps.out,
			"analyzed %d pages (%d failed): %d errors, %d warnings, %d notices; report written to %s\n",
			summary.PagesAnalyzed, stats.PagesFailed,
			summary.TotalErrors, summary.TotalWarnings, summary.TotalNotices,
			store.Dir(),
		)
	}
	return nil
}

type crawlStatus struct {
	CrawlID  string        `json:"crawlId"`
	StartURL string        `json:"startUrl"`
	State    string        `json:"state"`
	Stats    crawler.Stats `json:"stats"`
}

func engineStatus(e *crawler.Engine) metrics.StatusFunc {
	return func() any {
		return crawlStatus{
			CrawlID:  e.CrawlID().String(),
			StartURL: e.StartURL(),
			State:    e.State().String(),
			Stats:    e.Stats(),
		}
	}
}
