package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/a11ycrawl/internal/config"
	"github.com/JakeFAU/a11ycrawl/internal/crawler"
	"github.com/JakeFAU/a11ycrawl/internal/report"
)

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/":            `<html lang="en"><head><title>Home</title></head><body><h1>Home</h1><a href="/about">About</a><a href="/admin/panel">Admin</a><a href="https://elsewhere.test/">Out</a></body></html>`,
		"/about":       `<html lang="en"><head><title>About</title></head><body><h1>About</h1><img src="/team.png"><a href="/">Home</a></body></html>`,
		"/admin/panel": `<html><body>secret</body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func rulesConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Crawl:    config.CrawlConfig{MaxDepth: 3, Concurrency: 2, TimeoutMs: 5000, Exclusions: "admin"},
		Analyzer: config.AnalyzerConfig{Mode: config.AnalyzerRules, Standard: "WCAG2AA"},
		Render:   config.RenderConfig{Mode: config.RendererHTTP, UserAgent: "a11ycrawl-test"},
		Report:   config.ReportConfig{OutputDir: filepath.Join(t.TempDir(), "report"), ProjectKey: "acme", SummaryText: "Nightly audit"},
	}
}

func TestRunCrawlWritesReport(t *testing.T) {
	t.Parallel()

	srv := newTestSite(t)
	cfg := rulesConfig(t)
	var out bytes.Buffer

	err := runCrawl(context.Background(), cfg, srv.URL+"/", crawlDeps{
		logger:   zaptest.NewLogger(t),
		registry: prometheus.NewRegistry(),
		out:      &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "analyzed 2 pages (0 failed): 1 errors")

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(filepath.Join(cfg.Report.OutputDir, "summary.json"))
	require.NoError(t, err)
	var summary struct {
		ProjectKey    string `json:"projectKey"`
		SummaryText   string `json:"summaryText"`
		StartURL      string `json:"startUrl"`
		PagesAnalyzed int    `json:"pagesAnalyzed"`
		TotalErrors   int    `json:"totalErrors"`
		Pages         []struct {
			URL string `json:"url"`
		} `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, "acme", summary.ProjectKey)
	assert.Equal(t, "Nightly audit", summary.SummaryText)
	assert.Equal(t, srv.URL, summary.StartURL)
	assert.Equal(t, 2, summary.PagesAnalyzed)
	assert.Equal(t, 1, summary.TotalErrors, "only the about page's img is missing alt")
	require.Len(t, summary.Pages, 2)
	assert.Equal(t, srv.URL, summary.Pages[0].URL)
	assert.Equal(t, srv.URL+"/about", summary.Pages[1].URL)

	for _, name := range []string{"summary.md", "pages.json"} {
		assert.FileExists(t, filepath.Join(cfg.Report.OutputDir, name))
	}
	matches, err := filepath.Glob(filepath.Join(cfg.Report.OutputDir, "pages", "*.md"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestRunCrawlRejectsInvalidStart(t *testing.T) {
	t.Parallel()

	err := runCrawl(context.Background(), rulesConfig(t), "not a url", crawlDeps{registry: prometheus.NewRegistry()})
	require.ErrorContains(t, err, "invalid start url")
}

func TestRunCrawlMissingRunnerScriptIsSetupError(t *testing.T) {
	t.Parallel()

	cfg := rulesConfig(t)
	cfg.Analyzer.Mode = config.AnalyzerRunner
	cfg.Analyzer.RunnerScript = filepath.Join(t.TempDir(), "missing.js")
	cfg.Render.Mode = config.RendererChromedp

	err := runCrawl(context.Background(), cfg, "https://ex.com", crawlDeps{registry: prometheus.NewRegistry()})
	var setupErr *crawler.SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, "analyzer", setupErr.Component)
}

func TestCrawlCommandRequiresStartURL(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetArgs([]string{"crawl"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	require.Error(t, root.Execute())
}

func TestEngineStatusSnapshot(t *testing.T) {
	t.Parallel()

	cfg := rulesConfig(t)
	p, err := buildPipeline(cfg, nil)
	require.NoError(t, err)
	engine, err := crawler.NewEngine(cfg.CrawlerOptions("https://ex.com/"), p.analyzer, p.renderer, p.extractor, &report.Aggregator{}, nil)
	require.NoError(t, err)

	status, ok := engineStatus(engine)().(crawlStatus)
	require.True(t, ok)
	assert.Equal(t, "https://ex.com", status.StartURL)
	assert.Equal(t, "idle", status.State)
	assert.Equal(t, engine.CrawlID().String(), status.CrawlID)
	assert.Zero(t, status.Stats.PagesAnalyzed)
}

func TestRunCrawlServesMetricsDuringCrawl(t *testing.T) {
	t.Parallel()

	srv := newTestSite(t)
	cfg := rulesConfig(t)
	cfg.Metrics.Addr = "127.0.0.1:0"
	require.NoError(t, runCrawl(context.Background(), cfg, srv.URL, crawlDeps{registry: prometheus.NewRegistry()}))
}
