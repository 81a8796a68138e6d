package report_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/a11ycrawl/internal/analyzer"
	"github.com/JakeFAU/a11ycrawl/internal/crawler"
	"github.com/JakeFAU/a11ycrawl/internal/render"
	"github.com/JakeFAU/a11ycrawl/internal/report"
	"github.com/JakeFAU/a11ycrawl/internal/storage/memory"
)

// Home has two errors (no lang, no title) and one warning (h1 then h3).
const homePage = `<html><head></head><body>
<h1>Home</h1><h3>Deep</h3>
<a href="/slow">Slow page</a>
<a href="/slow#top">Slow page again</a>
</body></html>`

func TestCrawlReportSkipsTimedOutPages(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(homePage))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte(`<html lang="en"><head><title>Slow</title></head><body><h1>Slow</h1></body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	renderer := render.NewHTTPRenderer(render.HTTPConfig{}, nil, nil)
	agg := report.NewAggregator()
	engine, err := crawler.NewEngine(crawler.Options{
		StartURL:    srv.URL,
		MaxDepth:    3,
		Concurrency: 2,
		Analyze: crawler.AnalyzeOptions{
			Timeout:         300 * time.Millisecond,
			IncludeWarnings: true,
		},
	}, analyzer.NewRuleAnalyzer(renderer, nil), renderer, render.HTMLLinkExtractor{}, agg, nil)
	require.NoError(t, err)

	require.NoError(t, engine.Run(context.Background()))
	assert.ElementsMatch(t, []string{srv.URL, srv.URL + "/slow"}, engine.Visited())
	assert.EqualValues(t, 1, engine.Stats().PagesFailed)

	summary := agg.Finalize()
	assert.Equal(t, 1, summary.PagesAnalyzed)
	assert.Equal(t, 2, summary.TotalErrors)
	assert.Equal(t, 1, summary.TotalWarnings)
	assert.Equal(t, 0, summary.TotalNotices)
	assert.Equal(t, 3, summary.TotalIssues)
	require.Len(t, summary.Pages, 1)
	assert.Equal(t, srv.URL, summary.Pages[0].URL)

	store := memory.NewBlobStore()
	_, err = report.NewWriter(store, nil).Write(context.Background(), report.Meta{
		StartURL: engine.StartURL(),
		CrawlID:  engine.CrawlID().String(),
	}, summary, agg.Results())
	require.NoError(t, err)
	assert.Len(t, store.Paths(), 5)
}
