package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/a11ycrawl/internal/browser"
	"github.com/JakeFAU/a11ycrawl/internal/crawler"
	"github.com/JakeFAU/a11ycrawl/internal/policy/ratelimit"
)

const samplePage = `<!doctype html>
<html lang="en"><head><title>Home</title></head>
<body>
  <nav>
    <a href="/about">About</a>
    <a href="/about">About again</a>
    <a href="  /contact ">Contact</a>
    <a href="">Empty</a>
    <a>No href</a>
    <a href="https://other.com/x">Elsewhere</a>
    <a href="#main">Skip</a>
  </nav>
  <script>
    const a = document.createElement("a");
    a.href = "/dynamic";
    a.textContent = "Dynamic";
    document.body.appendChild(a);
  </script>
</body></html>`

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	})
	mux.HandleFunc("/ua", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<a href="/` + r.UserAgent() + `">ua</a><a href="/` + r.Header.Get("X-Audit") + `">h</a>`))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`<a href="/late">late</a>`))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestParseLinksDedupesInDocumentOrder(t *testing.T) {
	t.Parallel()

	links, err := ParseLinks(samplePage)
	require.NoError(t, err)
	assert.Equal(t, []string{"/about", "/contact", "https://other.com/x", "#main"}, links)
}

func TestHTTPRendererWithHTMLExtractor(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	r := NewHTTPRenderer(HTTPConfig{}, nil, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	defer func() { require.NoError(t, r.Close(ctx)) }()

	page, err := r.Render(ctx, srv.URL, 5*time.Second)
	require.NoError(t, err)
	defer page.Release()
	assert.Equal(t, srv.URL, page.URL())

	links, err := HTMLLinkExtractor{}.ExtractLinks(ctx, page, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"/about", "/contact", "https://other.com/x", "#main"}, links)

	// Without a browser the DOM extractor falls back to HTML parsing.
	links, err = DOMLinkExtractor{}.ExtractLinks(ctx, page, srv.URL)
	require.NoError(t, err)
	assert.Contains(t, links, "/about")
}

func TestHTTPRendererSendsIdentity(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	r := NewHTTPRenderer(HTTPConfig{
		UserAgent: "a11ycrawl-test",
		Headers:   http.Header{"X-Audit": {"yes"}},
	}, nil, nil)
	ctx := context.Background()
	require.NoError(t, r.Start(ctx))

	page, err := r.Render(ctx, srv.URL+"/ua", time.Second)
	require.NoError(t, err)
	links, err := HTMLLinkExtractor{}.ExtractLinks(ctx, page, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a11ycrawl-test", "/yes"}, links)
}

func TestHTTPRendererErrors(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	ctx := context.Background()

	unstarted := NewHTTPRenderer(HTTPConfig{}, nil, nil)
	_, err := unstarted.Render(ctx, srv.URL, time.Second)
	var renderErr *crawler.RenderError
	require.ErrorAs(t, err, &renderErr)
	require.ErrorIs(t, err, crawler.ErrRendererNotStarted)

	r := NewHTTPRenderer(HTTPConfig{}, nil, nil)
	require.NoError(t, r.Start(ctx))

	_, err = r.Render(ctx, srv.URL+"/missing", time.Second)
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, srv.URL+"/missing", renderErr.URL)

	_, err = r.Render(ctx, srv.URL+"/slow", 50*time.Millisecond)
	require.ErrorAs(t, err, &renderErr)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	page, err := r.Render(ctx, srv.URL+"/empty", time.Second)
	require.NoError(t, err)
	links, err := HTMLLinkExtractor{}.ExtractLinks(ctx, page, srv.URL)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestHTTPRendererRateLimited(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	r := NewHTTPRenderer(HTTPConfig{}, ratelimit.New(ratelimit.Config{RPS: 10, Burst: 1}), nil)
	ctx := context.Background()
	require.NoError(t, r.Start(ctx))

	start := time.Now()
	for range 3 {
		page, err := r.Render(ctx, srv.URL, time.Second)
		require.NoError(t, err)
		page.Release()
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	require.NoError(t, checkStatus(0))
	require.NoError(t, checkStatus(http.StatusOK))
	require.NoError(t, checkStatus(http.StatusNotModified))
	require.Error(t, checkStatus(http.StatusNotFound))
	require.Error(t, checkStatus(http.StatusBadGateway))
}

func requireChrome(t *testing.T) {
	t.Helper()
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("chrome not available")
}

func TestChromedpRendererDiscoversScriptedLinks(t *testing.T) {
	requireChrome(t)

	srv := newSiteServer(t)
	b, err := browser.New(browser.Config{NoSandbox: true}, nil)
	require.NoError(t, err)
	r := NewChromedpRenderer(b, nil, 0, nil)
	ctx := context.Background()

	_, err = r.Render(ctx, srv.URL, time.Second)
	require.ErrorIs(t, err, crawler.ErrRendererNotStarted)

	require.NoError(t, r.Start(ctx))
	defer func() { require.NoError(t, r.Close(ctx)) }()

	page, err := r.Render(ctx, srv.URL, 20*time.Second)
	require.NoError(t, err)
	defer page.Release()

	links, err := DOMLinkExtractor{}.ExtractLinks(ctx, page, srv.URL)
	require.NoError(t, err)
	assert.Contains(t, links, "/dynamic")
	assert.Contains(t, links, "/about")

	html, err := page.HTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "Dynamic")

	_, err = r.Render(ctx, srv.URL+"/missing", 20*time.Second)
	var renderErr *crawler.RenderError
	require.ErrorAs(t, err, &renderErr)
}
