// Package render implements the crawler's link-discovery side: renderers that
// load pages and extractors that read their anchors.
package render

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/a11ycrawl/internal/browser"
	"github.com/JakeFAU/a11ycrawl/internal/crawler"
	"github.com/JakeFAU/a11ycrawl/internal/metrics"
	"github.com/JakeFAU/a11ycrawl/internal/policy/ratelimit"
)

// ChromedpRenderer renders pages in tabs of a shared headless browser so
// links added by client-side scripts are discovered.
type ChromedpRenderer struct {
	browser *browser.Browser
	limiter *ratelimit.Limiter
	wait    time.Duration
	logger  *zap.Logger
}

// NewChromedpRenderer wraps b. The renderer owns b's lifecycle: Start
// launches it and Close stops it. wait is slept after the body is ready.
func NewChromedpRenderer(b *browser.Browser, limiter *ratelimit.Limiter, wait time.Duration, logger *zap.Logger) *ChromedpRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromedpRenderer{
		browser: b,
		limiter: limiter,
		wait:    wait,
		logger:  logger.Named("chromedp_renderer"),
	}
}

// Start launches the browser.
func (r *ChromedpRenderer) Start(ctx context.Context) error {
	if err := r.browser.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	return nil
}

// Render opens rawURL in a new tab. The tab stays open until Release.
func (r *ChromedpRenderer) Render(ctx context.Context, rawURL string, timeout time.Duration) (crawler.RenderedPage, error) {
	if !r.browser.Started() {
		return nil, &crawler.RenderError{URL: rawURL, Cause: crawler.ErrRendererNotStarted}
	}
	if err := r.limiter.Wait(ctx, rawURL); err != nil {
		return nil, &crawler.RenderError{URL: rawURL, Cause: err}
	}
	tab, err := r.browser.NewTab(ctx, timeout)
	if err != nil {
		return nil, &crawler.RenderError{URL: rawURL, Cause: err}
	}
	final, err := tab.Navigate(rawURL, r.wait)
	if err == nil {
		err = checkStatus(tab.Status())
	}
	if err != nil {
		tab.Close()
		metrics.ObserveRender("chromedp", false)
		return nil, &crawler.RenderError{URL: rawURL, Cause: err}
	}
	metrics.ObserveRender("chromedp", true)
	r.logger.Debug("page rendered", zap.String("url", rawURL), zap.String("final_url", final), zap.Int("status", tab.Status()))
	return &tabPage{url: rawURL, tab: tab}, nil
}

// Close stops the browser.
func (r *ChromedpRenderer) Close(context.Context) error {
	if err := r.browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// checkStatus rejects error documents; 0 means the status was not observed.
func checkStatus(status int) error {
	if status >= http.StatusBadRequest {
		return fmt.Errorf("http status %d", status)
	}
	return nil
}

// tabPage is a page held open in a browser tab.
type tabPage struct {
	url string
	tab *browser.Tab
}

func (p *tabPage) URL() string { return p.url }

func (p *tabPage) HTML(context.Context) (string, error) {
	var html string
	if err := p.tab.Run(chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read outer html: %w", err)
	}
	return html, nil
}

func (p *tabPage) Release() { p.tab.Close() }
