package render

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/a11ycrawl/internal/crawler"
	"github.com/JakeFAU/a11ycrawl/internal/metrics"
	"github.com/JakeFAU/a11ycrawl/internal/policy/ratelimit"
)

const defaultHTTPTimeout = 15 * time.Second

// HTTPConfig controls the static HTTP renderer.
type HTTPConfig struct {
	UserAgent string
	Headers   http.Header
	// Timeout bounds each HTTP exchange at the transport level.
	Timeout time.Duration
	// MaxBodySize caps downloaded bytes; zero keeps colly's default.
	MaxBodySize int
}

// HTTPRenderer fetches raw HTML with colly. It does not execute scripts, so
// it suits server-rendered sites and environments without Chrome.
type HTTPRenderer struct {
	cfg     HTTPConfig
	limiter *ratelimit.Limiter
	logger  *zap.Logger

	mu        sync.Mutex
	base      *colly.Collector
	transport *http.Transport
}

// NewHTTPRenderer returns an unstarted HTTPRenderer.
func NewHTTPRenderer(cfg HTTPConfig, limiter *ratelimit.Limiter, logger *zap.Logger) *HTTPRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPRenderer{cfg: cfg, limiter: limiter, logger: logger.Named("http_renderer")}
}

// Start builds the shared collector and transport.
func (r *HTTPRenderer) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.base != nil {
		return nil
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	if r.cfg.UserAgent != "" {
		c.UserAgent = r.cfg.UserAgent
	}
	if r.cfg.MaxBodySize > 0 {
		c.MaxBodySize = r.cfg.MaxBodySize
	}
	timeout := r.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	c.SetRequestTimeout(timeout)
	transport := newHTTPTransport()
	c.WithTransport(transport)
	r.base = c
	r.transport = transport
	return nil
}

// Render performs a GET of rawURL and holds the body in memory.
func (r *HTTPRenderer) Render(ctx context.Context, rawURL string, timeout time.Duration) (crawler.RenderedPage, error) {
	r.mu.Lock()
	base := r.base
	r.mu.Unlock()
	if base == nil {
		return nil, &crawler.RenderError{URL: rawURL, Cause: crawler.ErrRendererNotStarted}
	}
	if err := r.limiter.Wait(ctx, rawURL); err != nil {
		return nil, &crawler.RenderError{URL: rawURL, Cause: err}
	}

	body, status, err := r.fetch(ctx, base, rawURL, timeout)
	metrics.ObserveRender("http", err == nil)
	if err != nil {
		return nil, &crawler.RenderError{URL: rawURL, Cause: err}
	}
	r.logger.Debug("page fetched", zap.String("url", rawURL), zap.Int("status", status), zap.Int("bytes", len(body)))
	return &staticPage{url: rawURL, html: string(body)}, nil
}

func (r *HTTPRenderer) fetch(ctx context.Context, base *colly.Collector, rawURL string, timeout time.Duration) ([]byte, int, error) {
	collector := base.Clone()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		body      []byte
		status    int
		responded bool
		fetchErr  error
	)
	collector.OnRequest(func(req *colly.Request) {
		for key, values := range r.cfg.Headers {
			for _, v := range values {
				req.Headers.Add(key, v)
			}
		}
	})
	collector.OnResponse(func(resp *colly.Response) {
		status = resp.StatusCode
		body = append([]byte(nil), resp.Body...)
		responded = true
	})
	collector.OnError(func(resp *colly.Response, err error) {
		if resp != nil {
			status = resp.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, status, fmt.Errorf("colly visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, status, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		if !responded {
			return nil, status, errors.New("no response")
		}
		return body, status, nil
	}
}

// Close releases idle connections.
func (r *HTTPRenderer) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transport != nil {
		r.transport.CloseIdleConnections()
	}
	r.base = nil
	r.transport = nil
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// staticPage is a fetched document held in memory.
type staticPage struct {
	url  string
	html string
}

func (p *staticPage) URL() string { return p.url }

func (p *staticPage) HTML(context.Context) (string, error) { return p.html, nil }

func (p *staticPage) Release() {}
