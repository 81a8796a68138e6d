// Package browser owns the shared headless Chrome instance used by the
// chromedp renderer and analyzer. Each page visit runs in its own tab.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrNotStarted is returned by NewTab before Start succeeds or after Close.
var ErrNotStarted = errors.New("browser not started")

// Config controls how Chrome is launched and how tabs are prepared.
type Config struct {
	// ExecPath overrides Chrome discovery when set.
	ExecPath string
	// Headful disables headless mode; useful for debugging.
	Headful bool
	// NoSandbox passes --no-sandbox, typically needed in containers.
	NoSandbox bool
	// MaxTabs bounds concurrently open tabs. Zero means unbounded.
	MaxTabs   int
	UserAgent string
	// Headers are sent with every navigation.
	Headers http.Header
}

// Browser is a lazily started Chrome process shared by many tabs. It is safe
// for concurrent use.
type Browser struct {
	cfg    Config
	logger *zap.Logger
	slots  chan struct{}

	mu            sync.Mutex
	started       bool
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// New returns a Browser that launches Chrome on Start.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxTabs < 0 {
		return nil, fmt.Errorf("max tabs must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var slots chan struct{}
	if cfg.MaxTabs > 0 {
		slots = make(chan struct{}, cfg.MaxTabs)
	}
	return &Browser{cfg: cfg, logger: logger.Named("browser"), slots: slots}, nil
}

// Start launches Chrome. Calling Start on a running browser is a no-op.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run on a fresh context launches the process.
	launched := make(chan error, 1)
	go func() { launched <- chromedp.Run(browserCtx) }()
	select {
	case err := <-launched:
		if err != nil {
			browserCancel()
			allocCancel()
			return fmt.Errorf("launch chrome: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return fmt.Errorf("launch chrome: %w", ctx.Err())
	}

	b.allocCancel = allocCancel
	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	b.started = true
	b.logger.Debug("chrome started", zap.Bool("headless", !b.cfg.Headful))
	return nil
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	} else {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if b.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}
	return opts
}

// Started reports whether Chrome is running.
func (b *Browser) Started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// Close terminates Chrome. It is safe to call more than once.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil
	}
	b.started = false
	var err error
	if cerr := chromedp.Cancel(b.browserCtx); cerr != nil && !errors.Is(cerr, context.Canceled) {
		err = fmt.Errorf("cancel browser: %w", cerr)
	}
	b.browserCancel()
	b.allocCancel()
	b.logger.Debug("chrome stopped")
	return err
}

// NewTab opens a tab bounded by timeout and by ctx. The returned Tab must be
// closed by the caller.
func (b *Browser) NewTab(ctx context.Context, timeout time.Duration) (*Tab, error) {
	b.mu.Lock()
	parent := b.browserCtx
	started := b.started
	b.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(parent)
	runCtx, runCancel := tabCtx, context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, runCancel = context.WithTimeout(tabCtx, timeout)
	}
	stop := context.AfterFunc(ctx, runCancel)

	meta := newResponseMeta()
	chromedp.ListenTarget(runCtx, meta.captureEvent)

	var once sync.Once
	return &Tab{
		ctx:     runCtx,
		meta:    meta,
		headers: b.cfg.Headers,
		ua:      b.cfg.UserAgent,
		closeFn: func() {
			once.Do(func() {
				stop()
				runCancel()
				tabCancel()
				b.release()
			})
		},
	}, nil
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.slots == nil {
		return nil
	}
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tab slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.slots == nil {
		return
	}
	select {
	case <-b.slots:
	default:
	}
}

// Tab is one browser tab. Its methods run against the tab's own context.
type Tab struct {
	ctx     context.Context
	meta    *responseMeta
	headers http.Header
	ua      string
	closeFn func()
}

// Context returns the tab context for custom chromedp actions.
func (t *Tab) Context() context.Context { return t.ctx }

// Run executes actions in the tab.
func (t *Tab) Run(actions ...chromedp.Action) error {
	if err := chromedp.Run(t.ctx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// Navigate loads rawURL, waits for the body, then sleeps for wait. It returns
// the final URL after redirects.
func (t *Tab) Navigate(rawURL string, wait time.Duration) (string, error) {
	var finalURL string
	actions := []chromedp.Action{
		t.networkSetupAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if wait > 0 {
		actions = append(actions, chromedp.Sleep(wait))
	}
	actions = append(actions, chromedp.Location(&finalURL))
	if err := t.Run(actions...); err != nil {
		return "", err
	}
	return finalURL, nil
}

// Status returns the HTTP status of the main document, or 0 if unknown.
func (t *Tab) Status() int {
	status, _ := t.meta.snapshot()
	return status
}

// Close closes the tab. It is safe to call more than once.
func (t *Tab) Close() { t.closeFn() }

func (t *Tab) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if t.ua != "" {
			if err := emulation.SetUserAgentOverride(t.ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(t.headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(t.headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Keep the first document response; later ones are iframes.
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			headers[key] = values[0]
		default:
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
