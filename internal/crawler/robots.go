package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const robotsMaxBytes = 1 << 20

// RobotsEnforcer checks discovered links against the origin's robots.txt.
// Rules are fetched once per host and cached for the life of the enforcer.
type RobotsEnforcer struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu     sync.Mutex
	groups map[string]*robotstxt.Group
}

// NewRobotsEnforcer returns a RobotsPolicy. When respect is false every URL
// is allowed and no robots.txt is fetched.
func NewRobotsEnforcer(respect bool, userAgent string, timeout time.Duration, logger *zap.Logger) RobotsPolicy {
	if !respect {
		return allowAll{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RobotsEnforcer{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
		groups:    make(map[string]*robotstxt.Group),
	}
}

// Allowed implements RobotsPolicy. Fetch failures allow the URL.
func (r *RobotsEnforcer) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	group, err := r.group(ctx, parsed)
	if err != nil {
		r.logger.Warn("robots fetch failed; allowing url", zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	if group == nil {
		return true
	}
	target := parsed.EscapedPath()
	if target == "" {
		target = "/"
	}
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	return group.Test(target)
}

func (r *RobotsEnforcer) group(ctx context.Context, parsed *url.URL) (*robotstxt.Group, error) {
	key := strings.ToLower(parsed.Scheme + "://" + parsed.Host)

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[key]; ok {
		return g, nil
	}
	data, err := r.fetch(ctx, key+"/robots.txt")
	if err != nil {
		return nil, err
	}
	g := data.FindGroup(r.userAgent)
	r.groups[key] = g
	return g, nil
}

func (r *RobotsEnforcer) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}

type allowAll struct{}

func (allowAll) Allowed(context.Context, string) bool { return true }
