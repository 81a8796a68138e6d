// Package config loads and validates crawl configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/a11ycrawl/internal/browser"
	"github.com/JakeFAU/a11ycrawl/internal/crawler"
	"github.com/JakeFAU/a11ycrawl/internal/policy/ratelimit"
	"github.com/JakeFAU/a11ycrawl/internal/render"
)

// Renderer and analyzer modes.
const (
	RendererChromedp = "chromedp"
	RendererHTTP     = "http"
	AnalyzerRunner   = "runner"
	AnalyzerRules    = "rules"
)

// EnvPrefix prefixes every environment override, e.g. A11YCRAWL_CRAWL_MAX_DEPTH.
const EnvPrefix = "A11YCRAWL"

// Config captures all crawl configuration knobs loaded via Viper.
type Config struct {
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Render   RenderConfig   `mapstructure:"render"`
	Report   ReportConfig   `mapstructure:"report"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// CrawlConfig governs the frontier and the engine.
type CrawlConfig struct {
	StartURL      string `mapstructure:"start_url"`
	MaxDepth      int    `mapstructure:"max_depth"`
	Concurrency   int    `mapstructure:"concurrency"`
	TimeoutMs     int    `mapstructure:"timeout_ms"`
	Exclusions    string `mapstructure:"exclusions"`
	RespectRobots bool   `mapstructure:"respect_robots"`
}

// AnalyzerConfig selects and tunes the accessibility engine.
type AnalyzerConfig struct {
	Mode            string `mapstructure:"mode"`
	Standard        string `mapstructure:"standard"`
	IncludeWarnings bool   `mapstructure:"include_warnings"`
	IncludeNotices  bool   `mapstructure:"include_notices"`
	WaitMs          int    `mapstructure:"wait_ms"`
	RunnerScript    string `mapstructure:"runner_script"`
}

// RenderConfig configures page rendering for link discovery.
type RenderConfig struct {
	Mode           string            `mapstructure:"mode"`
	UserAgent      string            `mapstructure:"user_agent"`
	Headers        map[string]string `mapstructure:"headers"`
	ChromePath     string            `mapstructure:"chrome_path"`
	Headful        bool              `mapstructure:"headful"`
	NoSandbox      bool              `mapstructure:"no_sandbox"`
	MaxTabs        int               `mapstructure:"max_tabs"`
	RateLimitRPS   float64           `mapstructure:"rate_limit_rps"`
	RateLimitBurst int               `mapstructure:"rate_limit_burst"`
	MaxBodyBytes   int               `mapstructure:"max_body_bytes"`
}

// ReportConfig controls where and how the report is written.
type ReportConfig struct {
	OutputDir   string `mapstructure:"output_dir"`
	ProjectKey  string `mapstructure:"project_key"`
	SummaryText string `mapstructure:"summary_text"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"max-depth":        "crawl.max_depth",
	"concurrency":      "crawl.concurrency",
	"timeout":          "crawl.timeout_ms",
	"exclude":          "crawl.exclusions",
	"respect-robots":   "crawl.respect_robots",
	"analyzer":         "analyzer.mode",
	"standard":         "analyzer.standard",
	"include-warnings": "analyzer.include_warnings",
	"include-notices":  "analyzer.include_notices",
	"wait":             "analyzer.wait_ms",
	"runner-script":    "analyzer.runner_script",
	"renderer":         "render.mode",
	"user-agent":       "render.user_agent",
	"chrome-path":      "render.chrome_path",
	"no-sandbox":       "render.no_sandbox",
	"rate-limit":       "render.rate_limit_rps",
	"output":           "report.output_dir",
	"project-key":      "report.project_key",
	"summary":          "report.summary_text",
	"dev":              "logging.development",
	"metrics-addr":     "metrics.addr",
}

// RegisterFlags defines the crawl flags understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Int("max-depth", crawler.DefaultMaxDepth, "maximum crawl depth in pages, counting the start page")
	fs.Int("concurrency", crawler.DefaultConcurrency, "pages analyzed in parallel")
	fs.Int("timeout", int(crawler.DefaultTimeout/time.Millisecond), "per-page analysis timeout in milliseconds")
	fs.String("exclude", "", "comma-separated URL substrings to skip")
	fs.Bool("respect-robots", false, "skip links disallowed by robots.txt")
	fs.String("analyzer", AnalyzerRunner, "analyzer: runner or rules")
	fs.String("standard", crawler.DefaultStandard, "accessibility standard passed to the runner")
	fs.Bool("include-warnings", false, "keep warnings in the report")
	fs.Bool("include-notices", false, "keep notices in the report")
	fs.Int("wait", 0, "milliseconds to wait after page load")
	fs.String("runner-script", "", "path to the HTML_CodeSniffer bundle")
	fs.String("renderer", RendererChromedp, "renderer: chromedp or http")
	fs.String("user-agent", "", "user agent sent with every request")
	fs.String("chrome-path", "", "Chrome executable; discovered when empty")
	fs.Bool("no-sandbox", false, "launch Chrome with --no-sandbox")
	fs.Float64("rate-limit", 0, "per-host requests per second; 0 disables")
	fs.String("output", "a11y-report", "report output directory")
	fs.String("project-key", "", "project key recorded in the summary")
	fs.String("summary", "", "custom text placed at the top of the summary")
	fs.Bool("dev", false, "human-readable development logging")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address during the crawl")
}

// Load builds a Config from defaults, the optional file at path, the
// environment, and any flags that were explicitly set, in increasing
// precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Analyzer.Mode = strings.ToLower(strings.TrimSpace(cfg.Analyzer.Mode))
	cfg.Render.Mode = strings.ToLower(strings.TrimSpace(cfg.Render.Mode))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.max_depth", crawler.DefaultMaxDepth)
	v.SetDefault("crawl.concurrency", crawler.DefaultConcurrency)
	v.SetDefault("crawl.timeout_ms", int(crawler.DefaultTimeout/time.Millisecond))
	v.SetDefault("crawl.exclusions", "")
	v.SetDefault("crawl.respect_robots", false)
	v.SetDefault("analyzer.mode", AnalyzerRunner)
	v.SetDefault("analyzer.standard", crawler.DefaultStandard)
	v.SetDefault("analyzer.include_warnings", false)
	v.SetDefault("analyzer.include_notices", false)
	v.SetDefault("analyzer.wait_ms", 0)
	v.SetDefault("analyzer.runner_script", "")
	v.SetDefault("render.mode", RendererChromedp)
	v.SetDefault("render.user_agent", "a11ycrawl/0.1")
	v.SetDefault("render.chrome_path", "")
	v.SetDefault("render.headful", false)
	v.SetDefault("render.no_sandbox", false)
	v.SetDefault("render.max_tabs", 0)
	v.SetDefault("render.rate_limit_rps", 0)
	v.SetDefault("render.rate_limit_burst", 1)
	v.SetDefault("render.max_body_bytes", 10<<20)
	v.SetDefault("report.output_dir", "a11y-report")
	v.SetDefault("report.project_key", "")
	v.SetDefault("report.summary_text", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits. The start URL is
// validated by the engine.
func (c Config) Validate() error {
	var errs []error
	if c.Crawl.MaxDepth <= 0 {
		errs = append(errs, errors.New("crawl.max_depth must be > 0"))
	}
	if c.Crawl.Concurrency <= 0 {
		errs = append(errs, errors.New("crawl.concurrency must be > 0"))
	}
	if c.Crawl.TimeoutMs <= 0 {
		errs = append(errs, errors.New("crawl.timeout_ms must be > 0"))
	}
	if c.Analyzer.WaitMs < 0 {
		errs = append(errs, errors.New("analyzer.wait_ms must be >= 0"))
	}
	switch c.Analyzer.Mode {
	case AnalyzerRunner:
		if c.Render.Mode != RendererChromedp {
			errs = append(errs, errors.New("analyzer.mode runner requires render.mode chromedp"))
		}
		if strings.TrimSpace(c.Analyzer.RunnerScript) == "" {
			errs = append(errs, errors.New("analyzer.runner_script must be set when analyzer.mode is runner"))
		}
	case AnalyzerRules:
	default:
		errs = append(errs, fmt.Errorf("analyzer.mode must be %q or %q, got %q", AnalyzerRunner, AnalyzerRules, c.Analyzer.Mode))
	}
	switch c.Render.Mode {
	case RendererChromedp, RendererHTTP:
	default:
		errs = append(errs, fmt.Errorf("render.mode must be %q or %q, got %q", RendererChromedp, RendererHTTP, c.Render.Mode))
	}
	if c.Render.RateLimitRPS < 0 {
		errs = append(errs, errors.New("render.rate_limit_rps must be >= 0"))
	}
	if c.Render.RateLimitRPS > 0 && c.Render.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("render.rate_limit_burst must be > 0 when rate limiting"))
	}
	if strings.TrimSpace(c.Report.OutputDir) == "" {
		errs = append(errs, errors.New("report.output_dir must be set"))
	}
	return errors.Join(errs...)
}

// Timeout returns the per-page timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Crawl.TimeoutMs) * time.Millisecond
}

// Wait returns the post-load settle delay.
func (c Config) Wait() time.Duration {
	return time.Duration(c.Analyzer.WaitMs) * time.Millisecond
}

// CrawlerOptions converts the config into engine options for startURL.
func (c Config) CrawlerOptions(startURL string) crawler.Options {
	return crawler.Options{
		StartURL:    startURL,
		MaxDepth:    c.Crawl.MaxDepth,
		Concurrency: c.Crawl.Concurrency,
		Timeout:     c.Timeout(),
		Exclusions:  crawler.ParsePatterns(c.Crawl.Exclusions),
		Analyze: crawler.AnalyzeOptions{
			Standard:        c.Analyzer.Standard,
			Timeout:         c.Timeout(),
			Wait:            c.Wait(),
			IncludeWarnings: c.Analyzer.IncludeWarnings,
			IncludeNotices:  c.Analyzer.IncludeNotices,
		},
	}
}

// Headers returns the configured request headers.
func (c Config) Headers() http.Header {
	h := make(http.Header, len(c.Render.Headers))
	for k, v := range c.Render.Headers {
		h.Set(k, v)
	}
	return h
}

// BrowserConfig converts the render section for the Chrome launcher. Tabs
// are bounded by crawl concurrency unless max_tabs is set.
func (c Config) BrowserConfig() browser.Config {
	maxTabs := c.Render.MaxTabs
	if maxTabs <= 0 {
		// One tab for analysis plus one for link discovery per worker.
		maxTabs = 2 * c.Crawl.Concurrency
	}
	return browser.Config{
		ExecPath:  c.Render.ChromePath,
		Headful:   c.Render.Headful,
		NoSandbox: c.Render.NoSandbox,
		MaxTabs:   maxTabs,
		UserAgent: c.Render.UserAgent,
		Headers:   c.Headers(),
	}
}

// HTTPConfig converts the render section for the colly renderer.
func (c Config) HTTPConfig() render.HTTPConfig {
	return render.HTTPConfig{
		UserAgent:   c.Render.UserAgent,
		Headers:     c.Headers(),
		Timeout:     c.Timeout(),
		MaxBodySize: c.Render.MaxBodyBytes,
	}
}

// RateLimit converts the render section for the per-host limiter.
func (c Config) RateLimit() ratelimit.Config {
	return ratelimit.Config{RPS: c.Render.RateLimitRPS, Burst: c.Render.RateLimitBurst}
}
