// Package analyzer implements crawler.Analyzer. ChromedpAnalyzer runs an
// injected HTML_CodeSniffer-compatible script in headless Chrome; RuleAnalyzer
// applies a built-in rule set to fetched HTML without a browser.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/a11ycrawl/internal/browser"
	"github.com/JakeFAU/a11ycrawl/internal/crawler"
	"github.com/JakeFAU/a11ycrawl/internal/issues"
)

// DefaultExpression drives an HTML_CodeSniffer bundle that was injected into
// the page. %s receives the JSON-encoded standard name. It resolves to a JSON
// string in the shape accepted by issues.Decode.
const DefaultExpression = `(async (standard) => {
  const selectorOf = (el) => {
    if (!el || el.nodeType !== 1) return "";
    const parts = [];
    for (let node = el; node && node.nodeType === 1; node = node.parentElement) {
      if (node.id) { parts.unshift("#" + CSS.escape(node.id)); break; }
      let part = node.tagName.toLowerCase();
      const parent = node.parentElement;
      if (parent) {
        const same = Array.from(parent.children).filter((c) => c.tagName === node.tagName);
        if (same.length > 1) part += ":nth-child(" + (Array.from(parent.children).indexOf(node) + 1) + ")";
      }
      parts.unshift(part);
    }
    return parts.join(" > ");
  };
  const contextOf = (el) => {
    if (!el || !el.outerHTML) return "";
    const html = el.outerHTML;
    return html.length > 300 ? html.slice(0, 300) + "..." : html;
  };
  if (typeof HTMLCS === "undefined") throw new Error("HTMLCS is not loaded");
  const messages = await new Promise((resolve, reject) => {
    HTMLCS.process(standard, window.document, () => resolve(HTMLCS.getMessages()), reject);
  });
  return JSON.stringify({
    documentTitle: document.title,
    pageUrl: location.href,
    issues: messages.map((m) => ({
      code: m.code,
      typeCode: m.type,
      message: m.msg,
      selector: selectorOf(m.element),
      context: contextOf(m.element),
    })),
  });
})(%s)`

// Runner is the script injected into every analyzed page plus the
// expression that runs it.
type Runner struct {
	Script     string
	Expression string
}

// LoadRunner reads the runner bundle at path and pairs it with
// DefaultExpression.
func LoadRunner(path string) (Runner, error) {
	if path == "" {
		return Runner{}, errors.New("runner script path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Runner{}, fmt.Errorf("read runner script: %w", err)
	}
	return Runner{Script: string(data), Expression: DefaultExpression}, nil
}

func (r Runner) expression(standard string) (string, error) {
	encoded, err := json.Marshal(standard)
	if err != nil {
		return "", fmt.Errorf("encode standard: %w", err)
	}
	expr := r.Expression
	if expr == "" {
		expr = DefaultExpression
	}
	return fmt.Sprintf(expr, encoded), nil
}

// ChromedpAnalyzer analyzes pages in tabs of a shared browser. The browser
// must be started by the renderer before the crawl begins.
type ChromedpAnalyzer struct {
	browser *browser.Browser
	runner  Runner
	logger  *zap.Logger
}

// NewChromedpAnalyzer returns an analyzer that injects runner into each page.
func NewChromedpAnalyzer(b *browser.Browser, runner Runner, logger *zap.Logger) *ChromedpAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromedpAnalyzer{browser: b, runner: runner, logger: logger.Named("chromedp_analyzer")}
}

// Analyze implements crawler.Analyzer.
func (a *ChromedpAnalyzer) Analyze(ctx context.Context, rawURL string, opts crawler.AnalyzeOptions) (crawler.PageResult, error) {
	payload, err := a.run(ctx, rawURL, opts)
	if err != nil {
		return crawler.PageResult{}, &crawler.AnalysisError{URL: rawURL, Cause: err}
	}
	return resultFrom(rawURL, issues.Decode(payload), opts), nil
}

func (a *ChromedpAnalyzer) run(ctx context.Context, rawURL string, opts crawler.AnalyzeOptions) ([]byte, error) {
	expr, err := a.runner.expression(opts.Standard)
	if err != nil {
		return nil, err
	}
	tab, err := a.browser.NewTab(ctx, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	defer tab.Close()

	start := time.Now()
	if _, err := tab.Navigate(rawURL, opts.Wait); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if status := tab.Status(); status >= 400 {
		return nil, fmt.Errorf("http status %d", status)
	}

	var out string
	err = tab.Run(
		chromedp.Evaluate(a.runner.Script, nil),
		chromedp.Evaluate(expr, &out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("run accessibility script: %w", err)
	}
	a.logger.Debug("runner finished",
		zap.String("url", rawURL),
		zap.String("standard", opts.Standard),
		zap.Duration("dur", time.Since(start)),
	)
	return []byte(out), nil
}

// resultFrom categorizes raw findings and applies the include flags.
func resultFrom(rawURL string, raw issues.RawResult, opts crawler.AnalyzeOptions) crawler.PageResult {
	buckets := issues.Categorize(raw).Filter(opts.IncludeWarnings, opts.IncludeNotices)
	return crawler.PageResult{
		URL:    rawURL,
		Title:  raw.DocumentTitle,
		Issues: buckets.Issues(),
	}
}
