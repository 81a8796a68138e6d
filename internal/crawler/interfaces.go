package crawler

import (
	"context"
	"time"
)

// Analyzer runs an accessibility engine against a single URL. Failures are
// reported as *AnalysisError.
type Analyzer interface {
	Analyze(ctx context.Context, rawURL string, opts AnalyzeOptions) (PageResult, error)
}

// RenderedPage is a page held open by a Renderer. Release must be called
// exactly once when the caller is done with it.
type RenderedPage interface {
	URL() string
	HTML(ctx context.Context) (string, error)
	Release()
}

// Renderer navigates to pages. Start acquires the underlying engine and Close
// releases it; Render failures are reported as *RenderError.
type Renderer interface {
	Start(ctx context.Context) error
	Render(ctx context.Context, rawURL string, timeout time.Duration) (RenderedPage, error)
	Close(ctx context.Context) error
}

// LinkExtractor returns the raw, unresolved href values found on a page,
// without duplicates.
type LinkExtractor interface {
	ExtractLinks(ctx context.Context, page RenderedPage, baseURL string) ([]string, error)
}

// Recorder receives every successful PageResult in crawl order.
type Recorder interface {
	Record(result PageResult)
}

// RobotsPolicy decides whether robots.txt permits crawling a URL.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}
