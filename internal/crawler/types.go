package crawler

import (
	"time"

	"github.com/JakeFAU/a11ycrawl/internal/issues"
)

// CrawlTarget is one frontier entry. Depth counts pages from the start URL,
// which sits at depth 0.
type CrawlTarget struct {
	URL   string
	Depth int
}

// PageResult is the analysis outcome for one successfully analyzed page.
type PageResult struct {
	URL    string         `json:"url"`
	Depth  int            `json:"depth"`
	Title  string         `json:"title,omitempty"`
	Issues []issues.Issue `json:"issues"`
}

// Tally counts the page's issues per severity.
func (r PageResult) Tally() issues.Tally {
	return issues.Count(r.Issues)
}

// AnalyzeOptions are passed through to the analyzer for every page.
type AnalyzeOptions struct {
	Standard        string
	Timeout         time.Duration
	Wait            time.Duration
	IncludeWarnings bool
	IncludeNotices  bool
}

// State is the lifecycle state of an Engine.
type State int32

// Engine lifecycle states.
const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stats summarizes engine activity for one crawl.
type Stats struct {
	PagesAnalyzed  int64 `json:"pagesAnalyzed"`
	PagesFailed    int64 `json:"pagesFailed"`
	PagesSkipped   int64 `json:"pagesSkipped"`
	RenderFailures int64 `json:"renderFailures"`
	LinksEnqueued  int64 `json:"linksEnqueued"`
	LinksExcluded  int64 `json:"linksExcluded"`
	Batches        int64 `json:"batches"`
}
