// Package report aggregates analyzed pages into a site summary and writes the
// summary and per-page artifacts.
package report

import (
	"sync"

	"github.com/JakeFAU/a11ycrawl/internal/crawler"
)

// PageSummary is the per-page entry of a SiteSummary.
type PageSummary struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	Depth        int    `json:"depth"`
	IssueCount   int    `json:"issueCount"`
	ErrorCount   int    `json:"errorCount"`
	WarningCount int    `json:"warningCount"`
	NoticeCount  int    `json:"noticeCount"`
}

// SiteSummary totals every recorded page. Pages keep record order.
type SiteSummary struct {
	PagesAnalyzed int           `json:"pagesAnalyzed"`
	TotalIssues   int           `json:"totalIssues"`
	TotalErrors   int           `json:"totalErrors"`
	TotalWarnings int           `json:"totalWarnings"`
	TotalNotices  int           `json:"totalNotices"`
	Pages         []PageSummary `json:"pages"`
}

// Aggregator collects PageResults from concurrent page visits. It implements
// crawler.Recorder.
type Aggregator struct {
	mu        sync.Mutex
	results   []crawler.PageResult
	summary   *SiteSummary
	finalized bool
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Record appends result. Results recorded after Finalize are ignored.
func (a *Aggregator) Record(result crawler.PageResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	a.results = append(a.results, result)
}

// Results returns the recorded pages in record order.
func (a *Aggregator) Results() []crawler.PageResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]crawler.PageResult(nil), a.results...)
}

// Finalize computes the site summary. Later calls return the same summary.
func (a *Aggregator) Finalize() SiteSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.finalized {
		s := summarize(a.results)
		a.summary = &s
		a.finalized = true
	}
	return a.summary.clone()
}

func summarize(results []crawler.PageResult) SiteSummary {
	s := SiteSummary{Pages: make([]PageSummary, 0, len(results))}
	for _, r := range results {
		t := r.Tally()
		s.Pages = append(s.Pages, PageSummary{
			URL:          r.URL,
			Title:        r.Title,
			Depth:        r.Depth,
			IssueCount:   t.Total(),
			ErrorCount:   t.Errors,
			WarningCount: t.Warnings,
			NoticeCount:  t.Notices,
		})
		s.TotalErrors += t.Errors
		s.TotalWarnings += t.Warnings
		s.TotalNotices += t.Notices
	}
	s.PagesAnalyzed = len(s.Pages)
	s.TotalIssues = s.TotalErrors + s.TotalWarnings + s.TotalNotices
	return s
}

func (s *SiteSummary) clone() SiteSummary {
	out := *s
	out.Pages = append([]PageSummary(nil), s.Pages...)
	if out.Pages == nil {
		out.Pages = []PageSummary{}
	}
	return out
}
