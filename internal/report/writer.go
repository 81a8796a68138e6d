package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/a11ycrawl/internal/crawler"
	"github.com/JakeFAU/a11ycrawl/internal/issues"
	"github.com/JakeFAU/a11ycrawl/internal/storage"
)

// Artifact names written by Writer.
const (
	SummaryJSON     = "summary.json"
	SummaryMarkdown = "summary.md"
	PagesJSON       = "pages.json"
	PagesDir        = "pages"
)

const maxSlugLen = 80

// Meta describes the crawl a report belongs to.
type Meta struct {
	ProjectKey  string
	SummaryText string
	StartURL    string
	Standard    string
	CrawlID     string
	StartedAt   time.Time
	FinishedAt  time.Time
}

type summaryDocument struct {
	ProjectKey  string    `json:"projectKey,omitempty"`
	SummaryText string    `json:"summaryText,omitempty"`
	StartURL    string    `json:"startUrl"`
	Standard    string    `json:"standard,omitempty"`
	CrawlID     string    `json:"crawlId,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	SiteSummary
}

type pageEntry struct {
	PageSummary
	File string `json:"file"`
}

type pageDocument struct {
	URL    string         `json:"url"`
	Title  string         `json:"title,omitempty"`
	Depth  int            `json:"depth"`
	Counts issues.Tally   `json:"counts"`
	Issues []issues.Issue `json:"issues"`
}

// Writer renders a finalized crawl into JSON and Markdown artifacts.
type Writer struct {
	store  storage.BlobStore
	logger *zap.Logger
}

// NewWriter returns a Writer that stores artifacts in store.
func NewWriter(store storage.BlobStore, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, logger: logger.Named("report")}
}

// Write stores the summary, the page listing, and one JSON and Markdown file
// per page. results must be in the same order as summary.Pages. It returns
// the URIs of every stored artifact.
func (w *Writer) Write(ctx context.Context, meta Meta, summary SiteSummary, results []crawler.PageResult) ([]string, error) {
	if len(results) != len(summary.Pages) {
		return nil, fmt.Errorf("summary lists %d pages but %d results were given", len(summary.Pages), len(results))
	}
	var uris []string
	put := func(path, contentType string, data []byte) error {
		uri, err := w.store.PutObject(ctx, path, contentType, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("store %s: %w", path, err)
		}
		uris = append(uris, uri)
		return nil
	}

	slugs := make([]string, len(results))
	entries := make([]pageEntry, len(results))
	for i, r := range results {
		slugs[i] = PageSlug(i, r.URL)
		entries[i] = pageEntry{PageSummary: summary.Pages[i], File: PagesDir + "/" + slugs[i] + ".json"}

		doc := pageDocument{
			URL:    r.URL,
			Title:  r.Title,
			Depth:  r.Depth,
			Counts: r.Tally(),
			Issues: r.Issues,
		}
		if doc.Issues == nil {
			doc.Issues = []issues.Issue{}
		}
		data, err := marshal(doc)
		if err != nil {
			return uris, err
		}
		if err := put(PagesDir+"/"+slugs[i]+".json", "application/json", data); err != nil {
			return uris, err
		}
		md, err := pageMarkdown(doc)
		if err != nil {
			return uris, err
		}
		if err := put(PagesDir+"/"+slugs[i]+".md", "text/markdown", md); err != nil {
			return uris, err
		}
	}

	data, err := marshal(entries)
	if err != nil {
		return uris, err
	}
	if err := put(PagesJSON, "application/json", data); err != nil {
		return uris, err
	}

	doc := summaryDocument{
		ProjectKey:  meta.ProjectKey,
		SummaryText: meta.SummaryText,
		StartURL:    meta.StartURL,
		Standard:    meta.Standard,
		CrawlID:     meta.CrawlID,
		StartedAt:   meta.StartedAt.UTC(),
		FinishedAt:  meta.FinishedAt.UTC(),
		SiteSummary: summary,
	}
	if doc.Pages == nil {
		doc.Pages = []PageSummary{}
	}
	if data, err = marshal(doc); err != nil {
		return uris, err
	}
	if err := put(SummaryJSON, "application/json", data); err != nil {
		return uris, err
	}
	md, err := summaryMarkdown(doc, slugs)
	if err != nil {
		return uris, err
	}
	if err := put(SummaryMarkdown, "text/markdown", md); err != nil {
		return uris, err
	}

	w.logger.Info("report written",
		zap.Int("pages", summary.PagesAnalyzed),
		zap.Int("artifacts", len(uris)),
		zap.Int("total_issues", summary.TotalIssues),
	)
	return uris, nil
}

func marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return append(data, '\n'), nil
}

// PageSlug derives a file-safe name for the i-th recorded page. The index
// prefix keeps slugs unique when URLs collapse to the same text.
func PageSlug(i int, rawURL string) string {
	s := strings.ToLower(rawURL)
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
	}
	var b strings.Builder
	dash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		slug = "page"
	}
	return fmt.Sprintf("%03d-%s", i+1, slug)
}
