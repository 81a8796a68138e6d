package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/a11ycrawl/internal/crawler"
)

const anchorsScript = `Array.from(document.querySelectorAll("a[href]"), a => a.getAttribute("href"))`

// HTMLLinkExtractor parses the page's HTML with goquery. It works with any
// renderer.
type HTMLLinkExtractor struct{}

// ExtractLinks returns the unique, non-empty href attributes of a[href]
// elements in document order.
func (HTMLLinkExtractor) ExtractLinks(ctx context.Context, page crawler.RenderedPage, _ string) ([]string, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	return ParseLinks(html)
}

// ParseLinks extracts unique a[href] values from an HTML document.
func ParseLinks(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		hrefs = append(hrefs, href)
	})
	return dedupe(hrefs), nil
}

// DOMLinkExtractor reads anchors from the live DOM of a page rendered by
// ChromedpRenderer, seeing links inserted by scripts after load. Pages from
// other renderers fall back to HTML parsing.
type DOMLinkExtractor struct{}

// ExtractLinks implements crawler.LinkExtractor.
func (DOMLinkExtractor) ExtractLinks(ctx context.Context, page crawler.RenderedPage, base string) ([]string, error) {
	tp, ok := page.(*tabPage)
	if !ok {
		return HTMLLinkExtractor{}.ExtractLinks(ctx, page, base)
	}
	var hrefs []string
	if err := tp.tab.Run(chromedp.Evaluate(anchorsScript, &hrefs)); err != nil {
		return nil, fmt.Errorf("evaluate anchors: %w", err)
	}
	return dedupe(hrefs), nil
}

func dedupe(hrefs []string) []string {
	out := make([]string, 0, len(hrefs))
	seen := make(map[string]struct{}, len(hrefs))
	for _, h := range hrefs {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
