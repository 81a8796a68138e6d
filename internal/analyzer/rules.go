package analyzer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/a11ycrawl/internal/crawler"
	"github.com/JakeFAU/a11ycrawl/internal/issues"
)

const contextLimit = 300

// Rule inspects a parsed document and reports raw findings.
type Rule struct {
	Name  string
	Check func(doc *goquery.Document) []issues.RawIssue
}

// DefaultRules is the built-in rule set used by RuleAnalyzer.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "html-lang", Check: checkHTMLLang},
		{Name: "document-title", Check: checkTitle},
		{Name: "img-alt", Check: checkImageAlt},
		{Name: "link-name", Check: checkLinkText},
		{Name: "button-name", Check: checkButtonText},
		{Name: "form-label", Check: checkFormLabels},
		{Name: "duplicate-id", Check: checkDuplicateIDs},
		{Name: "heading-order", Check: checkHeadingOrder},
	}
}

// RuleAnalyzer fetches pages through a renderer and evaluates Rules against
// their HTML. It needs no JavaScript engine when paired with HTTPRenderer.
type RuleAnalyzer struct {
	renderer crawler.Renderer
	rules    []Rule
	logger   *zap.Logger
}

// NewRuleAnalyzer returns an analyzer using rules, or DefaultRules when none
// are given. renderer must be started before Analyze is called.
func NewRuleAnalyzer(renderer crawler.Renderer, logger *zap.Logger, rules ...Rule) *RuleAnalyzer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleAnalyzer{renderer: renderer, rules: rules, logger: logger.Named("rule_analyzer")}
}

// Analyze implements crawler.Analyzer.
func (a *RuleAnalyzer) Analyze(ctx context.Context, rawURL string, opts crawler.AnalyzeOptions) (crawler.PageResult, error) {
	page, err := a.renderer.Render(ctx, rawURL, opts.Timeout)
	if err != nil {
		return crawler.PageResult{}, &crawler.AnalysisError{URL: rawURL, Cause: err}
	}
	defer page.Release()

	html, err := page.HTML(ctx)
	if err != nil {
		return crawler.PageResult{}, &crawler.AnalysisError{URL: rawURL, Cause: err}
	}
	raw, err := a.Check(html)
	if err != nil {
		return crawler.PageResult{}, &crawler.AnalysisError{URL: rawURL, Cause: err}
	}
	raw.PageURL = rawURL
	a.logger.Debug("rules evaluated", zap.String("url", rawURL), zap.Int("raw_issues", len(raw.Issues)))
	return resultFrom(rawURL, raw, opts), nil
}

// Check runs every rule against html.
func (a *RuleAnalyzer) Check(html string) (issues.RawResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return issues.RawResult{}, fmt.Errorf("parse html: %w", err)
	}
	result := issues.RawResult{
		DocumentTitle: strings.TrimSpace(doc.Find("head title").First().Text()),
		Issues:        []issues.RawIssue{},
	}
	for _, rule := range a.rules {
		result.Issues = append(result.Issues, rule.Check(doc)...)
	}
	return result, nil
}

func finding(kind, code, message string, s *goquery.Selection) issues.RawIssue {
	return issues.RawIssue{
		Type:     kind,
		Code:     code,
		Message:  message,
		Selector: selectorOf(s),
		Context:  contextOf(s),
	}
}

func checkHTMLLang(doc *goquery.Document) []issues.RawIssue {
	html := doc.Find("html").First()
	if lang, ok := html.Attr("lang"); ok && strings.TrimSpace(lang) != "" {
		return nil
	}
	if lang, ok := html.Attr("xml:lang"); ok && strings.TrimSpace(lang) != "" {
		return nil
	}
	return []issues.RawIssue{finding("error",
		"WCAG2AA.Principle3.Guideline3_1.3_1_1.H57.2",
		"The html element should have a lang or xml:lang attribute which describes the language of the document.",
		html)}
}

func checkTitle(doc *goquery.Document) []issues.RawIssue {
	title := doc.Find("head title").First()
	if title.Length() > 0 && strings.TrimSpace(title.Text()) != "" {
		return nil
	}
	target := doc.Find("head").First()
	if target.Length() == 0 {
		target = doc.Find("html").First()
	}
	return []issues.RawIssue{finding("error",
		"WCAG2AA.Principle2.Guideline2_4.2_4_2.H25.1.NoTitleEl",
		"A title should be provided for the document, using a non-empty title element in the head section.",
		target)}
}

func checkImageAlt(doc *goquery.Document) []issues.RawIssue {
	var out []issues.RawIssue
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if hidden(s) {
			return
		}
		alt, ok := s.Attr("alt")
		switch {
		case !ok:
			out = append(out, finding("error",
				"WCAG2AA.Principle1.Guideline1_1.1_1_1.H37",
				"Img element missing an alt attribute. Use the alt attribute to specify a short text alternative.",
				s))
		case strings.TrimSpace(alt) == "" && s.ParentsFiltered("a").Length() > 0 && strings.TrimSpace(s.ParentsFiltered("a").First().Text()) == "":
			out = append(out, finding("error",
				"WCAG2AA.Principle1.Guideline1_1.1_1_1.H30.2",
				"Img element is the only content of the link, but is missing alt text. The alt text should describe the purpose of the link.",
				s))
		}
	})
	return out
}

func checkLinkText(doc *goquery.Document) []issues.RawIssue {
	var out []issues.RawIssue
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if hidden(s) || accessibleName(s) != "" {
			return
		}
		out = append(out, finding("error",
			"WCAG2AA.Principle4.Guideline4_1.4_1_2.H91.A.NoContent",
			"Anchor element found with a valid href attribute, but no link content has been supplied.",
			s))
	})
	return out
}

func checkButtonText(doc *goquery.Document) []issues.RawIssue {
	var out []issues.RawIssue
	doc.Find(`button, input[type="submit"], input[type="button"], input[type="reset"]`).Each(func(_ int, s *goquery.Selection) {
		if hidden(s) {
			return
		}
		if goquery.NodeName(s) == "input" {
			if v, ok := s.Attr("value"); ok && strings.TrimSpace(v) != "" {
				return
			}
			if t, _ := s.Attr("type"); t == "submit" || t == "reset" {
				// Browsers supply a default label for these.
				return
			}
		}
		if accessibleName(s) != "" {
			return
		}
		out = append(out, finding("error",
			"WCAG2AA.Principle4.Guideline4_1.4_1_2.H91.Button.Name",
			"This button element does not have a name available to an accessibility API.",
			s))
	})
	return out
}

func checkFormLabels(doc *goquery.Document) []issues.RawIssue {
	labelled := make(map[string]struct{})
	doc.Find("label[for]").Each(func(_ int, s *goquery.Selection) {
		if id, _ := s.Attr("for"); id != "" {
			labelled[id] = struct{}{}
		}
	})
	var out []issues.RawIssue
	doc.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		if hidden(s) {
			return
		}
		if goquery.NodeName(s) == "input" {
			switch t, _ := s.Attr("type"); strings.ToLower(t) {
			case "hidden", "submit", "button", "reset", "image":
				return
			}
		}
		if id, ok := s.Attr("id"); ok {
			if _, has := labelled[id]; has {
				return
			}
		}
		if s.ParentsFiltered("label").Length() > 0 {
			return
		}
		if attrText(s, "aria-label") != "" || attrText(s, "aria-labelledby") != "" || attrText(s, "title") != "" {
			return
		}
		out = append(out, finding("error",
			"WCAG2AA.Principle1.Guideline1_3.1_3_1.F68",
			"This form field should be labelled in some way. Use the label element, or a title, aria-label or aria-labelledby attribute.",
			s))
	})
	return out
}

func checkDuplicateIDs(doc *goquery.Document) []issues.RawIssue {
	seen := make(map[string]int)
	var out []issues.RawIssue
	doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		id := strings.TrimSpace(attrText(s, "id"))
		if id == "" {
			return
		}
		seen[id]++
		if seen[id] == 2 {
			out = append(out, finding("error",
				"WCAG2AA.Principle4.Guideline4_1.4_1_1.F77",
				fmt.Sprintf("Duplicate id attribute value %q found on the web page.", id),
				s))
		}
	})
	return out
}

func checkHeadingOrder(doc *goquery.Document) []issues.RawIssue {
	var out []issues.RawIssue
	last := 0
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		level, err := strconv.Atoi(strings.TrimPrefix(goquery.NodeName(s), "h"))
		if err != nil {
			return
		}
		if last > 0 && level > last+1 {
			out = append(out, finding("warning",
				"WCAG2AA.Principle1.Guideline1_3.1_3_1_A.G141",
				fmt.Sprintf("The heading structure is not logically nested. This h%d element should be an h%d to be properly nested.", level, last+1),
				s))
		}
		last = level
	})
	if doc.Find("h1").Length() == 0 {
		out = append(out, finding("notice",
			"WCAG2AA.Principle1.Guideline1_3.1_3_1.H42",
			"Check that heading markup is used where content is a heading and that the page has a top-level h1.",
			doc.Find("body").First()))
	}
	return out
}

func hidden(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	return attrText(s, "aria-hidden") == "true"
}

func accessibleName(s *goquery.Selection) string {
	if v := attrText(s, "aria-label"); v != "" {
		return v
	}
	if v := attrText(s, "aria-labelledby"); v != "" {
		return v
	}
	if v := attrText(s, "title"); v != "" {
		return v
	}
	if text := strings.TrimSpace(s.Text()); text != "" {
		return text
	}
	var alt string
	s.Find("img[alt]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		alt = attrText(img, "alt")
		return alt == ""
	})
	return alt
}

func attrText(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

// selectorOf builds a CSS path from the nearest ancestor with an id.
func selectorOf(s *goquery.Selection) string {
	if s == nil || s.Length() == 0 {
		return ""
	}
	var parts []string
	for node := s.First(); node.Length() > 0; node = node.Parent() {
		name := goquery.NodeName(node)
		if name == "" || name == "#document" {
			break
		}
		if id := attrText(node, "id"); id != "" {
			parts = append(parts, "#"+id)
			break
		}
		part := name
		if parent := node.Parent(); parent.Length() > 0 && parent.Children().Filter(name).Length() > 1 {
			part += ":nth-child(" + strconv.Itoa(node.Index()+1) + ")"
		}
		parts = append(parts, part)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func contextOf(s *goquery.Selection) string {
	if s == nil || s.Length() == 0 {
		return ""
	}
	html, err := goquery.OuterHtml(s.First())
	if err != nil {
		return ""
	}
	if len(html) > contextLimit {
		return html[:contextLimit] + "..."
	}
	return html
}
