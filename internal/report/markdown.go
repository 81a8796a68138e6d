package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/a11ycrawl/internal/issues"
)

const maxCellLen = 120

func summaryMarkdown(doc summaryDocument, slugs []string) ([]byte, error) {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	md.H1("Accessibility Report")
	md.PlainText("")
	if doc.SummaryText != "" {
		md.PlainText(doc.SummaryText)
		md.PlainText("")
	}

	rows := [][]string{}
	if doc.ProjectKey != "" {
		rows = append(rows, []string{"Project", cell(doc.ProjectKey)})
	}
	rows = append(rows,
		[]string{"Start URL", cell(doc.StartURL)},
		[]string{"Standard", cell(orDash(doc.Standard))},
		[]string{"Pages Analyzed", strconv.Itoa(doc.PagesAnalyzed)},
	)
	if doc.CrawlID != "" {
		rows = append(rows, []string{"Crawl ID", "`" + doc.CrawlID + "`"})
	}
	if !doc.FinishedAt.IsZero() {
		rows = append(rows, []string{"Finished", doc.FinishedAt.Format("2006-01-02 15:04:05 MST")})
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	md.H2("Totals")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Count"},
		Rows: [][]string{
			{"Errors", strconv.Itoa(doc.TotalErrors)},
			{"Warnings", strconv.Itoa(doc.TotalWarnings)},
			{"Notices", strconv.Itoa(doc.TotalNotices)},
			{"**Total**", "**" + strconv.Itoa(doc.TotalIssues) + "**"},
		},
	})
	md.PlainText("")

	md.H2("Pages")
	md.PlainText("")
	if len(doc.Pages) == 0 {
		md.PlainText("No pages were analyzed.")
		return buildMarkdown(md, &buf)
	}
	pageRows := make([][]string, len(doc.Pages))
	for i, p := range doc.Pages {
		pageRows[i] = []string{
			markdown.Link(cell(p.URL), PagesDir+"/"+slugs[i]+".md"),
			strconv.Itoa(p.Depth),
			strconv.Itoa(p.ErrorCount),
			strconv.Itoa(p.WarningCount),
			strconv.Itoa(p.NoticeCount),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Page", "Depth", "Errors", "Warnings", "Notices"},
		Rows:   pageRows,
	})
	return buildMarkdown(md, &buf)
}

func pageMarkdown(doc pageDocument) ([]byte, error) {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	heading := doc.Title
	if heading == "" {
		heading = doc.URL
	}
	md.H1(heading)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"URL", cell(doc.URL)},
			{"Depth", strconv.Itoa(doc.Depth)},
			{"Errors", strconv.Itoa(doc.Counts.Errors)},
			{"Warnings", strconv.Itoa(doc.Counts.Warnings)},
			{"Notices", strconv.Itoa(doc.Counts.Notices)},
		},
	})
	md.PlainText("")

	if len(doc.Issues) == 0 {
		md.PlainText("No issues found.")
		return buildMarkdown(md, &buf)
	}
	for _, sev := range []struct {
		level issues.Severity
		title string
	}{
		{issues.SeverityError, "Errors"},
		{issues.SeverityWarning, "Warnings"},
		{issues.SeverityNotice, "Notices"},
	} {
		var rows [][]string
		for _, issue := range doc.Issues {
			if issue.Severity != sev.level {
				continue
			}
			rows = append(rows, []string{
				"`" + cell(issue.Code) + "`",
				cell(issue.Message),
				cell(orDash(issue.Selector)),
			})
		}
		if len(rows) == 0 {
			continue
		}
		md.H2(fmt.Sprintf("%s (%d)", sev.title, len(rows)))
		md.PlainText("")
		md.Table(markdown.TableSet{Header: []string{"Code", "Message", "Selector"}, Rows: rows})
		md.PlainText("")
	}
	return buildMarkdown(md, &buf)
}

func buildMarkdown(md *markdown.Markdown, buf *bytes.Buffer) ([]byte, error) {
	if err := md.Build(); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// cell makes s safe for a single table cell.
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxCellLen {
		s = string(r[:maxCellLen-3]) + "..."
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
