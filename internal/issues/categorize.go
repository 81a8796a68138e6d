package issues

import (
	"bytes"
	"encoding/json"
)

// RawIssue is one finding as reported by an accessibility runner. Runners
// either set the symbolic Type or the legacy numeric TypeCode.
type RawIssue struct {
	Type     string `json:"type,omitempty"`
	TypeCode int    `json:"typeCode,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Selector string `json:"selector"`
	Context  string `json:"context,omitempty"`
}

// RawResult is the analyzer payload for one page. A nil Issues slice means
// the runner returned no issue list at all.
type RawResult struct {
	DocumentTitle string     `json:"documentTitle,omitempty"`
	PageURL       string     `json:"pageUrl,omitempty"`
	Issues        []RawIssue `json:"issues"`
}

// Buckets holds categorized issues, each in analyzer order.
type Buckets struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Notices  []Issue `json:"notices"`
}

// Decode parses runner JSON output. Malformed payloads decode to an empty
// result; categorizing an empty result yields three empty buckets.
func Decode(payload []byte) RawResult {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return RawResult{}
	}
	var result RawResult
	if err := json.Unmarshal(payload, &result); err == nil {
		return result
	}
	// Some runners return the bare issue array.
	var list []RawIssue
	if err := json.Unmarshal(payload, &list); err == nil {
		return RawResult{Issues: list}
	}
	return RawResult{}
}

// Classify maps a raw issue to its severity. The symbolic type wins when it
// is present; otherwise the numeric type code is used. Issues matching
// neither report false and belong to no bucket.
func Classify(raw RawIssue) (Severity, bool) {
	if raw.Type != "" {
		if sev, ok := severityFromName(raw.Type); ok {
			return sev, true
		}
	}
	return severityFromCode(raw.TypeCode)
}

// Categorize partitions raw issues into severity buckets.
func Categorize(raw RawResult) Buckets {
	b := Buckets{
		Errors:   []Issue{},
		Warnings: []Issue{},
		Notices:  []Issue{},
	}
	for _, r := range raw.Issues {
		sev, ok := Classify(r)
		if !ok {
			continue
		}
		issue := Issue{
			Severity: sev,
			Code:     r.Code,
			Message:  r.Message,
			Selector: r.Selector,
			Context:  r.Context,
		}
		switch sev {
		case SeverityError:
			b.Errors = append(b.Errors, issue)
		case SeverityWarning:
			b.Warnings = append(b.Warnings, issue)
		case SeverityNotice:
			b.Notices = append(b.Notices, issue)
		}
	}
	return b
}

// Filter drops the warning and notice buckets unless they are requested.
func (b Buckets) Filter(includeWarnings, includeNotices bool) Buckets {
	out := Buckets{Errors: b.Errors, Warnings: []Issue{}, Notices: []Issue{}}
	if includeWarnings {
		out.Warnings = b.Warnings
	}
	if includeNotices {
		out.Notices = b.Notices
	}
	return out
}

// Issues flattens the buckets, errors first, then warnings, then notices.
func (b Buckets) Issues() []Issue {
	out := make([]Issue, 0, len(b.Errors)+len(b.Warnings)+len(b.Notices))
	out = append(out, b.Errors...)
	out = append(out, b.Warnings...)
	out = append(out, b.Notices...)
	return out
}

// Split regroups an already categorized list into buckets.
func Split(list []Issue) Buckets {
	b := Buckets{Errors: []Issue{}, Warnings: []Issue{}, Notices: []Issue{}}
	for _, issue := range list {
		switch issue.Severity {
		case SeverityError:
			b.Errors = append(b.Errors, issue)
		case SeverityWarning:
			b.Warnings = append(b.Warnings, issue)
		case SeverityNotice:
			b.Notices = append(b.Notices, issue)
		}
	}
	return b
}
