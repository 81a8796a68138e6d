// Package issues models accessibility findings and classifies raw analyzer
// output into error, warning, and notice buckets.
package issues

import (
	"fmt"
	"strings"
)

// Severity is the bucket an accessibility issue belongs to.
type Severity int

// Supported severities. The numeric values match the legacy type codes
// reported by HTML_CodeSniffer based runners.
const (
	SeverityError   Severity = 1
	SeverityWarning Severity = 2
	SeverityNotice  Severity = 3
)

// String returns the lowercase symbolic name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// MarshalText encodes the severity by its symbolic name.
func (s Severity) MarshalText() ([]byte, error) {
	if _, ok := severityFromName(s.String()); !ok {
		return nil, fmt.Errorf("unknown severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a symbolic severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	sev, ok := severityFromName(string(text))
	if !ok {
		return fmt.Errorf("unknown severity %q", string(text))
	}
	*s = sev
	return nil
}

func severityFromName(name string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "error":
		return SeverityError, true
	case "warning":
		return SeverityWarning, true
	case "notice":
		return SeverityNotice, true
	default:
		return 0, false
	}
}

func severityFromCode(code int) (Severity, bool) {
	switch Severity(code) {
	case SeverityError, SeverityWarning, SeverityNotice:
		return Severity(code), true
	default:
		return 0, false
	}
}

// Issue is a single categorized accessibility finding on a page.
type Issue struct {
	Severity Severity `json:"type"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Selector string   `json:"selector"`
	Context  string   `json:"context,omitempty"`
}

// Tally counts issues per severity.
type Tally struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Notices  int `json:"notices"`
}

// Total returns the number of counted issues.
func (t Tally) Total() int {
	return t.Errors + t.Warnings + t.Notices
}

// Count tallies a list of categorized issues.
func Count(list []Issue) Tally {
	var t Tally
	for _, issue := range list {
		switch issue.Severity {
		case SeverityError:
			t.Errors++
		case SeverityWarning:
			t.Warnings++
		case SeverityNotice:
			t.Notices++
		}
	}
	return t
}
