package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ExclusionReason names the rule that excluded a URL.
type ExclusionReason string

// Exclusion reasons in evaluation order. ReasonNone means the URL is kept.
const (
	ReasonNone      ExclusionReason = ""
	ReasonMalformed ExclusionReason = "malformed"
	ReasonOrigin    ExclusionReason = "origin"
	ReasonExtension ExclusionReason = "extension"
	ReasonFragment  ExclusionReason = "fragment"
	ReasonPattern   ExclusionReason = "pattern"
)

// resourceExtensions are path extensions that never lead to an HTML document.
var resourceExtensions = map[string]struct{}{
	// styles and scripts
	".css": {}, ".js": {}, ".mjs": {}, ".map": {},
	// images and fonts
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {}, ".ico": {},
	".bmp": {}, ".tif": {}, ".tiff": {}, ".avif": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".eot": {},
	// archives
	".zip": {}, ".gz": {}, ".tgz": {}, ".tar": {}, ".rar": {}, ".7z": {}, ".bz2": {},
	// audio and video
	".mp3": {}, ".wav": {}, ".ogg": {}, ".mp4": {}, ".webm": {}, ".avi": {}, ".mov": {},
	".mkv": {}, ".flv": {}, ".m4a": {}, ".m4v": {},
	// data and documents
	".json": {}, ".xml": {}, ".csv": {}, ".txt": {}, ".rss": {}, ".atom": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".exe": {}, ".dmg": {}, ".apk": {}, ".bin": {}, ".iso": {},
}

// Filter decides which normalized URLs may enter the frontier. Only
// same-origin, document-like URLs without fragments or excluded substrings
// pass.
type Filter struct {
	origin   origin
	patterns []string
}

// NewFilter builds a Filter bound to the origin of startURL.
func NewFilter(startURL string, patterns []string) (*Filter, error) {
	u, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("start url %q must be absolute", startURL)
	}
	return &Filter{
		origin:   originOf(u),
		patterns: ParsePatterns(strings.Join(patterns, ",")),
	}, nil
}

// IsExcluded reports whether any exclusion rule matches.
func (f *Filter) IsExcluded(normalized string) bool {
	return f.Reason(normalized) != ReasonNone
}

// Reason returns the first exclusion rule that matches, or ReasonNone.
func (f *Filter) Reason(normalized string) ExclusionReason {
	u, err := url.Parse(normalized)
	if err != nil {
		return ReasonMalformed
	}
	if originOf(u) != f.origin {
		return ReasonOrigin
	}
	if _, ok := resourceExtensions[strings.ToLower(path.Ext(u.Path))]; ok {
		return ReasonExtension
	}
	if strings.Contains(normalized, "#") {
		return ReasonFragment
	}
	for _, p := range f.patterns {
		if strings.Contains(normalized, p) {
			return ReasonPattern
		}
	}
	return ReasonNone
}

// Patterns returns a copy of the configured exclusion substrings.
func (f *Filter) Patterns() []string {
	return append([]string(nil), f.patterns...)
}

// ParsePatterns splits a comma-separated exclusion list, trimming blanks and
// dropping duplicates while keeping the first-seen order.
func ParsePatterns(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
