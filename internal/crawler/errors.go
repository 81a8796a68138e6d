package crawler

import (
	"errors"
	"fmt"
)

// ErrEngineUsed is returned when Run is called on an engine that already ran.
var ErrEngineUsed = errors.New("engine already ran")

// ErrRendererNotStarted is returned by renderers used before Start.
var ErrRendererNotStarted = errors.New("renderer not started")

// SetupError means the crawl could not start, typically because the
// rendering engine is unavailable. It is the only fatal crawl error.
type SetupError struct {
	Component string
	Cause     error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %v", e.Component, e.Cause)
}

func (e *SetupError) Unwrap() error { return e.Cause }

// AnalysisError is a per-page analyzer failure, including timeouts.
type AnalysisError struct {
	URL   string
	Cause error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analyze %s: %v", e.URL, e.Cause)
}

func (e *AnalysisError) Unwrap() error { return e.Cause }

// RenderError is a per-page navigation or link extraction failure.
type RenderError struct {
	URL   string
	Cause error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.URL, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// MalformedURLError is returned by Normalize for input that cannot be turned
// into an absolute URL.
type MalformedURLError struct {
	Raw   string
	Cause error
}

func (e *MalformedURLError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("malformed url %q", e.Raw)
	}
	return fmt.Sprintf("malformed url %q: %v", e.Raw, e.Cause)
}

func (e *MalformedURLError) Unwrap() error { return e.Cause }

func asAnalysisError(rawURL string, err error) *AnalysisError {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae
	}
	return &AnalysisError{URL: rawURL, Cause: err}
}

func asRenderError(rawURL string, err error) *RenderError {
	var re *RenderError
	if errors.As(err, &re) {
		return re
	}
	return &RenderError{URL: rawURL, Cause: err}
}
