// Package progress defines the event structures emitted by the crawl engine.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageCrawlStart   Stage = "CRAWL_START"
	StagePageAnalyzed Stage = "PAGE_ANALYZED"
	StagePageFailed   Stage = "PAGE_FAILED"
	StageRenderFailed Stage = "RENDER_FAILED"
	StageCrawlDone    Stage = "CRAWL_DONE"
	StageCrawlError   Stage = "CRAWL_ERROR"
)

// Event captures a single component of crawl progress.
type Event struct {
	// CrawlID identifies one crawl run using the 16-byte UUID form.
	CrawlID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or page milestone occurred.
	Stage Stage
	// URL is the page the event refers to; empty for crawl lifecycle stages.
	URL string
	// Depth is the page depth counted from the start URL.
	Depth int
	// Errors, Warnings and Notices carry the per-severity issue counts of an
	// analyzed page.
	Errors   int
	Warnings int
	Notices  int
	// Pages is the number of pages analyzed so far; set on CRAWL_DONE.
	Pages int64
	// Dur captures analysis latency for pages and wall time for crawls.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.CrawlID == [16]byte{} {
		return errors.New("crawl id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCrawlStart, StageCrawlDone, StageCrawlError:
	case StagePageAnalyzed, StagePageFailed, StageRenderFailed:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Depth < 0 {
		return errors.New("depth must be >= 0")
	}
	return nil
}

// CrawlUUID converts the binary crawl ID to uuid.UUID.
func (e Event) CrawlUUID() uuid.UUID {
	return uuid.UUID(e.CrawlID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// Nop is an Emitter that discards every event.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}
