// Package crawler implements the single-origin crawl orchestrator: URL
// normalization and exclusion, the breadth-first frontier with its visited
// set, and the batch scheduler that feeds pages to an accessibility analyzer
// and a link extractor. Rendering and analysis engines are collaborators
// defined by the interfaces in this package and implemented elsewhere.
package crawler
