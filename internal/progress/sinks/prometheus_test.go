package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/a11ycrawl/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	crawlID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{CrawlID: crawlID, TS: now, Stage: progress.StageCrawlStart},
		{
			CrawlID:  crawlID,
			TS:       now.Add(time.Second),
			Stage:    progress.StagePageAnalyzed,
			URL:      "https://example.com",
			Errors:   3,
			Warnings: 2,
			Notices:  1,
			Dur:      800 * time.Millisecond,
		},
		{CrawlID: crawlID, TS: now.Add(2 * time.Second), Stage: progress.StagePageFailed, URL: "https://example.com/slow"},
		{CrawlID: crawlID, TS: now.Add(3 * time.Second), Stage: progress.StageRenderFailed, URL: "https://example.com/a"},
		{CrawlID: crawlID, TS: now.Add(4 * time.Second), Stage: progress.StageCrawlDone, Dur: 4 * time.Second, Pages: 1},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.crawlsStarted), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.crawlsCompleted.WithLabelValues("success")), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.crawlsCompleted.WithLabelValues("error")), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.crawlsRunning), 1e-9)

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pages.WithLabelValues("analyzed")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pages.WithLabelValues("analysis_failed")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pages.WithLabelValues("render_failed")), 1e-9)
	require.InDelta(t, 3.0, testutil.ToFloat64(sink.issues.WithLabelValues("error")), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.issues.WithLabelValues("warning")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.issues.WithLabelValues("notice")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.pageDuration, "a11ycrawl_page_analysis_seconds"))
}

func TestPrometheusSinkTracksRunningCrawls(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	first := progress.UUIDToBytes(uuid.New())
	second := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{CrawlID: first, TS: now, Stage: progress.StageCrawlStart},
		{CrawlID: first, TS: now, Stage: progress.StageCrawlStart},
		{CrawlID: second, TS: now, Stage: progress.StageCrawlStart},
	}))
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.crawlsRunning), 1e-9)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{CrawlID: second, TS: now, Stage: progress.StageCrawlError, Note: "setup renderer"},
	}))
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.crawlsRunning), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.crawlsCompleted.WithLabelValues("error")), 1e-9)
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
