package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/a11ycrawl/internal/progress"
)

func TestLogSinkLevelsAndFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	id := uuid.New()
	crawlID := progress.UUIDToBytes(id)
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{CrawlID: crawlID, TS: now, Stage: progress.StagePageAnalyzed, URL: "https://ex.com", Errors: 2},
		{CrawlID: crawlID, TS: now, Stage: progress.StagePageFailed, URL: "https://ex.com/slow", Note: "timeout"},
		{CrawlID: crawlID, TS: now, Stage: progress.StageCrawlError, Note: "setup"},
	}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 3)

	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	ctx := entries[0].ContextMap()
	require.Equal(t, id.String(), ctx["crawl_id"])
	require.Equal(t, "https://ex.com", ctx["url"])
	require.EqualValues(t, 2, ctx["errors"])

	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "timeout", entries[1].ContextMap()["note"])

	require.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}
