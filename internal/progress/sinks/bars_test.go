package sinks

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ehound/internal/progress"
)

func TestBarSinkTracksChapters(t *testing.T) {
	t.Parallel()

	// Arrange
	sink := NewBarSink(io.Discard)
	run := progress.NewRunID()
	now := time.Now()

	// Act
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: run, TS: now, Stage: progress.StageBookStart, Book: "a", Total: 5},
		{RunID: run, TS: now, Stage: progress.StageBookStart, Book: "b", Total: 5},
		{RunID: run, TS: now, Stage: progress.StageChapterDone, Book: "a", URL: "u1"},
		{RunID: run, TS: now, Stage: progress.StageChapterError, Book: "a", URL: "u2"},
	}))
	a := sink.bars[runKey{run: run, book: "a"}]
	b := sink.bars[runKey{run: run, book: "b"}]
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: run, TS: now, Stage: progress.StageBookDone, Book: "a"},
	}))
	require.Len(t, sink.bars, 1)
	require.NoError(t, sink.Close(context.Background()))

	// Assert
	require.Empty(t, sink.bars)
	require.Equal(t, int64(2), a.Current())
	require.True(t, a.Completed())
	require.False(t, a.Aborted())
	require.True(t, b.Aborted())
}
