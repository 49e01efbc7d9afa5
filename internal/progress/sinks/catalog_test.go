package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ehound/internal/progress"
	"github.com/JakeFAU/ehound/internal/storage/postgres"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordChapters(ctx context.Context, records []postgres.ChapterRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func TestCatalogSinkCollapsesChapters(t *testing.T) {
	t.Parallel()

	// Arrange
	rec := new(mockRecorder)
	sink := NewCatalogSink(rec)
	run := progress.NewRunID()
	t0 := time.Unix(1700000000, 0).UTC()
	rec.On("RecordChapters", mock.Anything, []postgres.ChapterRecord{
		{Book: "b", Chapter: 1, PageURL: "https://a.com/1-again", Contents: 5, ArchivedAt: t0.Add(time.Second)},
		{Book: "b", Chapter: 2, PageURL: "https://a.com/2", Contents: 7, ArchivedAt: t0},
	}).Return(nil)

	// Act
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: run, TS: t0, Stage: progress.StageBookStart, Book: "b"},
		{RunID: run, TS: t0, Stage: progress.StageChapterDone, Book: "b", Chapter: 1, URL: "https://a.com/1", Contents: 4},
		{RunID: run, TS: t0, Stage: progress.StageChapterDone, Book: "b", Chapter: 2, URL: "https://a.com/2", Contents: 7},
		{RunID: run, TS: t0.Add(time.Second), Stage: progress.StageChapterDone, Book: "b", Chapter: 1, URL: "https://a.com/1-again", Contents: 5},
		{RunID: run, TS: t0, Stage: progress.StageChapterError, Book: "b", Chapter: 3, URL: "https://a.com/3"},
	})

	// Assert
	require.NoError(t, err)
	rec.AssertExpectations(t)
}

func TestCatalogSinkSkipsEmptyBatches(t *testing.T) {
	t.Parallel()

	rec := new(mockRecorder)
	sink := NewCatalogSink(rec)

	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.NewRunID(), TS: time.Now(), Stage: progress.StageBookDone, Book: "b"},
	})

	require.NoError(t, err)
	rec.AssertNotCalled(t, "RecordChapters", mock.Anything, mock.Anything)
}

func TestCatalogSinkWrapsErrors(t *testing.T) {
	t.Parallel()

	rec := new(mockRecorder)
	rec.On("RecordChapters", mock.Anything, mock.Anything).Return(errors.New("db down"))
	sink := NewCatalogSink(rec)

	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.NewRunID(), TS: time.Now(), Stage: progress.StageChapterDone, Book: "b", URL: "u"},
	})

	require.ErrorContains(t, err, "record chapters: db down")
}
