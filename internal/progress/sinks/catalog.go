package sinks

import (
	"context"
	"fmt"

	"github.com/JakeFAU/ehound/internal/progress"
	"github.com/JakeFAU/ehound/internal/storage/postgres"
)

// ChapterRecorder persists archived chapters; postgres.Catalog satisfies it.
type ChapterRecorder interface {
	RecordChapters(ctx context.Context, records []postgres.ChapterRecord) error
}

// CatalogSink records every CHAPTER_DONE event as a catalog row.
type CatalogSink struct {
	recorder ChapterRecorder
}

// NewCatalogSink constructs a CatalogSink for recorder.
func NewCatalogSink(recorder ChapterRecorder) *CatalogSink {
	return &CatalogSink{recorder: recorder}
}

// Consume collapses the batch to one row per book and chapter, keeping the
// latest event, and upserts the rows in a single call.
func (s *CatalogSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.recorder == nil {
		return nil
	}
	type key struct {
		book    string
		chapter uint16
	}
	index := make(map[key]int)
	var records []postgres.ChapterRecord
	for _, evt := range batch {
		if evt.Stage != progress.StageChapterDone {
			continue
		}
		rec := postgres.ChapterRecord{
			Book:       evt.Book,
			Chapter:    evt.Chapter,
			PageURL:    evt.URL,
			Contents:   evt.Contents,
			ArchivedAt: evt.TS.UTC(),
		}
		k := key{book: evt.Book, chapter: evt.Chapter}
		if i, ok := index[k]; ok {
			if !rec.ArchivedAt.Before(records[i].ArchivedAt) {
				records[i] = rec
			}
			continue
		}
		index[k] = len(records)
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil
	}
	if err := s.recorder.RecordChapters(ctx, records); err != nil {
		return fmt.Errorf("record chapters: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *CatalogSink) Close(context.Context) error {
	return nil
}
