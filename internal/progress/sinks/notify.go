package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/ehound/internal/progress"
	"github.com/JakeFAU/ehound/internal/publisher"
)

// ChapterArchived is the notification payload published per archived chapter.
type ChapterArchived struct {
	RunID      string    `json:"run_id"`
	Book       string    `json:"book"`
	Chapter    uint16    `json:"chapter"`
	URL        string    `json:"url"`
	Contents   int       `json:"contents"`
	ArchivedAt time.Time `json:"archived_at"`
}

// NotifySink publishes a ChapterArchived message for each CHAPTER_DONE event.
type NotifySink struct {
	pub   publisher.Publisher
	topic string
}

// NewNotifySink constructs a NotifySink publishing to topic.
func NewNotifySink(pub publisher.Publisher, topic string) *NotifySink {
	return &NotifySink{pub: pub, topic: topic}
}

// Consume publishes every archived chapter in the batch. A failed publish does
// not stop the rest of the batch; all failures are returned joined.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Stage != progress.StageChapterDone {
			continue
		}
		msg := ChapterArchived{
			RunID:      evt.RunUUID().String(),
			Book:       evt.Book,
			Chapter:    evt.Chapter,
			URL:        evt.URL,
			Contents:   evt.Contents,
			ArchivedAt: evt.TS.UTC(),
		}
		if _, err := s.pub.Publish(ctx, s.topic, msg); err != nil {
			errs = append(errs, fmt.Errorf("publish %s chapter %d: %w", evt.Book, evt.Chapter, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *NotifySink) Close(context.Context) error {
	return nil
}
