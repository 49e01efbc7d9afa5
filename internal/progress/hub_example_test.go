package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type contentCounter struct {
	total int
}

func (s *contentCounter) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		s.total += evt.Contents
	}
	return nil
}

func (s *contentCounter) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting a chapter event and flushing via Close.
func ExampleHub_Emit() {
	sink := &contentCounter{}
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Second}, sink)

	hub.Emit(Event{
		RunID:    UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001")),
		TS:       time.Unix(0, 0),
		Stage:    StageChapterDone,
		Book:     "Solo Leveling",
		Chapter:  45,
		URL:      "https://readmanganato.com/manga-abc123/chapter-45",
		Contents: 18,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("contents saved: %d\n", sink.total)
	// Output:
	// contents saved: 18
}
