package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageChapterDone))
	hub.Emit(sampleEvent(StageChapterDone))

	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageBookStart))

	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		events:  make(chan Event),
		logger:  zap.NewNop(),
		dropLog: throttle{interval: time.Hour},
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageBookStart))
	hub.Emit(sampleEvent(StageBookStart))

	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, int64(1), hub.Dropped())
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)

	hub.Emit(Event{RunID: NewRunID(), TS: time.Now(), Stage: StageChapterDone, Book: "b"})
	hub.Emit(Event{RunID: NewRunID(), TS: time.Now(), Stage: "NOPE", Book: "b"})
	require.NoError(t, hub.Close(context.Background()))

	require.Empty(t, sink.Batches())
	require.True(t, sink.closed)
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageBookDone))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)

	hub.Emit(sampleEvent(StageBookDone))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	id := NewRunID()
	tests := []struct {
		name    string
		evt     Event
		wantErr string
	}{
		{name: "book start", evt: Event{RunID: id, TS: now, Stage: StageBookStart, Book: "b"}},
		{name: "chapter done", evt: Event{RunID: id, TS: now, Stage: StageChapterDone, Book: "b", URL: "https://a.com/1"}},
		{name: "missing run", evt: Event{TS: now, Stage: StageBookStart, Book: "b"}, wantErr: "run id"},
		{name: "missing ts", evt: Event{RunID: id, Stage: StageBookStart, Book: "b"}, wantErr: "timestamp"},
		{name: "missing book", evt: Event{RunID: id, TS: now, Stage: StageBookStart}, wantErr: "book"},
		{name: "chapter without url", evt: Event{RunID: id, TS: now, Stage: StageChapterError, Book: "b"}, wantErr: "requires url"},
		{name: "negative duration", evt: Event{RunID: id, TS: now, Stage: StageBookDone, Book: "b", Dur: -1}, wantErr: "duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.evt.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(stage Stage) Event {
	return Event{
		RunID: NewRunID(),
		TS:    time.Now(),
		Stage: stage,
		Book:  "Solo Leveling",
		URL:   "https://readmanganato.com/manga-abc123/chapter-45",
	}
}
