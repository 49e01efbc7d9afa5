package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/ehound/internal/progress"
)

// PrometheusSink exports archive progress via Prometheus collectors.
type PrometheusSink struct {
	booksStarted  prometheus.Counter
	booksRunning  prometheus.Gauge
	bookRuntime   prometheus.Histogram
	chapters      *prometheus.CounterVec
	contents      *prometheus.CounterVec
	chapterLength prometheus.Histogram

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		booksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ehound_books_started_total",
			Help: "Book add or refresh runs that have started.",
		}),
		booksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ehound_books_running",
			Help: "Books currently being walked or materialized.",
		}),
		bookRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ehound_book_runtime_seconds",
			Help:    "Wall time per book run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		chapters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ehound_chapters_total",
			Help: "Chapters processed partitioned by site and result.",
		}, []string{"site", "result"}),
		contents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ehound_contents_saved_total",
			Help: "Content units (images or text files) saved per site.",
		}, []string{"site"}),
		chapterLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ehound_chapter_duration_seconds",
			Help:    "Time spent materializing one chapter.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.booksStarted,
		s.booksRunning,
		s.bookRuntime,
		s.chapters,
		s.contents,
		s.chapterLength,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageBookStart:
		s.booksStarted.Inc()
		if s.tracker.start(evt.RunID, evt.Book) {
			s.booksRunning.Inc()
		}
	case progress.StageBookDone:
		if evt.Dur > 0 {
			s.bookRuntime.Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID, evt.Book) {
			s.booksRunning.Dec()
		}
	case progress.StageChapterDone:
		site := siteLabel(evt.Site)
		s.chapters.WithLabelValues(site, "success").Inc()
		if evt.Contents > 0 {
			s.contents.WithLabelValues(site).Add(float64(evt.Contents))
		}
		if evt.Dur > 0 {
			s.chapterLength.Observe(evt.Dur.Seconds())
		}
	case progress.StageChapterError:
		s.chapters.WithLabelValues(siteLabel(evt.Site), "error").Inc()
	}
}

func siteLabel(site string) string {
	if site == "" {
		return "unknown"
	}
	return site
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runKey struct {
	run  [16]byte
	book string
}

type runTracker struct {
	mu      sync.Mutex
	running map[runKey]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[runKey]struct{})}
}

func (t *runTracker) start(run [16]byte, book string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := runKey{run: run, book: book}
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *runTracker) complete(run [16]byte, book string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := runKey{run: run, book: book}
	if _, ok := t.running[key]; !ok {
		return false
	}
	delete(t.running, key)
	return true
}
