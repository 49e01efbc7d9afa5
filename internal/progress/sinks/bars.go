package sinks

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/JakeFAU/ehound/internal/progress"
)

// BarSink renders one terminal progress bar per book run.
type BarSink struct {
	p *mpb.Progress

	mu   sync.Mutex
	bars map[runKey]*mpb.Bar
}

// NewBarSink renders bars to w; nil means stdout.
func NewBarSink(w io.Writer) *BarSink {
	if w == nil {
		w = os.Stdout
	}
	return &BarSink{
		p: mpb.New(
			mpb.WithWidth(52),
			mpb.WithOutput(w),
			mpb.WithRefreshRate(120*time.Millisecond),
		),
		bars: make(map[runKey]*mpb.Bar),
	}
}

// Consume advances bars from the batch.
func (s *BarSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		key := runKey{run: evt.RunID, book: evt.Book}
		switch evt.Stage {
		case progress.StageBookStart:
			if _, ok := s.bars[key]; !ok {
				s.bars[key] = s.newBar(evt.Book, evt.Total)
			}
		case progress.StageChapterDone, progress.StageChapterError:
			if bar, ok := s.bars[key]; ok {
				bar.Increment()
			}
		case progress.StageBookDone:
			if bar, ok := s.bars[key]; ok {
				bar.SetTotal(-1, true)
				delete(s.bars, key)
			}
		}
	}
	return nil
}

func (s *BarSink) newBar(book string, total int) *mpb.Bar {
	return s.p.New(
		int64(total),
		mpb.BarStyle().Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(book+"  "),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncWidth),
			decor.CountersNoUnit(" | %d/%d chapters", decor.WCSyncWidth),
			decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 6}),
		),
	)
}

// Close aborts bars whose book never finished and waits for the final render.
// Finished books leave the map on BOOK_DONE, so their bars stay completed.
func (s *BarSink) Close(context.Context) error {
	s.mu.Lock()
	for key, bar := range s.bars {
		bar.Abort(false)
		delete(s.bars, key)
	}
	s.mu.Unlock()
	s.p.Wait()
	return nil
}
