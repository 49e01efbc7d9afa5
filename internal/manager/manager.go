// Package manager drives archive runs. It adds books from a starting chapter URL,
// refreshes known books by walking their "next" links, hands every visited page to
// the retriever, and folds the resulting chapters into the library.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/ehound/internal/downloader"
	"github.com/JakeFAU/ehound/internal/library"
	"github.com/JakeFAU/ehound/internal/progress"
	"github.com/JakeFAU/ehound/internal/retriever"
	"github.com/JakeFAU/ehound/internal/source"
)

const (
	defaultBookParallelism    = 2
	defaultChapterParallelism = 4
)

// Predicates reports the "next" link text for a host. ratelimit.Limiter
// satisfies it.
type Predicates interface {
	Next(host string) string
}

// StatePaths names the three files Save and Load work with.
type StatePaths struct {
	Downloader string
	Retriever  string
	Library    string
}

// Config tunes a Manager.
type Config struct {
	BookParallelism    int
	ChapterParallelism int
	Classifier         source.Classifier
	State              StatePaths
}

// Manager owns the library and coordinates loader, retriever and downloader state.
// Mutating operations (AddBook, Refresh, Load) are serialized.
type Manager struct {
	loader     *source.Loader
	retriever  *retriever.Retriever
	downloader *downloader.State
	predicates Predicates
	lib        *library.Library
	events     progress.Emitter
	cfg        Config
	logger     *zap.Logger

	opMu sync.Mutex
}

// New constructs a Manager with an empty library.
func New(
	loader *source.Loader,
	ret *retriever.Retriever,
	dl *downloader.State,
	predicates Predicates,
	events progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = progress.Discard
	}
	if dl == nil {
		dl = downloader.New()
	}
	if cfg.BookParallelism <= 0 {
		cfg.BookParallelism = defaultBookParallelism
	}
	if cfg.ChapterParallelism <= 0 {
		cfg.ChapterParallelism = defaultChapterParallelism
	}
	return &Manager{
		loader:     loader,
		retriever:  ret,
		downloader: dl,
		predicates: predicates,
		lib:        library.New(),
		events:     events,
		cfg:        cfg,
		logger:     logger,
	}
}

// Library exposes the archive model for navigation.
func (m *Manager) Library() *library.Library { return m.lib }

// Downloader exposes the header-group state.
func (m *Manager) Downloader() *downloader.State { return m.downloader }

// Retriever exposes the retriever, mainly for its header table.
func (m *Manager) Retriever() *retriever.Retriever { return m.retriever }

// AddBook archives the book that rawURL belongs to. The name is taken from the page
// title when name is nil. The walk starts at rawURL and follows "next" links; every
// visited page becomes a chapter. It returns the book and the number of chapters
// archived.
func (m *Manager) AddBook(ctx context.Context, name *library.BookName, rawURL string) (*library.Book, int, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	start, err := m.loader.Fetch(ctx, rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("add book: %w", err)
	}
	bookName, err := m.nameFor(name, start)
	if err != nil {
		return nil, 0, fmt.Errorf("add book: %w", err)
	}
	index, err := start.ResolveIndex()
	if err != nil {
		return nil, 0, fmt.Errorf("add book: %w", err)
	}
	book := library.NewBook(bookName, index)
	book.SetVisual(m.classify(ctx, index, start))

	run := progress.NewRunID()
	began := time.Now()
	visited := newVisitSet()
	pages := m.walk(ctx, start, visited)
	m.emit(run, progress.Event{Stage: progress.StageBookStart, Book: string(bookName), Total: len(pages)})
	count := m.materialize(ctx, run, book, pages)
	m.emit(run, progress.Event{Stage: progress.StageBookDone, Book: string(bookName), Total: count, Dur: time.Since(began)})

	if err := ctx.Err(); err != nil {
		return nil, count, fmt.Errorf("add book: %w", err)
	}
	// The position stays unset when the start chapter could not be archived.
	book.Seek(start.Place().Chapter)
	m.lib.Add(book)
	m.logger.Info("Book added",
		zap.String("book", string(bookName)),
		zap.String("index", index.Location()),
		zap.Int("chapters", count),
	)
	return book, count, nil
}

func (m *Manager) nameFor(name *library.BookName, start *source.Source) (library.BookName, error) {
	if name != nil && *name != "" {
		return *name, nil
	}
	title, err := start.Title()
	if err == nil {
		return library.BookName(title), nil
	}
	if slug := start.Place().Slug; slug != "" {
		m.logger.Debug("Falling back to slug for book name", zap.String("slug", slug), zap.Error(err))
		return library.BookName(slug), nil
	}
	return "", err
}

// classify decides the book's visual mode from its index page. When the index
// cannot be fetched the starting page is classified instead.
func (m *Manager) classify(ctx context.Context, index, fallback *source.Source) bool {
	page, err := m.loader.Refresh(ctx, index, "")
	if err != nil {
		m.logger.Warn("Index unavailable, classifying start page",
			zap.String("index", index.Location()),
			zap.Error(err),
		)
		page = fallback
	}
	return page.ClassifyVisual(m.cfg.Classifier)
}

// Refresh walks every book from its index links and latest chapter and archives
// every page it reaches. Books run concurrently. It returns the number of chapters
// processed across all books; per-page failures are logged and skipped.
func (m *Manager) Refresh(ctx context.Context) (int, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	run := progress.NewRunID()
	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.BookParallelism)
	for _, book := range m.lib.Books() {
		g.Go(func() error {
			total.Add(int64(m.refreshBook(gctx, run, book)))
			return nil
		})
	}
	_ = g.Wait()
	n := int(total.Load())
	if err := ctx.Err(); err != nil {
		return n, fmt.Errorf("refresh: %w", err)
	}
	m.logger.Info("Refresh complete", zap.Int("chapters", n), zap.Int("books", m.lib.Len()))
	return n, nil
}

func (m *Manager) refreshBook(ctx context.Context, run [16]byte, book *library.Book) int {
	began := time.Now()
	logger := m.logger.With(zap.String("book", string(book.Name)))

	index, err := m.loader.Refresh(ctx, book.Index, "")
	if err != nil {
		logger.Warn("Index fetch failed", zap.String("url", book.Index.Location()), zap.Error(err))
		index = nil
	}
	if _, ok := book.Visual(); !ok && index != nil {
		book.SetVisual(index.ClassifyVisual(m.cfg.Classifier))
	}

	visited := newVisitSet()
	var pages []*source.Source
	for _, seed := range m.seeds(index, book, logger) {
		if visited.has(seed) {
			continue
		}
		start, err := m.loader.Fetch(ctx, seed)
		if err != nil {
			logger.Warn("Seed fetch failed", zap.String("url", seed), zap.Error(err))
			continue
		}
		pages = append(pages, m.walk(ctx, start, visited)...)
	}

	m.emit(run, progress.Event{Stage: progress.StageBookStart, Book: string(book.Name), Total: len(pages)})
	count := m.materialize(ctx, run, book, pages)
	m.emit(run, progress.Event{Stage: progress.StageBookDone, Book: string(book.Name), Total: count, Dur: time.Since(began)})
	return count
}

// seeds lists the walk starting points: the index's chapter links followed by the
// highest known chapter's page.
func (m *Manager) seeds(index *source.Source, book *library.Book, logger *zap.Logger) []string {
	var out []string
	if index != nil {
		links, err := index.ExtractChapterLinks()
		if err != nil {
			logger.Warn("No chapter links on index", zap.String("url", index.Location()), zap.Error(err))
		}
		out = append(out, links...)
	}
	if latest, ok := book.Latest(); ok && latest.Page != nil {
		out = append(out, latest.Page.Location())
	}
	return out
}

// walk follows "next" links from start until none is found or the next page was
// already visited. Links are checked against visited before they are fetched.
func (m *Manager) walk(ctx context.Context, start *source.Source, visited *visitSet) []*source.Source {
	var pages []*source.Source
	cur := start
	for cur != nil {
		if !visited.add(cur.Location()) {
			break
		}
		pages = append(pages, cur)
		if ctx.Err() != nil {
			break
		}
		next, ok := cur.NextLink(m.predicate(cur.Host()))
		if !ok || visited.has(next) {
			break
		}
		page, err := m.loader.Fetch(ctx, next)
		if err != nil {
			m.logger.Warn("Next page fetch failed", zap.String("url", next), zap.Error(err))
			break
		}
		cur = page
	}
	return pages
}

func (m *Manager) predicate(host string) string {
	if m.predicates == nil {
		return "Next"
	}
	return m.predicates.Next(host)
}

// materialize archives pages concurrently and adds each chapter to book. It
// returns how many chapters were archived.
func (m *Manager) materialize(ctx context.Context, run [16]byte, book *library.Book, pages []*source.Source) int {
	var visualHint *bool
	if v, ok := book.Visual(); ok {
		visualHint = &v
	}
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.ChapterParallelism)
	for _, page := range pages {
		g.Go(func() error {
			began := time.Now()
			ch, err := m.retriever.Chapter(gctx, book.Name, page, visualHint)
			evt := progress.Event{
				Book:    string(book.Name),
				Chapter: page.Place().Chapter,
				Site:    page.Host(),
				URL:     page.Location(),
				Dur:     time.Since(began),
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				m.logger.Warn("Skipping chapter",
					zap.String("book", string(book.Name)),
					zap.String("url", page.Location()),
					zap.Error(err),
				)
				evt.Stage = progress.StageChapterError
				evt.Note = err.Error()
				m.emit(run, evt)
				return nil
			}
			book.AddChapter(ch)
			done.Add(1)
			evt.Stage = progress.StageChapterDone
			evt.Contents = ch.Len()
			m.emit(run, evt)
			return nil
		})
	}
	_ = g.Wait()
	return int(done.Load())
}

func (m *Manager) emit(run [16]byte, evt progress.Event) {
	evt.RunID = run
	evt.TS = time.Now().UTC()
	m.events.Emit(evt)
}
