package library

import (
	"sync"

	"github.com/JakeFAU/ehound/internal/source"
)

// BookName identifies a book. Names compare by exact string equality.
type BookName string

// Book is one serialized work and the chapters archived so far.
type Book struct {
	Name  BookName
	Index *source.Source

	mu       sync.RWMutex
	chapters map[uint16]*Chapter
	visual   *bool
	position cursor
}

// NewBook creates an empty book whose index page is index. It has no position until
// Seek lands on a stored chapter.
func NewBook(name BookName, index *source.Source) *Book {
	return &Book{
		Name:     name,
		Index:    index,
		chapters: make(map[uint16]*Chapter),
	}
}

// Visual returns the cached classification. ok is false until classified.
func (b *Book) Visual() (visual bool, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.visual == nil {
		return false, false
	}
	return *b.visual, true
}

// SetVisual caches the classification.
func (b *Book) SetVisual(visual bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.visual = &visual
}

// AddChapter stores ch under its derived number, replacing any previous chapter with the
// same number.
func (b *Book) AddChapter(ch *Chapter) {
	n := ch.Number()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chapters[n] = ch
}

// RemoveChapter deletes chapter n. The position is left as is.
func (b *Book) RemoveChapter(n uint16) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.chapters[n]; !ok {
		return false
	}
	delete(b.chapters, n)
	return true
}

// Len returns the number of chapters.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chapters)
}

// Chapter looks up chapter n without moving the position.
func (b *Book) Chapter(n uint16) (*Chapter, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ch, ok := b.chapters[n]
	return ch, ok
}

// ChapterNumbers returns the known chapter numbers in ascending order.
func (b *Book) ChapterNumbers() []uint16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedKeys(b.chapters)
}

// Chapters returns the chapters ordered by number.
func (b *Book) Chapters() []*Chapter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Chapter, 0, len(b.chapters))
	for _, k := range sortedKeys(b.chapters) {
		out = append(out, b.chapters[k])
	}
	return out
}

// Latest returns the highest-numbered chapter.
func (b *Book) Latest() (*Chapter, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := sortedKeys(b.chapters)
	if len(keys) == 0 {
		return nil, false
	}
	return b.chapters[keys[len(keys)-1]], true
}

// Seek moves to chapter n when it exists and returns it.
func (b *Book) Seek(n uint16) (*Chapter, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.chapters[n]
	if ok {
		b.position = cursor{key: n, set: true}
	}
	return ch, ok
}

// Current returns the chapter at the position. It reports false when the position was
// never set or points at a chapter that is not stored.
func (b *Book) Current() (*Chapter, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.position.set {
		return nil, false
	}
	ch, ok := b.chapters[b.position.key]
	return ch, ok
}

// Position returns the current chapter number, if any.
func (b *Book) Position() (uint16, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.position.key, b.position.set
}

// Next moves to the following chapter.
func (b *Book) Next() (*Chapter, bool) {
	return b.move(cursor.after)
}

// Prev moves to the preceding chapter.
func (b *Book) Prev() (*Chapter, bool) {
	return b.move(cursor.before)
}

func (b *Book) move(step func(cursor, []uint16) (uint16, bool)) (*Chapter, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k, ok := step(b.position, sortedKeys(b.chapters))
	if !ok {
		return nil, false
	}
	b.position = cursor{key: k, set: true}
	return b.chapters[k], true
}
