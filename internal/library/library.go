// Package library holds the archive model: a library of books, each made of chapters,
// each made of saved content units. Positions are remembered per book and per chapter so
// reading can resume; a position whose entry was removed reads as "no current item".
package library

import (
	"sort"
	"sync"
)

// Library owns every Book, keyed by name.
type Library struct {
	mu    sync.RWMutex
	books map[BookName]*Book
}

// New returns an empty Library.
func New() *Library {
	return &Library{books: make(map[BookName]*Book)}
}

// Add stores b, replacing any book with the same name.
func (l *Library) Add(b *Book) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.books[b.Name] = b
}

// Book looks up a book by name.
func (l *Library) Book(name BookName) (*Book, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.books[name]
	return b, ok
}

// Remove deletes the named book.
func (l *Library) Remove(name BookName) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.books[name]; !ok {
		return false
	}
	delete(l.books, name)
	return true
}

// Len returns the number of books.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.books)
}

// Names returns the book names in ascending order.
func (l *Library) Names() []BookName {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]BookName, 0, len(l.books))
	for name := range l.books {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Books returns the books ordered by name.
func (l *Library) Books() []*Book {
	names := l.Names()
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Book, 0, len(names))
	for _, name := range names {
		if b, ok := l.books[name]; ok {
			out = append(out, b)
		}
	}
	return out
}

// Replace swaps in the contents of other in one step.
func (l *Library) Replace(other *Library) {
	other.mu.RLock()
	books := make(map[BookName]*Book, len(other.books))
	for k, v := range other.books {
		books[k] = v
	}
	other.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.books = books
}
