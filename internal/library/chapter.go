package library

import (
	"sync"

	"github.com/JakeFAU/ehound/internal/source"
)

// Content is one saved unit: a single image, or the text of one page.
type Content struct {
	Number uint16 `json:"number"`
	// Path locates the unit relative to the cache root.
	Path string `json:"path"`
	// URI is where the blob store put it.
	URI string `json:"uri,omitempty"`
}

// Chapter holds the content extracted from one page, keyed by page number.
type Chapter struct {
	Page *source.Source

	mu       sync.RWMutex
	content  map[uint16]Content
	position cursor
}

// NewChapter creates an empty chapter for page.
func NewChapter(page *source.Source) *Chapter {
	return &Chapter{Page: page, content: make(map[uint16]Content)}
}

// Number is the chapter number derived from the page location.
func (c *Chapter) Number() uint16 {
	return c.Page.Place().Chapter
}

// AddContent stores u, replacing any unit with the same number.
func (c *Chapter) AddContent(u Content) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content[u.Number] = u
}

// Len returns the number of stored units.
func (c *Chapter) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.content)
}

// Contents returns every unit ordered by number.
func (c *Chapter) Contents() []Content {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Content, 0, len(c.content))
	for _, k := range sortedKeys(c.content) {
		out = append(out, c.content[k])
	}
	return out
}

// Get returns unit n and makes it current when present.
func (c *Chapter) Get(n uint16) (Content, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.content[n]
	if ok {
		c.position = cursor{key: n, set: true}
	}
	return u, ok
}

// Current returns the unit at the current position. It reports false when no position
// has been set or the unit has since been removed.
func (c *Chapter) Current() (Content, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.position.set {
		return Content{}, false
	}
	u, ok := c.content[c.position.key]
	return u, ok
}

// Position returns the current page number, if any.
func (c *Chapter) Position() (uint16, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.position.key, c.position.set
}

// Next advances to the following unit.
func (c *Chapter) Next() (Content, bool) {
	return c.move(cursor.after)
}

// Prev steps back to the preceding unit.
func (c *Chapter) Prev() (Content, bool) {
	return c.move(cursor.before)
}

func (c *Chapter) move(step func(cursor, []uint16) (uint16, bool)) (Content, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := step(c.position, sortedKeys(c.content))
	if !ok {
		return Content{}, false
	}
	c.position = cursor{key: k, set: true}
	return c.content[k], true
}

func (c *Chapter) setPosition(n uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = cursor{key: n, set: true}
}
