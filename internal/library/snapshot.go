package library

import (
	"fmt"

	"github.com/JakeFAU/ehound/internal/crawlerr"
	"github.com/JakeFAU/ehound/internal/source"
	"github.com/JakeFAU/ehound/internal/statefile"
)

type snapshot struct {
	Books map[BookName]bookSnapshot `json:"books"`
}

type bookSnapshot struct {
	Index    string                     `json:"index"`
	Visual   *bool                      `json:"visual"`
	Position *uint16                    `json:"position"`
	Chapters map[uint16]chapterSnapshot `json:"chapters"`
}

type chapterSnapshot struct {
	Page     string             `json:"page"`
	Position *uint16            `json:"position"`
	Content  map[uint16]Content `json:"content"`
}

func positionPtr(c cursor) *uint16 {
	if !c.set {
		return nil
	}
	k := c.key
	return &k
}

// Save writes the library structure to path. Sources are stored by location only.
func (l *Library) Save(path string) error {
	snap := snapshot{Books: make(map[BookName]bookSnapshot)}
	for _, b := range l.Books() {
		b.mu.RLock()
		bs := bookSnapshot{
			Index:    b.Index.Location(),
			Visual:   b.visual,
			Position: positionPtr(b.position),
			Chapters: make(map[uint16]chapterSnapshot, len(b.chapters)),
		}
		for n, ch := range b.chapters {
			ch.mu.RLock()
			cs := chapterSnapshot{
				Page:     ch.Page.Location(),
				Position: positionPtr(ch.position),
				Content:  make(map[uint16]Content, len(ch.content)),
			}
			for k, u := range ch.content {
				cs.Content[k] = u
			}
			ch.mu.RUnlock()
			bs.Chapters[n] = cs
		}
		b.mu.RUnlock()
		snap.Books[b.Name] = bs
	}
	return statefile.Save(path, snap)
}

// Load reads a library written by Save. Every location is validated before a Library is
// returned.
func Load(path string) (*Library, error) {
	var snap snapshot
	if err := statefile.Load(path, &snap); err != nil {
		return nil, err
	}
	lib := New()
	for name, bs := range snap.Books {
		index, err := source.New(bs.Index)
		if err != nil {
			return nil, crawlerr.Corrupted(path, fmt.Errorf("book %q index: %w", name, err))
		}
		b := NewBook(name, index)
		if bs.Position != nil {
			b.position = cursor{key: *bs.Position, set: true}
		}
		if bs.Visual != nil {
			b.SetVisual(*bs.Visual)
		}
		for n, cs := range bs.Chapters {
			page, err := source.New(cs.Page)
			if err != nil {
				return nil, crawlerr.Corrupted(path, fmt.Errorf("book %q chapter %d: %w", name, n, err))
			}
			ch := NewChapter(page)
			for k, u := range cs.Content {
				u.Number = k
				ch.content[k] = u
			}
			if cs.Position != nil {
				ch.setPosition(*cs.Position)
			}
			// The stored key wins over the number derived from the page.
			b.chapters[n] = ch
		}
		lib.books[name] = b
	}
	return lib, nil
}
