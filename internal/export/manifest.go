package export

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/ehound/internal/library"
)

// Manifest is a read-only view of the library structure.
type Manifest struct {
	Books []BookEntry `yaml:"books" json:"books"`
}

// BookEntry summarizes one book.
type BookEntry struct {
	Name     string         `yaml:"name" json:"name"`
	Index    string         `yaml:"index" json:"index"`
	Kind     string         `yaml:"kind" json:"kind"`
	Position *uint16        `yaml:"position,omitempty" json:"position,omitempty"`
	Chapters []ChapterEntry `yaml:"chapters" json:"chapters"`
}

// ChapterEntry summarizes one chapter.
type ChapterEntry struct {
	Number   uint16 `yaml:"number" json:"number"`
	Page     string `yaml:"page" json:"page"`
	Contents int    `yaml:"contents" json:"contents"`
}

// Kind labels used in manifests.
const (
	KindImage   = "image"
	KindText    = "text"
	KindUnknown = "unknown"
)

// DescribeBook builds the manifest entry for b.
func DescribeBook(b *library.Book) BookEntry {
	entry := BookEntry{
		Name:     string(b.Name),
		Index:    b.Index.Location(),
		Kind:     KindUnknown,
		Chapters: []ChapterEntry{},
	}
	if visual, ok := b.Visual(); ok {
		entry.Kind = KindText
		if visual {
			entry.Kind = KindImage
		}
	}
	if pos, ok := b.Position(); ok {
		entry.Position = &pos
	}
	for _, n := range b.ChapterNumbers() {
		ch, ok := b.Chapter(n)
		if !ok {
			continue
		}
		entry.Chapters = append(entry.Chapters, ChapterEntry{
			Number:   n,
			Page:     ch.Page.Location(),
			Contents: ch.Len(),
		})
	}
	return entry
}

// BuildManifest describes every book in name order.
func BuildManifest(lib *library.Library) Manifest {
	m := Manifest{Books: []BookEntry{}}
	for _, name := range lib.Names() {
		b, ok := lib.Book(name)
		if !ok {
			continue
		}
		m.Books = append(m.Books, DescribeBook(b))
	}
	return m
}

// WriteManifest encodes the library manifest as YAML.
func WriteManifest(w io.Writer, lib *library.Library) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(BuildManifest(lib)); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush manifest: %w", err)
	}
	return nil
}
