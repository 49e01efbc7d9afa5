package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ehound/internal/library"
	"github.com/JakeFAU/ehound/internal/source"
	"github.com/JakeFAU/ehound/internal/storage/memory"
)

func tinyJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// archiveBook stores pages units per chapter in store and returns the book.
func archiveBook(t *testing.T, store *memory.BlobStore, name library.BookName, visual bool, chapters, pages int, body func(ch, p int) []byte) *library.Book {
	t.Helper()
	index, err := source.New("https://site.test/solo")
	require.NoError(t, err)
	book := library.NewBook(name, index)
	book.SetVisual(visual)
	for c := 1; c <= chapters; c++ {
		page, err := source.New(fmt.Sprintf("https://site.test/solo/chapter-%d", c))
		require.NoError(t, err)
		ch := library.NewChapter(page)
		dir := library.ChapterDir(name, uint16(c))
		for p := 1; p <= pages; p++ {
			path := library.ContentPath(dir, uint16(p), visual)
			uri, err := store.PutObject(context.Background(), path, "application/octet-stream", bytes.NewReader(body(c, p)))
			require.NoError(t, err)
			ch.AddContent(library.Content{Number: uint16(p), Path: path, URI: uri})
		}
		book.AddChapter(ch)
	}
	book.Seek(1)
	return book
}

func readEPUB(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() {
		_ = r.Close()
	}()
	files := make(map[string]string, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		files[f.Name] = string(data)
	}
	return files
}

func TestExportImageBook(t *testing.T) {
	t.Parallel()

	// Arrange
	store := memory.NewBlobStore()
	jpg := tinyJPEG(t)
	book := archiveBook(t, store, "Solo Leveling", true, 2, 3, func(int, int) []byte { return jpg })
	x := NewExporter(store, Config{}, zap.NewNop())

	// Act
	out, err := x.Export(context.Background(), book, t.TempDir())

	// Assert
	require.NoError(t, err)
	require.Equal(t, "Solo Leveling.epub", filepath.Base(out))
	files := readEPUB(t, out)
	require.Equal(t, "application/epub+zip", files["mimetype"])
	images := 0
	for name := range files {
		if strings.HasSuffix(name, ".jpg") {
			images++
		}
	}
	require.Equal(t, 6, images)
}

func TestExportTextBookEscapesParagraphs(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	book := archiveBook(t, store, "Novel", false, 1, 1, func(int, int) []byte {
		return []byte("First line\n\nFish & <chips>\n")
	})
	x := NewExporter(store, Config{Author: "someone"}, nil)

	out, err := x.Export(context.Background(), book, t.TempDir())

	require.NoError(t, err)
	var joined strings.Builder
	for name, body := range readEPUB(t, out) {
		if strings.HasSuffix(name, ".xhtml") {
			joined.WriteString(body)
		}
	}
	require.Contains(t, joined.String(), "<p>First line</p>")
	require.Contains(t, joined.String(), "<p>Fish &amp; &lt;chips&gt;</p>")
	require.Contains(t, joined.String(), "Chapter 1")
}

func TestExportSkipsUnreadableChapters(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	book := archiveBook(t, store, "Novel", false, 2, 1, func(c, _ int) []byte {
		return []byte(fmt.Sprintf("chapter %d text", c))
	})
	page, err := source.New("https://site.test/solo/chapter-3")
	require.NoError(t, err)
	missing := library.NewChapter(page)
	missing.AddContent(library.Content{Number: 1, Path: "Novel/3/1.txt"})
	book.AddChapter(missing)

	out, err := NewExporter(store, Config{}, nil).Export(context.Background(), book, t.TempDir())

	require.NoError(t, err)
	var joined strings.Builder
	for _, body := range readEPUB(t, out) {
		joined.WriteString(body)
	}
	require.Contains(t, joined.String(), "chapter 2 text")
	require.NotContains(t, joined.String(), "Chapter 3</h1>")
}

func TestExportNothingToExport(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	index, err := source.New("https://site.test/solo")
	require.NoError(t, err)

	_, err = NewExporter(store, Config{}, nil).Export(context.Background(), library.NewBook("Empty", index), t.TempDir())
	require.ErrorIs(t, err, ErrNothingToExport)

	_, err = NewExporter(store, Config{}, nil).Export(context.Background(), nil, t.TempDir())
	require.EqualError(t, err, "book is required")
}
