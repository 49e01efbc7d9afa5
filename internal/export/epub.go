// Package export packs archived books into EPUB files and dumps the library as YAML.
package export

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-epub"
	"go.uber.org/zap"

	"github.com/JakeFAU/ehound/internal/library"
	"github.com/JakeFAU/ehound/internal/storage"
)

// ErrNothingToExport is returned when a book has no archived content.
var ErrNothingToExport = errors.New("no archived chapters to export")

// Config tunes EPUB metadata.
type Config struct {
	Author string
	Lang   string
}

// Exporter builds EPUB files from content previously written to a blob store.
type Exporter struct {
	store  storage.BlobStore
	cfg    Config
	logger *zap.Logger
}

// NewExporter builds an Exporter reading from store.
func NewExporter(store storage.BlobStore, cfg Config, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Author == "" {
		cfg.Author = "ehound"
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	return &Exporter{store: store, cfg: cfg, logger: logger}
}

// Export writes book to <outDir>/<book>.epub and returns the file path. Chapters are
// added in number order; a chapter whose content cannot be read is skipped.
func (x *Exporter) Export(ctx context.Context, book *library.Book, outDir string) (string, error) {
	if book == nil {
		return "", errors.New("book is required")
	}
	chapters := book.Chapters()
	if len(chapters) == 0 {
		return "", ErrNothingToExport
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	// go-epub reads image sources during Write, so staged files live until then.
	staging, err := os.MkdirTemp("", "ehound-epub-*")
	if err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(staging)
	}()

	e, err := epub.NewEpub(string(book.Name))
	if err != nil {
		return "", fmt.Errorf("create epub: %w", err)
	}
	e.SetAuthor(x.cfg.Author)
	e.SetLang(x.cfg.Lang)

	visual, _ := book.Visual()
	added := 0
	for _, ch := range chapters {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if ch.Len() == 0 {
			continue
		}
		var body string
		if visual {
			body, err = x.imageSection(ctx, e, staging, ch)
		} else {
			body, err = x.textSection(ctx, ch)
		}
		if err != nil {
			x.logger.Warn("Skipping chapter in export",
				zap.String("book", string(book.Name)),
				zap.Uint16("chapter", ch.Number()),
				zap.Error(err),
			)
			continue
		}
		title := fmt.Sprintf("Chapter %d", ch.Number())
		if _, err := e.AddSection("<h1>"+title+"</h1>\n"+body, title, "", ""); err != nil {
			return "", fmt.Errorf("add chapter %d: %w", ch.Number(), err)
		}
		added++
	}
	if added == 0 {
		return "", ErrNothingToExport
	}

	outPath := filepath.Join(outDir, library.SanitizeName(string(book.Name))+".epub")
	if err := e.Write(outPath); err != nil {
		return "", fmt.Errorf("write epub: %w", err)
	}
	x.logger.Info("Exported book",
		zap.String("book", string(book.Name)),
		zap.Int("chapters", added),
		zap.String("path", outPath),
	)
	return outPath, nil
}

func (x *Exporter) imageSection(ctx context.Context, e *epub.Epub, staging string, ch *library.Chapter) (string, error) {
	var b strings.Builder
	for _, u := range ch.Contents() {
		name := fmt.Sprintf("c%05d-p%05d%s", ch.Number(), u.Number, imageExt(u.Path))
		local := filepath.Join(staging, name)
		if err := x.stage(ctx, u.Path, local); err != nil {
			return "", err
		}
		src, err := e.AddImage(local, name)
		if err != nil {
			return "", fmt.Errorf("add image %s: %w", u.Path, err)
		}
		fmt.Fprintf(&b, "<div class=\"page\"><img src=\"%s\" alt=\"Page %d\"/></div>\n", src, u.Number)
	}
	return b.String(), nil
}

func (x *Exporter) textSection(ctx context.Context, ch *library.Chapter) (string, error) {
	var b strings.Builder
	for _, u := range ch.Contents() {
		data, err := x.read(ctx, u.Path)
		if err != nil {
			return "", err
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			b.WriteString("<p>")
			b.WriteString(html.EscapeString(line))
			b.WriteString("</p>\n")
		}
	}
	return b.String(), nil
}

func (x *Exporter) read(ctx context.Context, p string) ([]byte, error) {
	rc, err := x.store.GetObject(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	defer func() {
		_ = rc.Close()
	}()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

func (x *Exporter) stage(ctx context.Context, p, local string) error {
	data, err := x.read(ctx, p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(local, data, 0o600); err != nil {
		return fmt.Errorf("stage %s: %w", p, err)
	}
	return nil
}

func imageExt(p string) string {
	if ext := path.Ext(p); ext != "" {
		return ext
	}
	return ".jpg"
}
