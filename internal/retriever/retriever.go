// Package retriever turns discovered pages into archived chapters: it fetches a page's
// images or text, writes each unit through the blob store and returns the Chapter that
// records where everything went.
package retriever

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/ehound/internal/fetcher"
	"github.com/JakeFAU/ehound/internal/library"
	"github.com/JakeFAU/ehound/internal/source"
	"github.com/JakeFAU/ehound/internal/statefile"
	"github.com/JakeFAU/ehound/internal/storage"
)

const defaultImageParallelism = 4

// Config tunes a Retriever.
type Config struct {
	ImageParallelism int
	Classifier       source.Classifier
}

// Retriever materializes chapters.
type Retriever struct {
	loader      *source.Loader
	fetcher     fetcher.Fetcher
	store       storage.BlobStore
	headers     *HeaderTable
	classifier  source.Classifier
	parallelism int
	logger      *zap.Logger
}

// New constructs a Retriever. f fetches raw image bytes and should share the pipeline
// loader was built on so every request is paced and carries its headers.
func New(
	loader *source.Loader,
	f fetcher.Fetcher,
	store storage.BlobStore,
	headers *HeaderTable,
	cfg Config,
	logger *zap.Logger,
) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if headers == nil {
		headers = NewHeaderTable()
	}
	if cfg.ImageParallelism <= 0 {
		cfg.ImageParallelism = defaultImageParallelism
	}
	return &Retriever{
		loader:      loader,
		fetcher:     f,
		store:       store,
		headers:     headers,
		classifier:  cfg.Classifier,
		parallelism: cfg.ImageParallelism,
		logger:      logger,
	}
}

// Headers exposes the per-domain header table.
func (r *Retriever) Headers() *HeaderTable { return r.headers }

// Chapter archives the content of src under book. A nil visual hint classifies src.
// Image chapters save one unit per image, keyed by its 1-based position; a failing image
// is logged and skipped. Text chapters save the joined paragraphs as a single unit
// numbered after the chapter.
func (r *Retriever) Chapter(ctx context.Context, book library.BookName, src *source.Source, visualHint *bool) (*library.Chapter, error) {
	var visual bool
	if visualHint != nil {
		visual = *visualHint
	} else {
		visual = src.ClassifyVisual(r.classifier)
	}
	ch := library.NewChapter(src)
	dir := library.ChapterDir(book, ch.Number())

	if !visual {
		u, err := r.saveText(ctx, src, dir, ch.Number())
		if err != nil {
			return nil, err
		}
		ch.AddContent(u)
		return ch, nil
	}

	images, err := src.ExtractImages()
	if err != nil {
		return nil, fmt.Errorf("chapter %s: %w", src.Location(), err)
	}
	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, img := range images {
		seq := uint16(i + 1)
		g.Go(func() error {
			u, err := r.saveImage(gctx, img, dir, seq)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				failed.Add(1)
				r.logger.Warn("Skipping image",
					zap.String("book", string(book)),
					zap.String("url", img),
					zap.Uint16("page", seq),
					zap.Error(err),
				)
				return nil
			}
			ch.AddContent(u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("chapter %s: %w", src.Location(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("chapter %s: %w", src.Location(), err)
	}
	if len(images) > 0 && int(failed.Load()) == len(images) {
		return nil, fmt.Errorf("chapter %s: all %d images failed", src.Location(), len(images))
	}
	return ch, nil
}

// SaveContent fetches rawURL and stores it under dest, numbered after the chapter its
// location derives. Images are stored as fetched; text pages store their extracted
// paragraphs.
func (r *Retriever) SaveContent(ctx context.Context, rawURL string, isImage bool, dest string) (library.Content, error) {
	target, err := source.New(rawURL)
	if err != nil {
		return library.Content{}, err
	}
	seq := target.Place().Chapter
	if isImage {
		return r.saveImage(ctx, rawURL, dest, seq)
	}
	page, err := r.loader.Refresh(ctx, target, "")
	if err != nil {
		return library.Content{}, err
	}
	return r.saveText(ctx, page, dest, seq)
}

func (r *Retriever) saveImage(ctx context.Context, rawURL, dir string, seq uint16) (library.Content, error) {
	resp, err := r.fetcher.Fetch(ctx, fetcher.Request{URL: rawURL})
	if err != nil {
		return library.Content{}, fmt.Errorf("fetch image: %w", err)
	}
	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return r.put(ctx, library.ContentPath(dir, seq, true), contentType, resp.Body, seq)
}

func (r *Retriever) saveText(ctx context.Context, page *source.Source, dir string, seq uint16) (library.Content, error) {
	fragments, err := page.ExtractText()
	if err != nil {
		return library.Content{}, err
	}
	text := strings.Join(fragments, "\n\n")
	return r.put(ctx, library.ContentPath(dir, seq, false), "text/plain; charset=utf-8", []byte(text), seq)
}

func (r *Retriever) put(ctx context.Context, path, contentType string, data []byte, seq uint16) (library.Content, error) {
	uri, err := r.store.PutObject(ctx, path, contentType, bytes.NewReader(data))
	if err != nil {
		return library.Content{}, fmt.Errorf("store %s: %w", path, err)
	}
	return library.Content{Number: seq, Path: path, URI: uri}, nil
}

type stateFile struct {
	Headers map[string]map[string]string `json:"headers"`
}

// SaveState writes the header table to path.
func (r *Retriever) SaveState(path string) error {
	return statefile.Save(path, stateFile{Headers: r.headers.flatten()})
}

// DecodeState reads a header table written by SaveState.
func DecodeState(path string) (*HeaderTable, error) {
	var file stateFile
	if err := statefile.Load(path, &file); err != nil {
		return nil, err
	}
	t := &HeaderTable{}
	t.replace(file.Headers)
	return t, nil
}

// ReplaceHeaders swaps in the contents of t.
func (r *Retriever) ReplaceHeaders(t *HeaderTable) {
	r.headers.replace(t.flatten())
}

// LoadState replaces the header table with the one stored at path. On error the table
// is unchanged.
func (r *Retriever) LoadState(path string) error {
	t, err := DecodeState(path)
	if err != nil {
		return err
	}
	r.ReplaceHeaders(t)
	return nil
}
