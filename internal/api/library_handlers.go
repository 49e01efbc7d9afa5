package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/ehound/internal/export"
	"github.com/JakeFAU/ehound/internal/library"
)

const (
	defaultBookLimit = 50
	maxBookLimit     = 500
)

// LibraryHandler exposes read-only library endpoints plus chapter navigation.
type LibraryHandler struct {
	lib    *library.Library
	logger *zap.Logger
}

// NewLibraryHandler wires the library and logger.
func NewLibraryHandler(lib *library.Library, logger *zap.Logger) *LibraryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LibraryHandler{lib: lib, logger: logger}
}

// ListBooks handles GET /v1/books?limit=&offset=. It returns {"books": [...]} in name
// order, or 400 for invalid paging parameters.
func (h *LibraryHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultBookLimit, maxBookLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	books := export.BuildManifest(h.lib).Books
	if offset > len(books) {
		offset = len(books)
	}
	end := offset + limit
	if end > len(books) {
		end = len(books)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"books": books[offset:end],
		"total": len(books),
	})
}

// GetBook handles GET /v1/books/{name}. It returns {"book": {...}} or 404.
func (h *LibraryHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, ok := h.book(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"book": export.DescribeBook(book)})
}

// Seek handles POST /v1/books/{name}/seek/{chapter}. It moves the book position to the
// chapter and returns the chapter with its content, 400 for a malformed number, or 404
// when the book or chapter is unknown.
func (h *LibraryHandler) Seek(w http.ResponseWriter, r *http.Request) {
	book, ok := h.book(w, r)
	if !ok {
		return
	}
	n, err := parseChapter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ch, ok := book.Seek(n)
	if !ok {
		writeError(w, http.StatusNotFound, "chapter not found")
		return
	}
	h.logger.Debug("Seek",
		zap.String("book", string(book.Name)),
		zap.Uint16("chapter", n),
	)
	writeJSON(w, http.StatusOK, map[string]any{"chapter": toChapterDTO(n, ch)})
}

func (h *LibraryHandler) book(w http.ResponseWriter, r *http.Request) (*library.Book, bool) {
	raw := chi.URLParam(r, "name")
	name, err := url.PathUnescape(raw)
	if err != nil || name == "" {
		writeError(w, http.StatusBadRequest, "invalid book name")
		return nil, false
	}
	book, ok := h.lib.Book(library.BookName(name))
	if !ok {
		writeError(w, http.StatusNotFound, "book not found")
		return nil, false
	}
	return book, true
}

func parseChapter(r *http.Request) (uint16, error) {
	val, err := strconv.ParseUint(chi.URLParam(r, "chapter"), 10, 16)
	if err != nil {
		return 0, errors.New("invalid chapter")
	}
	return uint16(val), nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

type chapterDTO struct {
	Number  uint16       `json:"number"`
	Page    string       `json:"page"`
	Content []contentDTO `json:"content"`
}

type contentDTO struct {
	Number uint16 `json:"number"`
	Path   string `json:"path"`
	URI    string `json:"uri,omitempty"`
}

func toChapterDTO(n uint16, ch *library.Chapter) chapterDTO {
	dto := chapterDTO{Number: n, Page: ch.Page.Location(), Content: []contentDTO{}}
	for _, u := range ch.Contents() {
		dto.Content = append(dto.Content, contentDTO{Number: u.Number, Path: u.Path, URI: u.URI})
	}
	return dto
}
