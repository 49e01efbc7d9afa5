package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"go.uber.org/zap"

	"github.com/JakeFAU/ehound/internal/library"
	"github.com/JakeFAU/ehound/internal/source"
)

// ExampleLibraryHandler_ListBooks shows how to serve the /v1/books endpoint.
func ExampleLibraryHandler_ListBooks() {
	lib := library.New()
	index, err := source.New("https://readmanganato.com/manga-abc123")
	if err != nil {
		panic(err)
	}
	lib.Add(library.NewBook("Solo Leveling", index))
	handler := NewLibraryHandler(lib, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/books?limit=1", nil)
	rec := httptest.NewRecorder()
	handler.ListBooks(rec, req)

	var payload struct {
		Books []map[string]any `json:"books"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		panic(err)
	}
	fmt.Printf("returned books: %d, first: %s\n", len(payload.Books), payload.Books[0]["name"])
	// Output:
	// returned books: 1, first: Solo Leveling
}
