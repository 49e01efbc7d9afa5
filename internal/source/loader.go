package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/ehound/internal/fetcher"
)

// Loader fetches pages into Sources.
type Loader struct {
	fetcher fetcher.Fetcher
	logger  *zap.Logger
}

// NewLoader constructs a Loader around f.
func NewLoader(f fetcher.Fetcher, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{fetcher: f, logger: logger}
}

// Fetch retrieves rawURL and returns a fetched Source.
func (l *Loader) Fetch(ctx context.Context, rawURL string) (*Source, error) {
	if _, err := New(rawURL); err != nil {
		return nil, err
	}
	resp, err := l.fetcher.Fetch(ctx, fetcher.Request{URL: rawURL})
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	l.logger.Debug("Fetched source",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", resp.Duration),
	)
	return FromBody(rawURL, resp.Body)
}

// Refresh re-fetches explicitURL, or the Source's own location when it is empty. The
// given Source is left untouched.
func (l *Loader) Refresh(ctx context.Context, src *Source, explicitURL string) (*Source, error) {
	target := explicitURL
	if target == "" {
		target = src.Location()
	}
	return l.Fetch(ctx, target)
}

// FindNext follows the first anchor whose text contains predicate. It returns nil
// without error when the page has no such anchor.
func (l *Loader) FindNext(ctx context.Context, src *Source, predicate string) (*Source, error) {
	next, ok := src.NextLink(predicate)
	if !ok {
		return nil, nil
	}
	return l.Fetch(ctx, next)
}
