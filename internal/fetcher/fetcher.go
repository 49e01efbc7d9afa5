// Package fetcher defines the HTTP fetch contract used by the crawl pipeline and the
// decorators that add headers, pacing, a global in-flight ceiling and retries around
// a concrete backend (see the colly and retryable subpackages).
package fetcher

import (
	"context"
	"net/http"
	"time"
)

// Request captures everything needed to GET a URL.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the result returned by a Fetcher implementation.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher fetches a URL and returns the body plus metadata. Implementations return a
// *crawlerr.NetworkError for transport failures and non-2xx responses.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// Func adapts a plain function to the Fetcher interface.
type Func func(ctx context.Context, req Request) (Response, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Middleware wraps a Fetcher with extra behavior.
type Middleware func(Fetcher) Fetcher

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(base Fetcher, mws ...Middleware) Fetcher {
	out := base
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		out = mws[i](out)
	}
	return out
}
