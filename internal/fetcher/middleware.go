package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/sync/semaphore"
)

// HeaderSource resolves the headers registered for a host.
type HeaderSource interface {
	HeadersFor(host string) http.Header
}

// Pacer blocks until a request to the URL's domain may be sent.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// WithHeaders attaches the headers registered for the request's host. Headers already
// present on the request take precedence.
func WithHeaders(src HeaderSource) Middleware {
	return func(next Fetcher) Fetcher {
		return Func(func(ctx context.Context, req Request) (Response, error) {
			if src == nil {
				return next.Fetch(ctx, req)
			}
			u, err := url.Parse(req.URL)
			if err != nil {
				return next.Fetch(ctx, req)
			}
			merged := src.HeadersFor(u.Hostname()).Clone()
			if merged == nil {
				merged = http.Header{}
			}
			for k, vals := range req.Headers {
				merged[k] = append([]string(nil), vals...)
			}
			req.Headers = merged
			return next.Fetch(ctx, req)
		})
	}
}

// Paced waits on the pacer before every request.
func Paced(p Pacer) Middleware {
	return func(next Fetcher) Fetcher {
		return Func(func(ctx context.Context, req Request) (Response, error) {
			if p != nil {
				if err := p.Wait(ctx, req.URL); err != nil {
					return Response{}, fmt.Errorf("pace %s: %w", req.URL, err)
				}
			}
			return next.Fetch(ctx, req)
		})
	}
}

// Bounded caps the number of requests in flight across every caller sharing sem.
func Bounded(sem *semaphore.Weighted) Middleware {
	return func(next Fetcher) Fetcher {
		return Func(func(ctx context.Context, req Request) (Response, error) {
			if sem == nil {
				return next.Fetch(ctx, req)
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				return Response{}, fmt.Errorf("acquire fetch slot: %w", err)
			}
			defer sem.Release(1)
			return next.Fetch(ctx, req)
		})
	}
}
