// Package collyfetcher implements fetcher.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/ehound/internal/crawlerr"
	"github.com/JakeFAU/ehound/internal/fetcher"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 32 * 1024 * 1024
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
	// Transport overrides the pooled default transport (tests).
	Transport http.RoundTripper
}

// Fetcher implements fetcher.Fetcher using a Colly collector. The base collector owns
// the shared HTTP backend; every fetch runs on a clone so callbacks never leak
// between concurrent requests.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	c := colly.NewCollector(opts...)

	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	var (
		result    fetcher.Response
		fetchErr  error
		errStatus int
	)
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, req, time.Now(), &result, &fetchErr, &errStatus)

	if err := f.runCollector(ctx, collector, req.URL); err != nil {
		return fetcher.Response{}, f.classify(req.URL, err, fetchErr, errStatus)
	}
	if fetchErr != nil {
		return fetcher.Response{}, crawlerr.NewNetworkError(req.URL, errStatus, fetchErr)
	}
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	req fetcher.Request,
	start time.Time,
	result *fetcher.Response,
	fetchErr *error,
	errStatus *int,
) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range req.Headers {
			r.Headers.Del(key)
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = fetcher.Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		*fetchErr = err
		if r != nil {
			*errStatus = r.StatusCode
		}
	})
}

// runCollector returns only once Visit has, so callers holding an in-flight slot keep
// it for the whole request. The collector carries ctx, which aborts the request on
// cancellation.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (f *Fetcher) classify(url string, visitErr, hookErr error, status int) error {
	if errors.Is(visitErr, context.DeadlineExceeded) {
		return crawlerr.NewTimeoutError(url, visitErr)
	}
	if errors.Is(visitErr, context.Canceled) {
		return fmt.Errorf("colly fetch canceled: %w", visitErr)
	}
	if hookErr != nil {
		return crawlerr.NewNetworkError(url, status, hookErr)
	}
	return crawlerr.NewNetworkError(url, status, visitErr)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
