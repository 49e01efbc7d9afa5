// Package metrics exposes Prometheus collectors for fetches, per-domain pacing,
// and the control-surface HTTP API.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/ehound/internal/crawlerr"
	"github.com/JakeFAU/ehound/internal/fetcher"
)

// Metrics owns the collectors registered against one registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	fetchTotal      *prometheus.CounterVec
	fetchBytes      *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	rateLimitDelays *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ehound_fetch_requests_total",
			Help: "Fetches partitioned by site and outcome.",
		}, []string{"site", "outcome"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ehound_fetch_bytes_total",
			Help: "Bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ehound_fetch_duration_seconds",
			Help:    "Fetch latency per site, retries included.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site"}),
		rateLimitDelays: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ehound_rate_limit_delay_seconds",
			Help:    "Time callers spent waiting on a domain's pacing bucket.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 1.5, 2, 5, 10},
		}, []string{"domain"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
	for _, c := range []prometheus.Collector{
		m.fetchTotal,
		m.fetchBytes,
		m.fetchDuration,
		m.rateLimitDelays,
		m.httpRequests,
		m.httpDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics collector: %w", err)
		}
	}
	return m, nil
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveFetch records one fetch outcome for the URL's host.
func (m *Metrics) ObserveFetch(rawURL string, bytes int, dur time.Duration, err error) {
	site := SanitizeSite(rawURL)
	m.fetchTotal.WithLabelValues(site, outcome(err)).Inc()
	if bytes > 0 {
		m.fetchBytes.WithLabelValues(site).Add(float64(bytes))
	}
	m.fetchDuration.WithLabelValues(site).Observe(dur.Seconds())
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var netErr *crawlerr.NetworkError
	if errors.As(err, &netErr) {
		switch {
		case netErr.Timeout():
			return "timeout"
		case netErr.StatusCode > 0:
			return strconv.Itoa(netErr.StatusCode/100) + "xx"
		}
		return "network"
	}
	return "error"
}

// ObserveRateLimitDelay records the duration of a rate limit wait. It makes
// Metrics a ratelimit.DelayObserver.
func (m *Metrics) ObserveRateLimitDelay(domain string, delay time.Duration) {
	m.rateLimitDelays.WithLabelValues(domain).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Instrument returns a fetcher middleware that records every fetch it wraps.
func (m *Metrics) Instrument() fetcher.Middleware {
	return func(next fetcher.Fetcher) fetcher.Fetcher {
		return fetcher.Func(func(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
			start := time.Now()
			resp, err := next.Fetch(ctx, req)
			m.ObserveFetch(req.URL, len(resp.Body), time.Since(start), err)
			return resp, err
		})
	}
}
