// Package ratelimit paces requests per domain. Every domain owns a one-token bucket
// refilled once per interval, so consecutive requests to the same host are spaced by at
// least the interval while different hosts proceed independently.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/ehound/internal/crawlerr"
)

const (
	shardCount = 16

	// DefaultInterval is the spacing used when Config.Interval is unset.
	DefaultInterval = 1500 * time.Millisecond
	// DefaultNext is the anchor text followed when a domain has no override.
	DefaultNext = "Next"
)

// SiteInfo is the per-domain crawl state.
type SiteInfo struct {
	// Next is the text an anchor must contain to be followed as the next page.
	Next string
	// LastRequest is when the most recent request to the domain was released.
	LastRequest time.Time
}

// DelayObserver receives the time a caller spent blocked on a domain.
type DelayObserver interface {
	ObserveRateLimitDelay(domain string, delay time.Duration)
}

// Config holds limiter configuration.
type Config struct {
	Interval       time.Duration
	DefaultNext    string
	NextPredicates map[string]string
	Observer       DelayObserver
}

type site struct {
	limiter *rate.Limiter
	info    SiteInfo
}

type shard struct {
	mu    sync.Mutex
	sites map[string]*site
}

// Limiter manages per-domain pacing and next-link predicates.
type Limiter struct {
	shards      [shardCount]shard
	interval    time.Duration
	defaultNext string
	overrides   map[string]string
	observer    DelayObserver
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.DefaultNext == "" {
		cfg.DefaultNext = DefaultNext
	}
	overrides := make(map[string]string, len(cfg.NextPredicates))
	for host, pred := range cfg.NextPredicates {
		if pred == "" {
			continue
		}
		overrides[strings.ToLower(host)] = pred
	}
	l := &Limiter{
		interval:    cfg.Interval,
		defaultNext: cfg.DefaultNext,
		overrides:   overrides,
		observer:    cfg.Observer,
	}
	for i := range l.shards {
		l.shards[i].sites = make(map[string]*site)
	}
	return l
}

// Interval returns the minimum spacing between two requests to one domain.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until a request to rawURL's domain may be sent, respecting ctx.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}
	s := l.site(host)

	start := time.Now()
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	released := time.Now()
	if l.observer != nil {
		if delay := released.Sub(start); delay > time.Millisecond {
			l.observer.ObserveRateLimitDelay(host, delay)
		}
	}

	sh := l.shardFor(host)
	sh.mu.Lock()
	s.info.LastRequest = released
	sh.mu.Unlock()
	return nil
}

// Next returns the next-link predicate for host.
func (l *Limiter) Next(host string) string {
	host = strings.ToLower(host)
	sh := l.shardFor(host)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok := sh.sites[host]; ok {
		return s.info.Next
	}
	return l.predicateFor(host)
}

// SetNext overrides the next-link predicate for host.
func (l *Limiter) SetNext(host, predicate string) {
	host = strings.ToLower(host)
	s := l.site(host)
	sh := l.shardFor(host)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if predicate == "" {
		predicate = l.predicateFor(host)
	}
	s.info.Next = predicate
}

// Site returns a copy of the state kept for host.
func (l *Limiter) Site(host string) (SiteInfo, bool) {
	host = strings.ToLower(host)
	sh := l.shardFor(host)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sites[host]
	if !ok {
		return SiteInfo{}, false
	}
	return s.info, true
}

func (l *Limiter) site(host string) *site {
	sh := l.shardFor(host)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sites[host]
	if !ok {
		s = &site{
			limiter: rate.NewLimiter(rate.Every(l.interval), 1),
			info:    SiteInfo{Next: l.predicateFor(host)},
		}
		sh.sites[host] = s
	}
	return s
}

// predicateFor matches host or any parent domain against the configured overrides.
func (l *Limiter) predicateFor(host string) string {
	for h := host; h != ""; {
		if pred, ok := l.overrides[h]; ok {
			return pred
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			break
		}
		h = h[i+1:]
	}
	return l.defaultNext
}

func (l *Limiter) shardFor(host string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return &l.shards[h.Sum32()%shardCount]
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &crawlerr.ParseError{Input: rawURL, Err: err}
	}
	if u.Hostname() == "" {
		return "", &crawlerr.ParseError{Input: rawURL, Err: errors.New("missing host")}
	}
	return strings.ToLower(u.Hostname()), nil
}
