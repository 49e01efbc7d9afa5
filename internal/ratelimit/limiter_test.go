package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ehound/internal/crawlerr"
)

const tolerance = 5 * time.Millisecond

type recordingObserver struct {
	mu     sync.Mutex
	delays map[string]time.Duration
}

func (o *recordingObserver) ObserveRateLimitDelay(domain string, delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delays[domain] += delay
}

func TestLimiterSpacesRequestsToOneDomain(t *testing.T) {
	t.Parallel()

	// Arrange
	interval := 60 * time.Millisecond
	obs := &recordingObserver{delays: map[string]time.Duration{}}
	l := New(Config{Interval: interval, Observer: obs})
	ctx := context.Background()

	// Act
	var stamps []time.Time
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx, "https://example.com/chapter-1"))
		stamps = append(stamps, time.Now())
	}

	// Assert
	for i := 1; i < len(stamps); i++ {
		require.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), interval-tolerance)
	}
	info, ok := l.Site("example.com")
	require.True(t, ok)
	require.False(t, info.LastRequest.IsZero())
	require.Greater(t, obs.delays["example.com"], time.Duration(0))
}

func TestLimiterDomainsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{Interval: time.Second})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.com/1"))

	require.Less(t, time.Since(start), 100*time.Millisecond, "domain B blocked by A")
}

func TestLimiterConcurrentCallersStaySpaced(t *testing.T) {
	t.Parallel()

	interval := 40 * time.Millisecond
	l := New(Config{Interval: interval})
	ctx := context.Background()

	var (
		mu     sync.Mutex
		stamps []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Wait(ctx, "https://Example.com/x"); err != nil {
				return
			}
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, stamps, 4)
	first, last := stamps[0], stamps[0]
	for _, s := range stamps {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	require.GreaterOrEqual(t, last.Sub(first), 3*interval-tolerance)
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{Interval: time.Hour})
	require.NoError(t, l.Wait(context.Background(), "https://slow.com/"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://slow.com/")

	require.Error(t, err)
}

func TestLimiterRejectsURLWithoutHost(t *testing.T) {
	t.Parallel()

	l := New(Config{})

	err := l.Wait(context.Background(), "/relative/only")

	var parseErr *crawlerr.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestLimiterNextPredicates(t *testing.T) {
	t.Parallel()

	l := New(Config{
		Interval:       time.Millisecond,
		NextPredicates: map[string]string{"royalroad.com": "Next Chapter"},
	})

	tests := []struct {
		name string
		host string
		want string
	}{
		{name: "default", host: "manganato.com", want: DefaultNext},
		{name: "exact override", host: "royalroad.com", want: "Next Chapter"},
		{name: "subdomain inherits", host: "www.RoyalRoad.com", want: "Next Chapter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, l.Next(tt.host))
		})
	}
}

func TestLimiterSetNext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultNext: "NEXT"})

	require.Equal(t, "NEXT", l.Next("novel.org"))
	l.SetNext("novel.org", "Continue")
	require.Equal(t, "Continue", l.Next("novel.org"))
	l.SetNext("novel.org", "")
	require.Equal(t, "NEXT", l.Next("novel.org"))
	require.Equal(t, DefaultInterval, l.Interval())
}
