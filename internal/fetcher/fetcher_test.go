package fetcher

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/ehound/internal/crawlerr"
)

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, req Request) (Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Response), args.Error(1)
}

type staticHeaders map[string]http.Header

func (s staticHeaders) HeadersFor(host string) http.Header { return s[host] }

type recordingPacer struct {
	mu   sync.Mutex
	urls []string
}

func (p *recordingPacer) Wait(_ context.Context, rawURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urls = append(p.urls, rawURL)
	return nil
}

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var order []string
	tag := func(name string) Middleware {
		return func(next Fetcher) Fetcher {
			return Func(func(ctx context.Context, req Request) (Response, error) {
				order = append(order, name)
				return next.Fetch(ctx, req)
			})
		}
	}
	base := Func(func(context.Context, Request) (Response, error) {
		order = append(order, "base")
		return Response{StatusCode: http.StatusOK}, nil
	})

	_, err := Chain(base, tag("outer"), nil, tag("inner")).Fetch(context.Background(), Request{URL: "https://a.com"})

	require.NoError(t, err)
	require.Equal(t, []string{"outer", "inner", "base"}, order)
}

func TestWithHeaders(t *testing.T) {
	t.Parallel()

	// Arrange
	base := new(MockFetcher)
	src := staticHeaders{
		"img.example.com": http.Header{"Referer": {"https://example.com/"}, "X-Site": {"a"}},
	}
	base.On("Fetch", mock.Anything, mock.MatchedBy(func(req Request) bool {
		return req.Headers.Get("Referer") == "https://example.com/" && req.Headers.Get("X-Site") == "override"
	})).Return(Response{StatusCode: http.StatusOK}, nil)

	// Act
	_, err := WithHeaders(src)(base).Fetch(context.Background(), Request{
		URL:     "https://img.example.com/1.jpg",
		Headers: http.Header{"X-Site": {"override"}},
	})

	// Assert
	require.NoError(t, err)
	base.AssertExpectations(t)
	require.Equal(t, "a", src["img.example.com"].Get("X-Site"), "registered headers must not be mutated")
}

func TestPacedWaitsBeforeFetch(t *testing.T) {
	t.Parallel()

	pacer := &recordingPacer{}
	base := new(MockFetcher)
	base.On("Fetch", mock.Anything, mock.Anything).Return(Response{StatusCode: http.StatusOK}, nil)

	f := Paced(pacer)(base)
	_, err := f.Fetch(context.Background(), Request{URL: "https://a.com/1"})
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), Request{URL: "https://b.com/2"})
	require.NoError(t, err)

	require.Equal(t, []string{"https://a.com/1", "https://b.com/2"}, pacer.urls)
}

func TestBoundedCapsInFlight(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	base := Func(func(context.Context, Request) (Response, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return Response{StatusCode: http.StatusOK}, nil
	})
	f := Bounded(semaphore.NewWeighted(2))(base)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Fetch(context.Background(), Request{URL: "https://a.com"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRetryingRecoversFromTransientErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	base := Func(func(_ context.Context, req Request) (Response, error) {
		calls++
		if calls < 3 {
			return Response{}, crawlerr.NewNetworkError(req.URL, http.StatusServiceUnavailable, errors.New("unavailable"))
		}
		return Response{StatusCode: http.StatusOK, Body: []byte("ok")}, nil
	})
	policy := NewExponentialRetryPolicy(3, time.Millisecond, 2*time.Millisecond)

	resp, err := Retrying(policy, nil)(base).Fetch(context.Background(), Request{URL: "https://a.com"})

	require.NoError(t, err)
	require.Equal(t, "ok", string(resp.Body))
	require.Equal(t, 3, calls)
}

func TestRetryingGivesUpOnPermanentErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	base := Func(func(_ context.Context, req Request) (Response, error) {
		calls++
		return Response{}, crawlerr.NewNetworkError(req.URL, http.StatusNotFound, errors.New("Not Found"))
	})
	policy := NewExponentialRetryPolicy(3, time.Millisecond, 2*time.Millisecond)

	_, err := Retrying(policy, nil)(base).Fetch(context.Background(), Request{URL: "https://a.com"})

	var netErr *crawlerr.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, http.StatusNotFound, netErr.StatusCode)
	require.Equal(t, 1, calls)
}

func TestExponentialRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(2, 100*time.Millisecond, 300*time.Millisecond)
	transient := crawlerr.NewNetworkError("https://a.com", 0, errors.New("reset"))

	require.False(t, p.ShouldRetry(nil, 1))
	require.True(t, p.ShouldRetry(transient, 1))
	require.True(t, p.ShouldRetry(transient, 2))
	require.False(t, p.ShouldRetry(transient, 3))
	require.False(t, p.ShouldRetry(context.Canceled, 1))
	require.False(t, p.ShouldRetry(errors.New("plain"), 1))

	for attempt := 1; attempt <= 5; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 300*time.Millisecond)
	}
}
