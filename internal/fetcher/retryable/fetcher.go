// Package retryable implements fetcher.Fetcher on top of hashicorp/go-retryablehttp.
// Retries inside the client bypass any pacing middleware above it, so paced pipelines
// set RetryMax to 0 and install fetcher.Retrying instead.
package retryable

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/ehound/internal/crawlerr"
	"github.com/JakeFAU/ehound/internal/fetcher"
)

// Config tunes the retrying client.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	MaxBodyBytes int64
	// ExtraStatusCodesToRetry lists statuses retried on top of the default policy.
	ExtraStatusCodesToRetry []int
}

// Fetcher issues GETs through a retryablehttp.Client.
type Fetcher struct {
	client    *retryablehttp.Client
	userAgent string
	maxBody   int64
	extra     []int
	logger    *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	client.Logger = zapLeveledLogger{logger: logger.Named("retryablehttp")}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	f := &Fetcher{
		client:    client,
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodyBytes,
		extra:     cfg.ExtraStatusCodesToRetry,
		logger:    logger,
	}
	client.CheckRetry = f.checkRetry
	return f
}

// Fetch performs a GET and returns the full body.
func (f *Fetcher) Fetch(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	start := time.Now()
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fetcher.Response{}, &crawlerr.ParseError{Input: req.URL, Err: err}
	}
	for key, values := range req.Headers {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	if f.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			_ = resp.Body.Close()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fetcher.Response{}, crawlerr.NewTimeoutError(req.URL, ctxErr)
		}
		return fetcher.Response{}, crawlerr.NewNetworkError(req.URL, status, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fetcher.Response{}, crawlerr.NewNetworkError(req.URL, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return fetcher.Response{}, crawlerr.NewNetworkError(req.URL, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	return fetcher.Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

func (f *Fetcher) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	should, policyErr := retryablehttp.ErrorPropagatedRetryPolicy(ctx, resp, err)
	if policyErr != nil {
		return should, policyErr
	}
	if should {
		return true, nil
	}
	if resp == nil || err != nil {
		return false, err
	}
	for _, code := range f.extra {
		if code == resp.StatusCode {
			f.logger.Warn("Retrying on configured status",
				zap.String("url", resp.Request.URL.String()),
				zap.Int("status", code),
			)
			return true, nil
		}
	}
	return false, nil
}

// zapLeveledLogger adapts zap to retryablehttp.LeveledLogger.
type zapLeveledLogger struct {
	logger *zap.Logger
}

func (l zapLeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, keysAndValues...)
}

func (l zapLeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l zapLeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l zapLeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Warnw(msg, keysAndValues...)
}
