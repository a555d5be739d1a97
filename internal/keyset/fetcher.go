package keyset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"storehook/internal/constants"
	"storehook/internal/logger"
	"storehook/pkg/circuitbreaker"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/metrics"
	"storehook/pkg/retry"
)

const maxDocumentBytes = 1 << 20

// Fetcher retrieves a complete key set document.
type Fetcher interface {
	Fetch(ctx context.Context) (*KeySet, error)
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type HTTPFetcherConfig struct {
	Platform string
	URL      string
	Timeout  time.Duration
	// RetryDelay is the pause before the single retry.
	RetryDelay time.Duration
}

// HTTPFetcher GETs a JWKS document. Each attempt is bounded by Timeout;
// transport errors, 5xx and 429 are retried once. The whole exchange runs
// behind a circuit breaker when one is supplied.
type HTTPFetcher struct {
	cfg     HTTPFetcherConfig
	client  HTTPDoer
	breaker *circuitbreaker.Wrapper
	log     logger.Logger
	now     func() time.Time
}

func NewHTTPFetcher(cfg HTTPFetcherConfig, client HTTPDoer, breaker *circuitbreaker.Wrapper, log logger.Logger) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultKeyFetchTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = logger.NopLogger()
	}
	return &HTTPFetcher{
		cfg:     cfg,
		client:  client,
		breaker: breaker,
		log:     log,
		now:     time.Now,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (*KeySet, error) {
	start := time.Now()
	set, err := f.fetchGuarded(ctx)
	metrics.ObserveKeySetFetchDuration(f.cfg.Platform, time.Since(start))

	if err != nil {
		metrics.IncKeySetFetch(f.cfg.Platform, "error")
		f.log.WarnwCtx(ctx, "Key set fetch failed",
			"platform", f.cfg.Platform,
			"url", f.cfg.URL,
			"error", err,
		)
		return nil, apperrors.ErrKeyFetchFailed.WithCause(err).WithDetail("platform", f.cfg.Platform)
	}

	metrics.IncKeySetFetch(f.cfg.Platform, "success")
	if skipped := set.Skipped(); len(skipped) > 0 {
		f.log.WarnwCtx(ctx, "Key set entries skipped",
			"platform", f.cfg.Platform,
			"skipped", skipped,
		)
	}
	return set, nil
}

func (f *HTTPFetcher) fetchGuarded(ctx context.Context) (*KeySet, error) {
	if f.breaker == nil {
		return f.fetchWithRetry(ctx)
	}
	result, err := f.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return f.fetchWithRetry(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*KeySet), nil
}

func (f *HTTPFetcher) fetchWithRetry(ctx context.Context) (*KeySet, error) {
	var set *KeySet
	err := retry.RetryWithCallback(ctx, retry.SingleRetryPolicy(f.cfg.RetryDelay), func() error {
		var err error
		set, err = f.fetchOnce(ctx)
		return err
	}, func(attempt int, err error, next time.Duration) {
		f.log.DebugwCtx(ctx, "Retrying key set fetch",
			"platform", f.cfg.Platform,
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("key set endpoint returned HTTP %d", e.code)
}

func (e *statusError) IsRetryable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context) (*KeySet, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return nil, retry.NewFatalError(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, retry.NewRetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, retry.NewRetryableError(fmt.Errorf("read key set: %w", err))
	}
	if len(body) > maxDocumentBytes {
		return nil, retry.NewFatalError(errors.New("key set document too large"))
	}

	set, err := ParseKeySet(body, f.now())
	if err != nil {
		return nil, retry.NewFatalError(err)
	}
	return set, nil
}
