// Package collyfetcher implements scrape.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/plateiq/restaurant-intel/internal/metrics"
	"github.com/plateiq/restaurant-intel/internal/scrape"
)

// Config controls collector behavior.
type Config struct {
	UserAgents   []string
	Timeout      time.Duration
	HostInterval time.Duration
	PreDelayMin  time.Duration
	PreDelayMax  time.Duration
	Logger       *zap.Logger
}

// Fetcher implements scrape.Fetcher using the Colly collector. It enforces a
// minimum inter-request interval per upstream host and applies a randomized
// delay before first contact to keep load unremarkable.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.HostInterval <= 0 {
		cfg.HostInterval = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		logger:        logger,
		limiters:      make(map[string]*rate.Limiter),
	}
}

// Fetch executes a single HTTP GET and returns the raw body. All failures
// come back as *scrape.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (scrape.FetchResult, error) {
	host := hostname(rawURL)
	if host == "" {
		return scrape.FetchResult{}, &scrape.FetchError{
			Class: scrape.FailUnknown,
			URL:   rawURL,
			Err:   fmt.Errorf("malformed url %q", rawURL),
		}
	}

	if err := f.waitHost(ctx, host); err != nil {
		return scrape.FetchResult{}, &scrape.FetchError{Class: scrape.FailUnknown, URL: rawURL, Err: err}
	}
	if err := f.preDelay(ctx); err != nil {
		return scrape.FetchResult{}, &scrape.FetchError{Class: scrape.FailUnknown, URL: rawURL, Err: err}
	}

	var (
		result     scrape.FetchResult
		failedResp *colly.Response
		fetchErr   error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.UserAgent = f.pickUserAgent()
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(f.transport)

	collector.OnResponse(func(r *colly.Response) {
		result = scrape.FetchResult{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		failedResp = r
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return scrape.FetchResult{}, &scrape.FetchError{
			Class: scrape.FailTimeout,
			URL:   rawURL,
			Err:   ctx.Err(),
		}
	case visitErr := <-done:
		if fetchErr == nil && visitErr != nil {
			fetchErr = visitErr
		}
	}

	if fetchErr != nil {
		fe := classify(rawURL, failedResp, fetchErr)
		f.logger.Debug("fetch failed",
			zap.String("url", rawURL),
			zap.String("class", string(fe.Class)),
			zap.Error(fetchErr),
		)
		return scrape.FetchResult{}, fe
	}

	metrics.ObserveFetch(host, result.Duration)
	f.logger.Debug("fetch succeeded",
		zap.String("url", rawURL),
		zap.Int("status", result.StatusCode),
		zap.Int("bytes", len(result.Body)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// waitHost blocks until the per-host minimum interval has elapsed.
func (f *Fetcher) waitHost(ctx context.Context, host string) error {
	f.mu.Lock()
	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(f.cfg.HostInterval), 1)
		f.limiters[host] = limiter
	}
	f.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("host rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// preDelay sleeps the configured randomized interval before first contact.
func (f *Fetcher) preDelay(ctx context.Context) error {
	span := f.cfg.PreDelayMax - f.cfg.PreDelayMin
	if f.cfg.PreDelayMax <= 0 {
		return nil
	}
	delay := f.cfg.PreDelayMin
	if span > 0 {
		delay += time.Duration(rand.Int64N(int64(span)))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pre-delay canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (f *Fetcher) pickUserAgent() string {
	if len(f.cfg.UserAgents) == 0 {
		return "restaurant-intel/0.1"
	}
	return f.cfg.UserAgents[rand.IntN(len(f.cfg.UserAgents))]
}

func classify(rawURL string, resp *colly.Response, err error) *scrape.FetchError {
	if resp != nil && resp.StatusCode >= 400 {
		return &scrape.FetchError{
			Class:      scrape.FailHTTP,
			StatusCode: resp.StatusCode,
			URL:        rawURL,
			Err:        err,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &scrape.FetchError{Class: scrape.FailTimeout, URL: rawURL, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &scrape.FetchError{Class: scrape.FailTimeout, URL: rawURL, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &scrape.FetchError{Class: scrape.FailConnection, URL: rawURL, Err: err}
	}
	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "no such host") {
		return &scrape.FetchError{Class: scrape.FailConnection, URL: rawURL, Err: err}
	}
	return &scrape.FetchError{Class: scrape.FailUnknown, URL: rawURL, Err: err}
}

func hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
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
