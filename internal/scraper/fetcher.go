package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/gzhttp"

	"github.com/pfrederiksen/partyfinder/internal/clock"
	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/logger"
	"github.com/pfrederiksen/partyfinder/internal/metrics"
	"github.com/pfrederiksen/partyfinder/internal/render"
	"github.com/pfrederiksen/partyfinder/internal/session"
)

const (
	UserAgent         = "partyfinder/1.0 (github.com/pfrederiksen/partyfinder)"
	Timeout           = 30 * time.Second
	DefaultRetries    = 2
	DefaultRetryDelay = 2 * time.Second
	// maxBodyBytes caps a single page read.
	maxBodyBytes = 8 << 20
)

// blockMarkers identify an anti-bot challenge served instead of content.
var blockMarkers = []string{"cf-chl", "cf-browser-verification", "challenge-platform", "just a moment", "cloudflare"}

// PageFetcher returns a parsed page for a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*render.Page, error)
}

// FetcherOptions configure a Fetcher. Zero values take the package defaults.
type FetcherOptions struct {
	Timeout    time.Duration
	UserAgent  string
	Retries    int
	RetryDelay time.Duration
	Transport  http.RoundTripper
	Clock      clock.Clock
	Metrics    *metrics.Recorder
}

// Fetcher performs credential-bearing GETs.
type Fetcher struct {
	client     *http.Client
	credential *session.Credential
	userAgent  string
	retries    int
	retryDelay time.Duration
	clock      clock.Clock
	metrics    *metrics.Recorder
}

// NewFetcher creates a Fetcher. cred may be nil for pages that need no
// clearance, such as offline fixtures.
func NewFetcher(cred *session.Credential, opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = Timeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	ua := opts.UserAgent
	if cred != nil && cred.UserAgent != "" {
		// The clearance is bound to the agent that solved the challenge.
		ua = cred.UserAgent
	}
	if ua == "" {
		ua = UserAgent
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: gzhttp.Transport(opts.Transport),
		},
		credential: cred,
		userAgent:  ua,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		clock:      opts.Clock,
		metrics:    opts.Metrics,
	}
}

// Fetch retrieves and parses url. Transient failures are retried up to the
// configured count; an expired credential or a hard block is returned at once.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*render.Page, error) {
	var body string
	op := func() error {
		b, err := f.get(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.retryDelay), uint64(f.retries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		logger.Debug("Retrying page fetch", logger.Fields{
			"url":   url,
			"wait":  wait.String(),
			"cause": err.Error(),
		})
	}
	if err := backoff.RetryNotifyWithTimer(op, policy, notify, &clockTimer{clock: f.clock}); err != nil {
		f.metrics.Fetch(outcome(err))
		return nil, err
	}

	page, err := render.ParseString(body)
	if err != nil {
		f.metrics.Fetch("error")
		return nil, fmt.Errorf("%w: parsing %s: %v", event.ErrSourceUnavailable, url, err)
	}
	f.metrics.Fetch("ok")
	return page, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9")
	if f.credential != nil {
		if h := f.credential.CookieHeader(); h != "" {
			req.Header.Set("Cookie", h)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", fmt.Errorf("%w: fetching %s: %v", event.ErrSourceUnavailable, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", event.ErrSourceUnavailable, url, err)
	}
	body := string(raw)
	return body, Classify(resp.StatusCode, resp.Header.Get("Server"), body)
}

// Classify maps a response to the fetch error kinds. Permanent errors are
// wrapped so the retry loop stops on them.
func Classify(status int, server, body string) error {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "error code: 1020"):
		return backoff.Permanent(fmt.Errorf("%w: access denied (1020)", event.ErrSessionExpired))
	case status == http.StatusForbidden && (challenged(lower) || strings.Contains(strings.ToLower(server), "cloudflare")):
		return backoff.Permanent(fmt.Errorf("%w: challenge served (status %d)", event.ErrSessionExpired, status))
	case status == http.StatusForbidden:
		return backoff.Permanent(fmt.Errorf("%w: status %d", event.ErrSourceBlocked, status))
	case status == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: status %d", event.ErrSourceBlocked, status)
	case status == http.StatusNotFound || status == http.StatusGone:
		return backoff.Permanent(fmt.Errorf("%w: status %d", event.ErrSourceUnavailable, status))
	case status >= 500:
		return fmt.Errorf("%w: status %d", event.ErrSourceUnavailable, status)
	case status != http.StatusOK:
		return backoff.Permanent(fmt.Errorf("%w: unexpected status code %d", event.ErrSourceUnavailable, status))
	case strings.TrimSpace(body) == "":
		return backoff.Permanent(fmt.Errorf("%w: empty body", event.ErrSourceUnavailable))
	}
	return nil
}

func challenged(lowerBody string) bool {
	for _, m := range blockMarkers {
		if strings.Contains(lowerBody, m) {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case errors.Is(err, event.ErrSessionExpired):
		return "expired"
	case errors.Is(err, event.ErrSourceBlocked):
		return "blocked"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// clockTimer adapts a clock.Clock to backoff.Timer.
type clockTimer struct {
	clock clock.Clock
	c     <-chan time.Time
}

func (t *clockTimer) Start(d time.Duration) {
	t.c = t.clock.After(d)
}

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time {
	return t.c
}
