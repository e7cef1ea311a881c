package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTTPBrowser is a Browser without a JavaScript engine. It passes the
// challenge only when the target serves real content to a plain client,
// which makes it useful against lenient deployments and in tests. Each
// launch gets its own cookie jar, the equivalent of a fresh profile.
type HTTPBrowser struct {
	Transport http.RoundTripper
	UserAgent string
}

// Launch opens a tab with an empty cookie jar.
func (b *HTTPBrowser) Launch(ctx context.Context, opts LaunchOptions) (Tab, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = b.UserAgent
	}
	return &httpTab{
		client:    &http.Client{Transport: b.Transport, Jar: jar},
		userAgent: ua,
	}, nil
}

type httpTab struct {
	client    *http.Client
	userAgent string
	current   *url.URL
	title     string
	content   string
}

func (t *httpTab) Navigate(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading page: %w", err)
	}

	t.current = resp.Request.URL
	t.content = string(body)
	t.title = ""
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(t.content)); err == nil {
		t.title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return nil
}

func (t *httpTab) Title(ctx context.Context) (string, error) {
	return t.title, ctx.Err()
}

func (t *httpTab) Content(ctx context.Context) (string, error) {
	return t.content, ctx.Err()
}

func (t *httpTab) Cookies(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	if t.current == nil {
		return out, ctx.Err()
	}
	for _, c := range t.client.Jar.Cookies(t.current) {
		out[c.Name] = c.Value
	}
	return out, ctx.Err()
}

func (t *httpTab) UserAgent(ctx context.Context) (string, error) {
	return t.userAgent, ctx.Err()
}

func (t *httpTab) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
