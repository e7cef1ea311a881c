package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/gzhttp"

	"github.com/pfrederiksen/partyfinder/internal/clock"
	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/metrics"
	"github.com/pfrederiksen/partyfinder/internal/session"
)

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

const testUA = "Mozilla/5.0 (X11; Linux x86_64) Chrome/126.0.6478.126 Safari/537.36"

func testCredential() *session.Credential {
	return session.NewCredential(map[string]string{
		session.ClearanceCookie: "tok",
		"__cf_bm":               "bm",
	}, testUA, "https://site.example.com/es", testNow, 8*time.Hour)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		server    string
		body      string
		want      error
		permanent bool
	}{
		{"ok", 200, "", "<html>hi</html>", nil, false},
		{"1020 body", 403, "", "error code: 1020", event.ErrSessionExpired, true},
		{"1020 on 200", 200, "", "Access denied. Error code: 1020", event.ErrSessionExpired, true},
		{"challenge page", 403, "", "<title>Just a moment...</title>", event.ErrSessionExpired, true},
		{"cloudflare server", 403, "cloudflare", "denied", event.ErrSessionExpired, true},
		{"plain forbidden", 403, "nginx", "denied", event.ErrSourceBlocked, true},
		{"unavailable", 503, "", "busy", event.ErrSourceBlocked, false},
		{"not found", 404, "", "missing", event.ErrSourceUnavailable, true},
		{"server error", 502, "", "bad gateway", event.ErrSourceUnavailable, false},
		{"empty body", 200, "", "  \n", event.ErrSourceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.status, tt.server, tt.body)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var perm *backoff.PermanentError
			if isPermanent := errors.As(err, &perm); isPermanent != tt.permanent {
				t.Errorf("permanent = %v, want %v", isPermanent, tt.permanent)
			}
		})
	}
}

func TestFetcher_SendsCredential(t *testing.T) {
	var gotCookie, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`<html><body><h1>Sala</h1></body></html>`))
	}))
	defer server.Close()

	f := NewFetcher(testCredential(), FetcherOptions{Clock: clock.NewFake(testNow)})
	page, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotCookie != "__cf_bm=bm; cf_clearance=tok" {
		t.Errorf("Cookie = %q", gotCookie)
	}
	if gotUA != testUA {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if lines := page.Lines(); len(lines) != 1 || lines[0] != "# Sala" {
		t.Errorf("Lines = %v", lines)
	}
}

func TestFetcher_DecompressesResponses(t *testing.T) {
	body := "<html><body><p>" + strings.Repeat("fiesta ", 2000) + "</p></body></html>"
	server := httptest.NewServer(gzhttp.GzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	})))
	defer server.Close()

	f := NewFetcher(nil, FetcherOptions{Clock: clock.NewFake(testNow)})
	page, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.Raw != body {
		t.Errorf("body was not decoded, got %d bytes", len(page.Raw))
	}
}

func TestFetcher_RetriesTransientErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`<html><body>ok</body></html>`))
	}))
	defer server.Close()

	clk := clock.NewFake(testNow)
	rec := metrics.New()
	f := NewFetcher(nil, FetcherOptions{Clock: clk, Retries: 2, RetryDelay: 5 * time.Second, Metrics: rec})
	if _, err := f.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if hits != 2 {
		t.Errorf("hits = %d, want 2", hits)
	}
	if clk.Slept() != 5*time.Second {
		t.Errorf("slept %v, want 5s", clk.Slept())
	}
}

func TestFetcher_GivesUpAfterRetries(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := NewFetcher(nil, FetcherOptions{Clock: clock.NewFake(testNow), Retries: 2})
	_, err := f.Fetch(context.Background(), server.URL)
	if !errors.Is(err, event.ErrSourceBlocked) {
		t.Fatalf("expected ErrSourceBlocked, got %v", err)
	}
	if hits != 3 {
		t.Errorf("hits = %d, want 3", hits)
	}
}

func TestFetcher_ExpiredCredentialIsNotRetried(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("error code: 1020"))
	}))
	defer server.Close()

	f := NewFetcher(testCredential(), FetcherOptions{Clock: clock.NewFake(testNow), Retries: 3})
	_, err := f.Fetch(context.Background(), server.URL)
	if !errors.Is(err, event.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if !event.IsFatal(err) {
		t.Error("expired credential should be fatal")
	}
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}

func TestFetcher_HonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(nil, FetcherOptions{Clock: clock.NewFake(testNow), Retries: 5})
	_, err := f.Fetch(ctx, server.URL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
