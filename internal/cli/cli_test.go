package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/session"
)

const listingPage = `<html><body>
<a href="/es/luminata-disco/events/sabado-reggaeton-18-10-2026-WF35" aria-label="Evento: Sábado Reggaeton. Edad mínima: 21. Fecha: sáb 18 oct. Horario: de 23:30 a 6:00.">Sábado</a>
</body></html>`

const eventPage = `<html><head>
<script type="application/ld+json">{"@type":"Event","name":"Sábado Reggaeton","startDate":"2026-10-18T23:30:00+02:00",
"offers":[{"@type":"Offer","name":"VIP 2 COPAS","price":"15","url":"https://tickets.example.com/tickets/abcdefghijklmnopqrstu"}]}</script>
</head><body><h1>Sábado Reggaeton</h1><ul><li>ENTRADA 10€</li><li>VIP 2 COPAS</li></ul></body></html>`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParse_Listing(t *testing.T) {
	dir := t.TempDir()
	listing := writeFile(t, dir, "listing.html", listingPage)

	out, err := runCLI(t, "parse", "--config", filepath.Join(dir, "none.yaml"),
		"--listing", listing, "--url", "https://site.example.com/es/luminata-disco", "--format", "json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var stubs []event.EventStub
	if err := json.Unmarshal([]byte(out), &stubs); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if len(stubs) != 1 || stubs[0].Code != "WF35" || stubs[0].Strategy != "labelled-link" {
		t.Errorf("stubs = %+v", stubs)
	}
}

func TestParse_Event(t *testing.T) {
	dir := t.TempDir()
	page := writeFile(t, dir, "event.html", eventPage)

	out, err := runCLI(t, "parse", "--config", filepath.Join(dir, "none.yaml"),
		"--event", page, "--url", "https://site.example.com/es/luminata-disco/events/sabado-reggaeton-18-10-2026-WF35",
		"--now", "2026-10-17", "--format", "json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var result OutputResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if len(result.Events) != 1 {
		t.Fatalf("events = %+v", result.Events)
	}
	evt := result.Events[0]
	if evt.Name != "Sábado Reggaeton" || evt.Date != "2026-10-18" || evt.StartTime != "23:30" || evt.Code != "WF35" {
		t.Errorf("event = %+v", evt)
	}
	if len(evt.Tickets) != 2 {
		t.Errorf("tickets = %+v", evt.Tickets)
	}
}

func TestParse_RequiresOneInput(t *testing.T) {
	dir := t.TempDir()
	if _, err := runCLI(t, "parse", "--config", filepath.Join(dir, "none.yaml"), "--url", "https://x.example.com/a"); err == nil {
		t.Error("expected an error without --listing or --event")
	}
}

func TestSessionStatus(t *testing.T) {
	dir := t.TempDir()
	sessionFile := filepath.Join(dir, "session.json")
	cfgPath := writeFile(t, dir, "config.yaml", fmt.Sprintf("session:\n  file: %s\n  encryption_key_env: \"\"\n", sessionFile))

	out, err := runCLI(t, "session", "status", "--config", cfgPath, "--format", "json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status SessionStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatal(err)
	}
	if status.Present || status.Valid {
		t.Errorf("empty store reported %+v", status)
	}

	store, err := session.NewStore(sessionFile, "")
	if err != nil {
		t.Fatal(err)
	}
	cred := session.NewCredential(map[string]string{session.ClearanceCookie: "tok"}, "Mozilla/5.0 Chrome/126.0.1 Safari/537.36",
		"https://site.example.com/es", time.Now(), 8*time.Hour)
	if err := store.Save(cred); err != nil {
		t.Fatal(err)
	}

	out, err = runCLI(t, "session", "status", "--config", cfgPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Status: valid") || !strings.Contains(out, "Chromium: 126.0.1") {
		t.Errorf("unexpected status output:\n%s", out)
	}
	if strings.Contains(out, "tok") {
		t.Error("status output must not reveal cookie values")
	}
}

func TestScrape_EndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(session.ClearanceCookie); err != nil || c.Value != "tok" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "error code: 1020")
			return
		}
		switch r.URL.Path {
		case "/es/luminata-disco":
			fmt.Fprint(w, listingPage)
		case "/es/luminata-disco/events/sabado-reggaeton-18-10-2026-WF35":
			fmt.Fprint(w, eventPage)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	sessionFile := filepath.Join(dir, "session.json")
	store, err := session.NewStore(sessionFile, "")
	if err != nil {
		t.Fatal(err)
	}
	cred := session.NewCredential(map[string]string{session.ClearanceCookie: "tok"}, "test-agent", server.URL, time.Now(), time.Hour)
	if err := store.Save(cred); err != nil {
		t.Fatal(err)
	}

	cfgPath := writeFile(t, dir, "config.yaml", fmt.Sprintf(`
base_url: %[1]s/es
timezone: UTC
venues:
  - url: %[1]s/es/luminata-disco
    name: Luminata Disco
    city: Madrid
session:
  file: %[2]s
  encryption_key_env: ""
fetch:
  retries: 0
  event_pause: 1ms
  venue_pause: 1ms
output:
  data_dir: %[3]s
metrics:
  textfile: %[3]s/partyfinder.prom
`, server.URL, sessionFile, filepath.Join(dir, "data")))

	out, err := runCLI(t, "scrape", "--config", cfgPath, "--format", "json")
	var exit exitError
	if !errors.As(err, &exit) || exit.code != ExitNewEvents {
		t.Fatalf("first run should exit with new events, got %v", err)
	}

	var result OutputResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if result.EventCount != 1 || len(result.NewEvents) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if result.Events[0].Venue.Name != "Luminata Disco" || len(result.Events[0].Tickets) != 2 {
		t.Errorf("event = %+v", result.Events[0])
	}

	if _, err := os.Stat(filepath.Join(dir, "data", "events.json")); err != nil {
		t.Errorf("catalog not written: %v", err)
	}
	prom, err := os.ReadFile(filepath.Join(dir, "data", "partyfinder.prom"))
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	if !strings.Contains(string(prom), `partyfinder_session_acquisitions_total{outcome="reused"} 1`) {
		t.Errorf("metrics textfile missing session outcome:\n%s", prom)
	}

	if _, err := runCLI(t, "scrape", "--config", cfgPath, "--format", "json"); err != nil {
		t.Errorf("unchanged rerun should succeed, got %v", err)
	}
}

func TestScrape_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "scrape", "--config", filepath.Join(dir, "none.yaml"), "--data-dir", dir)
	if err == nil || !strings.Contains(err.Error(), "no venues") {
		t.Errorf("expected a config error, got %v", err)
	}
}
