// Package config loads the partyfinder YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // the default timezone must resolve on hosts without zoneinfo

	"gopkg.in/yaml.v3"

	"github.com/pfrederiksen/partyfinder/internal/scraper"
	"github.com/pfrederiksen/partyfinder/internal/session"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "~/.config/partyfinder/config.yaml"

type VenueConfig struct {
	URL       string `yaml:"url"`  // listing page, e.g. https://site.example.com/es/luminata-disco
	Name      string `yaml:"name"` // display name stored on every event
	City      string `yaml:"city"`
	NameInURL *bool  `yaml:"name_in_url"` // default true
}

type SessionConfig struct {
	File             string        `yaml:"file"`
	TargetURL        string        `yaml:"target_url"`
	ClearanceCookie  string        `yaml:"clearance_cookie"`
	TTL              time.Duration `yaml:"ttl"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	Multiplier       float64       `yaml:"multiplier"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	ChallengeTimeout time.Duration `yaml:"challenge_timeout"`
	MinContentBytes  int           `yaml:"min_content_bytes"`
	ProfileRoot      string        `yaml:"profile_root"`
	// EncryptionKeyEnv names the variable holding the passphrase that seals
	// cookie values. Unset or empty means the file is stored in clear.
	EncryptionKeyEnv string `yaml:"encryption_key_env"`
}

type FetchConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	UserAgent  string        `yaml:"user_agent"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	VenuePause time.Duration `yaml:"venue_pause"`
	EventPause time.Duration `yaml:"event_pause"`
}

type OutputConfig struct {
	DataDir string `yaml:"data_dir"`
}

type PostgresConfig struct {
	DSNEnv string `yaml:"dsn_env"` // empty disables the Postgres sink
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node-exporter textfile path; empty disables
}

type Config struct {
	BaseURL  string         `yaml:"base_url"`
	Timezone string         `yaml:"timezone"`
	LogLevel string         `yaml:"log_level"`
	Venues   []VenueConfig  `yaml:"venues"`
	Session  SessionConfig  `yaml:"session"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Output   OutputConfig   `yaml:"output"`
	Postgres PostgresConfig `yaml:"postgres"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// Default returns a configuration with every tunable set and no venues.
func Default() Config {
	sess := session.DefaultConfig("")
	return Config{
		Timezone: "Europe/Madrid",
		LogLevel: "info",
		Session: SessionConfig{
			File:             "~/.local/share/partyfinder/session.json",
			ClearanceCookie:  sess.ClearanceCookie,
			TTL:              sess.TTL,
			MaxAttempts:      sess.Policy.Attempts,
			BaseDelay:        sess.Policy.BaseDelay,
			Multiplier:       sess.Policy.Multiplier,
			PollInterval:     sess.PollInterval,
			ChallengeTimeout: sess.ChallengeTimeout,
			MinContentBytes:  sess.MinContentBytes,
			EncryptionKeyEnv: "PARTYFINDER_SESSION_KEY",
		},
		Fetch: FetchConfig{
			Timeout:    scraper.Timeout,
			UserAgent:  scraper.UserAgent,
			Retries:    scraper.DefaultRetries,
			RetryDelay: scraper.DefaultRetryDelay,
			VenuePause: scraper.DefaultVenuePause,
			EventPause: scraper.DefaultEventPause,
		},
		Output: OutputConfig{DataDir: "~/.local/share/partyfinder"},
	}
}

// Load reads path over the defaults. A missing file yields Default().
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		path = DefaultPath
	}
	path, err := expandHome(path)
	if err != nil {
		return c, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return c, nil
}

// Validate rejects configurations a scrape cannot run with.
func (c Config) Validate() error {
	if len(c.Venues) == 0 {
		return errors.New("no venues configured")
	}
	for i, v := range c.Venues {
		u, err := url.Parse(v.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("venue %d: invalid url %q", i, v.URL)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Session.MaxAttempts < 1 {
		return fmt.Errorf("session.max_attempts must be positive, got %d", c.Session.MaxAttempts)
	}
	if c.Session.Multiplier < 1 {
		return fmt.Errorf("session.multiplier must be at least 1, got %v", c.Session.Multiplier)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL)
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must not be negative, got %d", c.Fetch.Retries)
	}
	return nil
}

// Location loads the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ScraperVenues converts the venue list for the pipeline.
func (c Config) ScraperVenues() []scraper.Venue {
	out := make([]scraper.Venue, 0, len(c.Venues))
	for _, v := range c.Venues {
		nameInURL := true
		if v.NameInURL != nil {
			nameInURL = *v.NameInURL
		}
		out = append(out, scraper.Venue{URL: v.URL, Name: v.Name, City: v.City, NameInURL: nameInURL})
	}
	return out
}

// SessionMachine returns the acquisition tuning. The target defaults to
// the first venue when session.target_url is unset.
func (c Config) SessionMachine() session.Config {
	target := c.Session.TargetURL
	if target == "" && len(c.Venues) > 0 {
		target = c.Venues[0].URL
	}
	cfg := session.DefaultConfig(target)
	cfg.ClearanceCookie = c.Session.ClearanceCookie
	cfg.TTL = c.Session.TTL
	cfg.Policy = session.BackoffPolicy{
		Attempts:   c.Session.MaxAttempts,
		BaseDelay:  c.Session.BaseDelay,
		Multiplier: c.Session.Multiplier,
	}
	cfg.PollInterval = c.Session.PollInterval
	cfg.ChallengeTimeout = c.Session.ChallengeTimeout
	cfg.MinContentBytes = c.Session.MinContentBytes
	cfg.ProfileRoot = c.Session.ProfileRoot
	if cfg.ProfileRoot == "" {
		cfg.ProfileRoot = filepath.Join(os.TempDir(), "partyfinder-profiles")
	}
	cfg.UserAgent = c.Fetch.UserAgent
	return cfg
}

// EncryptionKey returns the session passphrase from the environment.
func (c Config) EncryptionKey() string {
	if c.Session.EncryptionKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Session.EncryptionKeyEnv)
}

// PostgresDSN returns the DSN from the environment, or "" when disabled.
func (c Config) PostgresDSN() string {
	if c.Postgres.DSNEnv == "" {
		return ""
	}
	return os.Getenv(c.Postgres.DSNEnv)
}

func expandHome(path string) (string, error) {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
