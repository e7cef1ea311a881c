package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/spf13/cobra"

	"github.com/pfrederiksen/partyfinder/internal/clock"
	"github.com/pfrederiksen/partyfinder/internal/config"
	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/logger"
	"github.com/pfrederiksen/partyfinder/internal/metrics"
	"github.com/pfrederiksen/partyfinder/internal/scraper"
	"github.com/pfrederiksen/partyfinder/internal/session"
	"github.com/pfrederiksen/partyfinder/internal/storage"
	"github.com/pfrederiksen/partyfinder/internal/storage/postgres"
)

const (
	ExitSuccess   = 0
	ExitError     = 1
	ExitNewEvents = 2
)

var (
	flagConfig   string
	flagDataDir  string
	flagFormat   string
	flagSort     string
	flagVenue    string
	flagLogLevel string
	flagRefresh  bool
	flagVerbose  bool
)

// exitError carries a non-error exit status out of a command.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partyfinder",
		Short: "Scrape nightclub events and tickets into a canonical catalog",
		Long: `A CLI tool that scrapes venue listing pages behind an anti-bot challenge,
reconciles ticket text with structured offers and stores one canonical
catalog per run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logger.LevelInfo
			if flagVerbose {
				level = logger.LevelDebug
			}
			if flagLogLevel != "" {
				l, err := logger.ParseLevel(flagLogLevel)
				if err != nil {
					return err
				}
				level = l
			}
			logger.SetDefault(logger.New(level, cmd.ErrOrStderr()))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath, "Path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "Output format: text or json (ics for event listings)")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose logging")

	cmd.AddCommand(newScrapeCmd(), newListCmd(), newSessionCmd(), newParseCmd())
	return cmd
}

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape every configured venue and replace the stored catalog",
		RunE:  runScrape,
	}
	cmd.Flags().StringVar(&flagDataDir, "data-dir", "", "Data directory for the catalog and snapshots (overrides config)")
	cmd.Flags().StringVar(&flagVenue, "venue", "", "Only scrape venues whose name or URL contains this text")
	cmd.Flags().StringVar(&flagSort, "sort", string(SortByDate), "Sort order: date, venue or name")
	cmd.Flags().BoolVar(&flagRefresh, "refresh", false, "Refresh the snapshot without reporting changes")
	return cmd
}

func outputFormat() (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(flagFormat))
	if format != FormatText && format != FormatJSON {
		return "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", flagFormat)
	}
	return format, nil
}

// eventFormat is outputFormat for commands that print events, which can
// also be exported as a calendar.
func eventFormat() (OutputFormat, error) {
	if strings.EqualFold(flagFormat, string(FormatICS)) {
		return FormatICS, nil
	}
	format, err := outputFormat()
	if err != nil {
		return "", fmt.Errorf("invalid format: %s (must be 'text', 'json' or 'ics')", flagFormat)
	}
	return format, nil
}

func parseSortOrder() (SortOrder, error) {
	sortOrder := SortOrder(strings.ToLower(flagSort))
	if !sortOrder.Valid() {
		return "", fmt.Errorf("invalid sort order: %s (must be 'date', 'venue' or 'name')", flagSort)
	}
	return sortOrder, nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	if flagDataDir != "" {
		cfg.Output.DataDir = flagDataDir
	}
	return cfg, nil
}

// runScrape is the main command logic
func runScrape(cmd *cobra.Command, args []string) error {
	format, err := eventFormat()
	if err != nil {
		return err
	}
	sortOrder, err := parseSortOrder()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagVenue != "" {
		cfg.Venues = filterVenues(cfg.Venues, flagVenue)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.NewSystem()
	rec := metrics.New()
	started := clk.Now()
	ok := false
	defer func() {
		rec.Finish(started, clk.Now(), ok)
		if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("Could not write metrics", logger.Fields{"error": err.Error()})
		}
	}()

	store, err := storage.New(cfg.Output.DataDir)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	machine, err := newMachine(cfg, clk)
	if err != nil {
		return err
	}

	cred, err := machine.Run(ctx)
	if err != nil {
		rec.Session("failed")
		return fmt.Errorf("acquiring session: %w", err)
	}
	rec.Session(sessionOutcome(machine))

	run := func(cred *session.Credential) (*scraper.Result, error) {
		fetcher := scraper.NewFetcher(cred, scraper.FetcherOptions{
			Timeout:    cfg.Fetch.Timeout,
			UserAgent:  cfg.Fetch.UserAgent,
			Retries:    cfg.Fetch.Retries,
			RetryDelay: cfg.Fetch.RetryDelay,
			Clock:      clk,
			Metrics:    rec,
		})
		p := scraper.New(fetcher, scraper.Options{
			BaseURL:    cfg.BaseURL,
			VenuePause: cfg.Fetch.VenuePause,
			EventPause: cfg.Fetch.EventPause,
			Location:   loc,
			Clock:      clk,
			Metrics:    rec,
		})
		return p.Run(ctx, cfg.ScraperVenues())
	}

	res, err := run(cred)
	if scraper.IsExpired(err) {
		// The target rejected a credential that looked valid locally.
		logger.Warn("Session rejected by target, re-acquiring", logger.Fields{"error": err.Error()})
		cred, err = machine.Acquire(ctx)
		if err != nil {
			rec.Session("failed")
			return fmt.Errorf("re-acquiring session: %w", err)
		}
		rec.Session("acquired")
		res, err = run(cred)
	}
	if err != nil {
		return fmt.Errorf("scraping: %w", err)
	}

	scope := ""
	if flagVenue != "" {
		scope = slug(flagVenue)
	}
	diff, err := store.Commit(ctx, scope, res.Events)
	if err != nil {
		return fmt.Errorf("saving catalog: %w", err)
	}
	rec.Changes(len(diff.NewEvents), len(diff.ChangedEvents), len(diff.RemovedIDs))

	if dsn := cfg.PostgresDSN(); dsn != "" {
		if scope != "" {
			// A partial run must not replace the full remote catalog.
			logger.Warn("Skipping postgres for a single-venue run", logger.Fields{"venue": flagVenue})
		} else if err := replacePostgres(ctx, dsn, res.Events); err != nil {
			return err
		}
	}
	ok = true

	result := NewOutputResult(clk.Now(), res, diff)
	result.Location = loc
	sortEvents(result.Events, sortOrder)
	if flagRefresh {
		result.NewEvents, result.ChangedEvents, result.RemovedIDs = nil, nil, nil
	}
	if err := WriteOutput(cmd.OutOrStdout(), result, format, flagVerbose); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if !flagRefresh && diff.HasChanges() {
		return exitError{code: ExitNewEvents}
	}
	return nil
}

func newMachine(cfg config.Config, clk clock.Clock) (*session.Machine, error) {
	store, err := session.NewStore(cfg.Session.File, cfg.EncryptionKey())
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	browser := &session.HTTPBrowser{
		Transport: gzhttp.Transport(http.DefaultTransport),
		UserAgent: cfg.Fetch.UserAgent,
	}
	return session.NewMachine(cfg.SessionMachine(), store, browser, clk), nil
}

func sessionOutcome(m *session.Machine) string {
	for _, s := range m.History() {
		if s == session.StateAcquiring {
			return "acquired"
		}
	}
	return "reused"
}

func replacePostgres(ctx context.Context, dsn string, events []event.CanonicalEvent) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	catalog, err := postgres.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer catalog.Close()

	if err := catalog.Migrate(ctx); err != nil {
		return err
	}
	var sink storage.Sink = catalog
	if err := sink.ReplaceAll(ctx, events); err != nil {
		return fmt.Errorf("replacing postgres catalog: %w", err)
	}
	logger.Info("Postgres catalog replaced", logger.Fields{"events": len(events)})
	return nil
}

func filterVenues(venues []config.VenueConfig, needle string) []config.VenueConfig {
	needle = strings.ToLower(strings.TrimSpace(needle))
	var out []config.VenueConfig
	for _, v := range venues {
		if strings.Contains(strings.ToLower(v.Name), needle) || strings.Contains(strings.ToLower(v.URL), needle) {
			out = append(out, v)
		}
	}
	return out
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(event.FoldAccents(s))), "-")
}

// Execute runs the CLI
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}
