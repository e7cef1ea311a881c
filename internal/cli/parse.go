package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/partyfinder/internal/discover"
	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/logger"
	"github.com/pfrederiksen/partyfinder/internal/normalize"
	"github.com/pfrederiksen/partyfinder/internal/render"
	"github.com/pfrederiksen/partyfinder/internal/scraper"
)

var (
	flagListing   string
	flagEvent     string
	flagPageURL   string
	flagNoNameURL bool
	flagNow       string
)

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Run the parsers over a saved page without network access",
		Long: `Parse a saved venue listing (--listing) to list the events it links to,
or a saved event page (--event) to print the canonical event it yields.
--url is the address the page was saved from.`,
		RunE: runParse,
	}
	cmd.Flags().StringVar(&flagListing, "listing", "", "Saved venue listing page")
	cmd.Flags().StringVar(&flagEvent, "event", "", "Saved event detail page")
	cmd.Flags().StringVar(&flagPageURL, "url", "", "URL the page was saved from (required)")
	cmd.Flags().BoolVar(&flagNoNameURL, "code-only-urls", false, "The venue's event URLs carry only a code")
	cmd.Flags().StringVar(&flagNow, "now", "", "Reference date (YYYY-MM-DD) for dates without a year")
	cmd.MarkFlagRequired("url")
	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	if (flagListing == "") == (flagEvent == "") {
		return errors.New("exactly one of --listing or --event is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	now := time.Now()
	if flagNow != "" {
		now, err = time.ParseInLocation("2006-01-02", flagNow, loc)
		if err != nil {
			return fmt.Errorf("invalid --now: %w", err)
		}
	}

	path := flagListing
	if path == "" {
		path = flagEvent
	}
	page, err := readPage(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flagListing != "" {
		stubs, tr := discover.Discover(discover.Input{
			Page:      page,
			PageURL:   flagPageURL,
			BaseURL:   cfg.BaseURL,
			NameInURL: !flagNoNameURL,
			Location:  loc,
		})
		logger.LogTrace(tr, logger.Fields{"file": path})
		return writeStubs(out, stubs, format)
	}

	rec, tr := scraper.BuildRecord(discover.StubFor(flagPageURL), event.Venue{}, page)
	logger.LogTrace(tr, logger.Fields{"file": path})
	evt := normalize.Canonical(rec, normalize.Options{Now: now, Location: loc})
	result := &OutputResult{
		CheckedAt:  now.UTC(),
		Events:     []*event.CanonicalEvent{&evt},
		EventCount: 1,
	}
	return WriteOutput(out, result, format, true)
}

func readPage(path string) (*render.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer f.Close()

	page, err := render.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return page, nil
}

func writeStubs(w io.Writer, stubs []event.EventStub, format OutputFormat) error {
	if stubs == nil {
		stubs = []event.EventStub{}
	}
	if format == FormatJSON {
		return writeJSON(w, stubs)
	}
	if len(stubs) == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}
	for _, s := range stubs {
		fmt.Fprintf(w, "%s\n", s.SourceURL)
		if s.DisplayName != "" {
			fmt.Fprintf(w, "     Name: %s\n", s.DisplayName)
		}
		if s.DateHint != "" {
			fmt.Fprintf(w, "     Date: %s\n", s.DateHint)
		}
		fmt.Fprintf(w, "     Strategy: %s (%s confidence)\n", s.Strategy, s.Confidence)
	}
	fmt.Fprintf(w, "\nTotal: %d events\n", len(stubs))
	return nil
}
