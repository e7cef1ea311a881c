package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/partyfinder/internal/clock"
	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/filter"
	"github.com/pfrederiksen/partyfinder/internal/storage"
)

var (
	flagDate      string
	flagVenues    []string
	flagCities    []string
	flagTags      []string
	flagWeekends  bool
	flagMaxPrice  float64
	flagAvailable bool
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events from the stored catalog without scraping",
		Long: `List events from the catalog written by the last scrape.

Filters combine with AND. Repeated --venue, --city and --tag flags match
any of their values. Use --format ics to export a calendar.`,
		Example: `  partyfinder list --weekends --max-price 15
  partyfinder list --date 2026-10-16..2026-10-18 --tag techno
  partyfinder list --date octubre --format ics > octubre.ics`,
		RunE: runList,
	}
	cmd.Flags().StringVar(&flagDataDir, "data-dir", "", "Data directory for the catalog and snapshots (overrides config)")
	cmd.Flags().StringVar(&flagSort, "sort", string(SortByDate), "Sort order: date, venue or name")
	cmd.Flags().StringVar(&flagDate, "date", "", "Date or range: 2026-10-16, 2026-10-16..2026-10-18, '18 oct' or 'octubre'")
	cmd.Flags().StringSliceVar(&flagVenues, "venue", nil, "Only venues whose name contains this text")
	cmd.Flags().StringSliceVar(&flagCities, "city", nil, "Only venues in cities containing this text")
	cmd.Flags().StringSliceVar(&flagTags, "tag", nil, "Only events with this tag")
	cmd.Flags().BoolVar(&flagWeekends, "weekends", false, "Only Friday and Saturday nights")
	cmd.Flags().Float64Var(&flagMaxPrice, "max-price", 0, "Only events whose cheapest available ticket costs at most this")
	cmd.Flags().BoolVar(&flagAvailable, "available", false, "Only events with tickets still on sale")
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
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
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	now := clock.NewSystem().Now().In(loc)

	f, err := buildFilter(now)
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.Output.DataDir)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	catalog, err := store.LoadCatalog("")
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	events := make([]*event.CanonicalEvent, len(catalog))
	for i := range catalog {
		events[i] = &catalog[i]
	}
	events = f.Apply(events)
	sortEvents(events, sortOrder)

	if !f.IsEmpty() && format == FormatText {
		fmt.Fprintf(cmd.ErrOrStderr(), "Filters: %s\n", f.String())
	}

	result := &OutputResult{
		CheckedAt:  now,
		Events:     events,
		EventCount: len(events),
		Location:   loc,
	}
	return WriteOutput(cmd.OutOrStdout(), result, format, flagVerbose)
}

func buildFilter(now time.Time) (*filter.Filter, error) {
	f := filter.NewFilter()
	if strings.TrimSpace(flagDate) != "" {
		from, to, err := filter.ParseDateRange(flagDate, now)
		if err != nil {
			return nil, err
		}
		f.DateFrom, f.DateTo = from, to
	}
	if flagMaxPrice < 0 {
		return nil, fmt.Errorf("invalid max price: %v", flagMaxPrice)
	}
	f.Venues = append(f.Venues, flagVenues...)
	f.Cities = append(f.Cities, flagCities...)
	f.Tags = append(f.Tags, flagTags...)
	f.WeekendsOnly = flagWeekends
	f.MaxPrice = flagMaxPrice
	f.AvailableOnly = flagAvailable
	return f, nil
}
