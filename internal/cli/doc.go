// Package cli implements the command-line interface for partyfinder.
//
// The cli package provides the Cobra-based CLI: scrape runs the full
// pipeline against the configured venues and stores the catalog, list
// filters the stored catalog, session inspects or refreshes the anti-bot
// credential, and parse runs the pure parsers over saved pages. Events can
// be written as text, JSON or an iCalendar feed.
package cli
