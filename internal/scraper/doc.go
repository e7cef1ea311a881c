// Package scraper fetches venue listing and event pages with the session
// credential and drives the parsing pipeline over them.
//
// The Fetcher retries transient failures with bounded backoff and
// classifies anti-bot responses: a challenge page or a "error code: 1020"
// body means the credential expired and the run must stop, while other
// refusals only make one page unavailable. The Pipeline runs discovery on
// each venue listing, parses every discovered event page (rendered text,
// JSON-LD and transfer state), reconciles tickets and normalizes the
// result. Parsing is pure; the pipeline is the only place that logs.
package scraper
