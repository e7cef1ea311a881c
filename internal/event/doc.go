// Package event defines the records that flow through a scrape run.
//
// Event stubs come out of discovery, ticket candidates out of the text
// parser, schema offers out of the JSON-LD extractor, and the reconciled
// canonical events are what the storage layer receives. The package also
// holds the typed errors, date-text parsing, and the snapshot diff used to
// report what changed since the previous run.
package event
