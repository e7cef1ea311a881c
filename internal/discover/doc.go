// Package discover finds event stubs on a venue listing page.
//
// Discovery runs an ordered list of independent strategies and keeps the
// output of the first one that finds anything. Results from different
// strategies are never merged.
//
// Strategies, in order:
//
//   - transfer-state: entries from the page's embedded JSON state
//   - labelled-link: event links whose accessible label carries "Evento:"
//   - component-marker: event card components and their enclosing link
//   - permissive-link: any link shaped like an event detail path
//   - rendered-text: path fragments in the rendered text, then codes paired
//     with headings by order of appearance (low confidence)
package discover
