package event

import (
	"crypto/sha1"
	"fmt"
	"strconv"
	"strings"
)

// Confidence grades how an event stub was discovered.
type Confidence string

const (
	// ConfidenceHigh stubs come from structural markup or transfer state.
	ConfidenceHigh Confidence = "high"
	// ConfidenceLow stubs were assembled by pairing codes and headings by position.
	ConfidenceLow Confidence = "low"
)

// EventStub is one detected event link on a venue listing page.
// SourceURL is the natural key.
type EventStub struct {
	SourceURL   string     `json:"sourceUrl"`
	DisplayName string     `json:"displayName,omitempty"`
	Code        string     `json:"code,omitempty"`
	VenueSlug   string     `json:"venueSlug,omitempty"`
	DateHint    string     `json:"dateHint,omitempty"`
	AgeMinimum  int        `json:"ageMinimum,omitempty"`
	StartTime   string     `json:"startTime,omitempty"`
	EndTime     string     `json:"endTime,omitempty"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Strategy    string     `json:"strategy"`
	Confidence  Confidence `json:"confidence"`
}

// TicketCandidate is a ticket assembled from rendered text. Price is nil
// until a price line has been attributed to it.
type TicketCandidate struct {
	Name        string   `json:"name"`
	Price       *float64 `json:"price,omitempty"`
	SoldOut     bool     `json:"soldOut"`
	Description string   `json:"description,omitempty"`
	SourceLine  int      `json:"-"`
}

// SchemaOffer is a schema.org Offer read from JSON-LD.
type SchemaOffer struct {
	Name        string   `json:"name"`
	Price       *float64 `json:"price,omitempty"`
	PurchaseURL string   `json:"purchaseUrl"`
	SoldOut     bool     `json:"soldOut"`
}

// CanonicalTicket is a reconciled ticket. Price is never null in output.
type CanonicalTicket struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	SoldOut     bool    `json:"soldOut"`
	Description string  `json:"description"`
	PurchaseURL string  `json:"purchaseUrl"`
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Venue is where an event takes place.
type Venue struct {
	Name        string       `json:"name"`
	Address     string       `json:"address"`
	City        string       `json:"city"`
	PostalCode  string       `json:"postalCode,omitempty"`
	Coordinates *Coordinates `json:"coordinates"`
}

// CanonicalEvent is the output record handed to storage. A run's output
// replaces the previous run's output as a whole.
type CanonicalEvent struct {
	ID          string            `json:"id"`
	SourceURL   string            `json:"sourceUrl"`
	Code        string            `json:"code,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Date        string            `json:"date"`
	StartTime   string            `json:"startTime"`
	EndTime     string            `json:"endTime"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	Venue       Venue             `json:"venue"`
	Tags        []string          `json:"tags"`
	AgeMinimum  int               `json:"ageMinimum"`
	DressCode   string            `json:"dressCode,omitempty"`
	Confidence  Confidence        `json:"confidence"`
	Tickets     []CanonicalTicket `json:"tickets"`
}

// GenerateID creates a deterministic ID for an event from its page URL.
func GenerateID(sourceURL string) string {
	h := sha1.New()
	h.Write([]byte(strings.TrimRight(strings.TrimSpace(sourceURL), "/")))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// GenerateStableKey identifies a logical showing independent of URL:
// the normalized display name plus the show date.
func GenerateStableKey(name, date string) string {
	h := sha1.New()
	h.Write([]byte(NormalizeName(name) + "|" + strings.TrimSpace(date)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// FormatPrice renders a price the way dedup keys compare it. A nil price
// renders as "0".
func FormatPrice(p *float64) string {
	if p == nil {
		return "0"
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

// TicketKey is the normalized (name, price) pair that must be unique
// within one event.
func TicketKey(name string, price *float64) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ") + "|" + FormatPrice(price)
}

// PriceOf returns a pointer to v, for literal prices.
func PriceOf(v float64) *float64 {
	return &v
}
