// Package postgres stores the event catalog in PostgreSQL. Every run
// replaces the catalog inside one transaction, so readers see either the
// previous run or the new one.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pfrederiksen/partyfinder/internal/event"
)

//go:embed schema.sql
var schemaSQL string

const migrationLockID int64 = 730119201

// Catalog is a Postgres-backed storage.Sink.
type Catalog struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Catalog, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Catalog{pool: pool}, nil
}

// NewCatalog wraps an existing pool.
func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// Close releases the pool.
func (c *Catalog) Close() {
	c.pool.Close()
}

// Migrate creates the catalog tables if they do not exist.
func (c *Catalog) Migrate(ctx context.Context) error {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockID)
	}()

	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ReplaceAll deletes the previous catalog and inserts events.
func (c *Catalog) ReplaceAll(ctx context.Context, events []event.CanonicalEvent) error {
	now := time.Now().UTC()
	return withTx(ctx, c.pool, func(ctx context.Context) error {
		tx := txFromContext(ctx)

		if _, err := tx.Exec(ctx, `DELETE FROM events`); err != nil {
			return fmt.Errorf("clear events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		const insertEvent = `
INSERT INTO events (
	id, source_url, code, name, description, event_date, start_time, end_time, image_url,
	venue_name, venue_address, venue_city, venue_postal_code, latitude, longitude,
	tags, age_minimum, dress_code, confidence, replaced_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

		batch := &pgx.Batch{}
		var ticketRows [][]any
		for _, e := range events {
			var lat, lng *float64
			if e.Venue.Coordinates != nil {
				lat, lng = &e.Venue.Coordinates.Latitude, &e.Venue.Coordinates.Longitude
			}
			tags := e.Tags
			if tags == nil {
				tags = []string{}
			}
			batch.Queue(insertEvent,
				e.ID, e.SourceURL, e.Code, e.Name, e.Description, e.Date, e.StartTime, e.EndTime, e.ImageURL,
				e.Venue.Name, e.Venue.Address, e.Venue.City, e.Venue.PostalCode, lat, lng,
				tags, e.AgeMinimum, e.DressCode, string(e.Confidence), now,
			)
			for i, t := range e.Tickets {
				ticketRows = append(ticketRows, []any{e.ID, i, t.Name, t.Price, t.SoldOut, t.Description, t.PurchaseURL})
			}
		}

		br := tx.SendBatch(ctx, batch)
		for range events {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert event: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("insert events: %w", err)
		}

		if len(ticketRows) == 0 {
			return nil
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"tickets"},
			[]string{"event_id", "seq", "name", "price", "sold_out", "description", "purchase_url"},
			pgx.CopyFromRows(ticketRows),
		)
		if err != nil {
			return fmt.Errorf("copy tickets: %w", err)
		}
		return nil
	})
}

// List returns the stored catalog ordered by date and name.
func (c *Catalog) List(ctx context.Context) ([]event.CanonicalEvent, error) {
	const query = `
SELECT id, source_url, code, name, description, event_date, start_time, end_time, image_url,
	venue_name, venue_address, venue_city, venue_postal_code, latitude, longitude,
	tags, age_minimum, dress_code, confidence
FROM events
ORDER BY event_date, name, id`

	rows, err := c.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []event.CanonicalEvent{}
	index := make(map[string]int)
	for rows.Next() {
		var (
			e          event.CanonicalEvent
			lat, lng   *float64
			confidence string
		)
		if err := rows.Scan(
			&e.ID, &e.SourceURL, &e.Code, &e.Name, &e.Description, &e.Date, &e.StartTime, &e.EndTime, &e.ImageURL,
			&e.Venue.Name, &e.Venue.Address, &e.Venue.City, &e.Venue.PostalCode, &lat, &lng,
			&e.Tags, &e.AgeMinimum, &e.DressCode, &confidence,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if lat != nil && lng != nil {
			e.Venue.Coordinates = &event.Coordinates{Latitude: *lat, Longitude: *lng}
		}
		e.Confidence = event.Confidence(confidence)
		e.Tickets = []event.CanonicalTicket{}
		index[e.ID] = len(events)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	trows, err := c.query(ctx, `
SELECT event_id, name, price, sold_out, description, purchase_url
FROM tickets
ORDER BY event_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer trows.Close()

	for trows.Next() {
		var (
			eventID string
			t       event.CanonicalTicket
		)
		if err := trows.Scan(&eventID, &t.Name, &t.Price, &t.SoldOut, &t.Description, &t.PurchaseURL); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		if i, ok := index[eventID]; ok {
			events[i].Tickets = append(events[i].Tickets, t)
		}
	}
	if err := trows.Err(); err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return events, nil
}

func (c *Catalog) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return c.pool.Query(ctx, sql, args...)
}

func (c *Catalog) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return c.pool.Exec(ctx, sql, args...)
}

// Truncate empties the catalog tables.
func (c *Catalog) Truncate(ctx context.Context) error {
	if _, err := c.exec(ctx, `TRUNCATE tickets, events`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}
