// Package persistence records admitted webhook events for audit. The
// repository is optional: a nil *EventLogRepository disables logging
// without touching the pipeline.
package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const eventLogFindQuery = `SELECT id, event_type, store_id, shop_domain, occurred_at, payload, created_at FROM webhook_events`

// EventLogEntry is one admitted webhook delivery persisted for audit.
type EventLogEntry struct {
	ID         string
	EventType  string
	StoreID    string
	ShopDomain string
	OccurredAt time.Time
	Payload    json.RawMessage
	CreatedAt  time.Time
}

type EventLogRepository struct {
	pool *pgxpool.Pool
}

func NewEventLogRepository(pool *pgxpool.Pool) *EventLogRepository {
	return &EventLogRepository{pool: pool}
}

// Insert records an admitted event. Nil receivers are a no-op so the
// pipeline runs without a database.
func (r *EventLogRepository) Insert(ctx context.Context, e EventLogEntry) error {
	if r == nil || r.pool == nil {
		return nil
	}

	query := `
		INSERT INTO webhook_events (id, event_type, store_id, shop_domain, occurred_at, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, e.ID, e.EventType, e.StoreID, e.ShopDomain, e.OccurredAt, e.Payload); err != nil {
		return errors.Wrap(err, "insert webhook event")
	}
	return nil
}

// RecentByShop returns the newest events for a shop, most recent first.
func (r *EventLogRepository) RecentByShop(ctx context.Context, shopDomain string, limit int) ([]EventLogEntry, error) {
	if r == nil || r.pool == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	query := eventLogFindQuery + " WHERE shop_domain = $1 ORDER BY created_at DESC LIMIT $2"
	rows, err := r.pool.Query(ctx, query, shopDomain, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query webhook events")
	}
	defer rows.Close()

	var out []EventLogEntry
	for rows.Next() {
		var e EventLogEntry
		if err := rows.Scan(&e.ID, &e.EventType, &e.StoreID, &e.ShopDomain, &e.OccurredAt, &e.Payload, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan webhook event")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate webhook events")
	}
	return out, nil
}

// CountSince reports how many events a shop delivered after the cutoff.
func (r *EventLogRepository) CountSince(ctx context.Context, shopDomain string, since time.Time) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, nil
	}

	query := `SELECT count(*) FROM webhook_events WHERE shop_domain = $1 AND created_at >= $2`
	var n int64
	if err := r.pool.QueryRow(ctx, query, shopDomain, since).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count webhook events")
	}
	return n, nil
}
