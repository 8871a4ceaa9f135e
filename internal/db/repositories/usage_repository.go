// usage_repository.go implements UsageRepository over sqlx, providing the
// append-only usage event log and the windowed denial counts consumed by the
// violation escalator.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/media-gateway/media-gateway/internal/db/models"
)

// UsageRepository handles database operations for usage events
type UsageRepository struct {
	db *sqlx.DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *sqlx.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// CreateEvent appends a usage event. Events are never updated or deleted.
func (r *UsageRepository) CreateEvent(ctx context.Context, event *models.UsageEvent) error {
	query := `
		INSERT INTO usage_events (link_id, action, source_ip, domain, user_agent, authorized, violation_kind, geo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		event.LinkID,
		event.Action,
		event.SourceIP,
		event.Domain,
		event.UserAgent,
		event.Authorized,
		event.ViolationKind,
		event.Geo,
	).Scan(&event.ID, &event.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create usage event: %w", err)
	}

	return nil
}

// CountDeniedByIPSince counts denied events from one source IP in the
// trailing window starting at since.
func (r *UsageRepository) CountDeniedByIPSince(ctx context.Context, sourceIP string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM usage_events
		WHERE source_ip = $1 AND NOT authorized AND created_at >= $2
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, sourceIP, since); err != nil {
		return 0, fmt.Errorf("failed to count denied usage events: %w", err)
	}

	return count, nil
}

// usageEventRow mirrors the usage_events columns for sqlx scanning.
type usageEventRow struct {
	ID            int64      `db:"id"`
	LinkID        int64      `db:"link_id"`
	Action        string     `db:"action"`
	SourceIP      string     `db:"source_ip"`
	Domain        string     `db:"domain"`
	UserAgent     string     `db:"user_agent"`
	Authorized    bool       `db:"authorized"`
	ViolationKind *string    `db:"violation_kind"`
	Geo           []byte     `db:"geo"`
	CreatedAt     time.Time  `db:"created_at"`
}

// ListByLink retrieves usage events for one link, newest first
func (r *UsageRepository) ListByLink(ctx context.Context, linkID int64, limit, offset int) ([]*models.UsageEvent, error) {
	query := `
		SELECT id, link_id, action, source_ip, domain, user_agent, authorized, violation_kind, geo, created_at
		FROM usage_events
		WHERE link_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var rows []usageEventRow
	if err := r.db.SelectContext(ctx, &rows, query, linkID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list usage events: %w", err)
	}

	events := make([]*models.UsageEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, &models.UsageEvent{
			ID:            row.ID,
			LinkID:        row.LinkID,
			Action:        row.Action,
			SourceIP:      row.SourceIP,
			Domain:        row.Domain,
			UserAgent:     row.UserAgent,
			Authorized:    row.Authorized,
			ViolationKind: row.ViolationKind,
			Geo:           row.Geo,
			CreatedAt:     row.CreatedAt,
		})
	}

	return events, nil
}
