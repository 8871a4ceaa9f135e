// link_repository.go implements LinkRepository, providing database queries for
// signed link rows: creation, hash lookup, deactivation, and the atomic
// per-action usage counters.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/media-gateway/media-gateway/internal/db/models"
)

// LinkRepository handles database operations for signed links
type LinkRepository struct {
	db *sql.DB
}

// NewLinkRepository creates a new link repository
func NewLinkRepository(db *sql.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// CreateLink inserts a new signed link record
func (r *LinkRepository) CreateLink(ctx context.Context, link *models.SignedLink) error {
	query := `
		INSERT INTO signed_links (media_id, format_id, link_hash, signature, key_id, expires_at, created_by, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		link.MediaID,
		link.FormatID,
		link.LinkHash,
		link.Signature,
		link.KeyID,
		link.ExpiresAt,
		link.CreatedBy,
	).Scan(&link.ID, &link.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create signed link: %w", err)
	}

	link.IsActive = true
	return nil
}

const linkColumns = `id, media_id, format_id, link_hash, signature, key_id, expires_at,
	       created_by, is_active, download_count, copy_count, created_at`

func scanLink(row *sql.Row) (*models.SignedLink, error) {
	link := &models.SignedLink{}
	err := row.Scan(
		&link.ID,
		&link.MediaID,
		&link.FormatID,
		&link.LinkHash,
		&link.Signature,
		&link.KeyID,
		&link.ExpiresAt,
		&link.CreatedBy,
		&link.IsActive,
		&link.DownloadCount,
		&link.CopyCount,
		&link.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, err
	}
	return link, nil
}

// ActiveLinkByHash retrieves an active signed link by its link hash
func (r *LinkRepository) ActiveLinkByHash(ctx context.Context, linkHash string) (*models.SignedLink, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM signed_links
		WHERE link_hash = $1 AND is_active
	`

	link, err := scanLink(r.db.QueryRowContext(ctx, query, linkHash))
	if err != nil {
		return nil, fmt.Errorf("failed to get signed link by hash: %w", err)
	}
	return link, nil
}

// GetLinkByID retrieves a signed link by its primary key
func (r *LinkRepository) GetLinkByID(ctx context.Context, id int64) (*models.SignedLink, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM signed_links
		WHERE id = $1
	`

	link, err := scanLink(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get signed link by id: %w", err)
	}
	return link, nil
}

// DeactivateLink flips is_active to false for a link
func (r *LinkRepository) DeactivateLink(ctx context.Context, id int64) error {
	query := `UPDATE signed_links SET is_active = FALSE WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate signed link: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("signed link: %w", ErrNotFound)
	}

	return nil
}

// IncrementActionCount atomically adds n to the per-action counter for a link.
// The increment happens in SQL ("add N where id = X"), never read-modify-write
// in application code, so concurrent requests against the same link cannot
// lose updates. Actions without a counter (view) are a no-op.
func (r *LinkRepository) IncrementActionCount(ctx context.Context, id int64, action string, n int) error {
	var column string
	switch action {
	case "download":
		column = "download_count"
	case "copy":
		column = "copy_count"
	default:
		return nil
	}

	query := fmt.Sprintf(`UPDATE signed_links SET %s = %s + $1 WHERE id = $2`, column, column)

	_, err := r.db.ExecContext(ctx, query, n, id)
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", column, err)
	}

	return nil
}

// DeactivateExpired flips is_active to false on every active link whose
// expiry has passed. Used by the periodic sweep job; returns the number of
// links swept.
func (r *LinkRepository) DeactivateExpired(ctx context.Context) (int64, error) {
	query := `UPDATE signed_links SET is_active = FALSE WHERE is_active AND expires_at <= NOW()`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired links: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}
