// media_repository.go implements MediaRepository. The gateway only reads media
// rows; upload and ownership management belong to the surrounding application.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/media-gateway/media-gateway/internal/db/models"
)

// MediaRepository handles database reads for media objects
type MediaRepository struct {
	db *sql.DB
}

// NewMediaRepository creates a new media repository
func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// GetMediaByID retrieves a media object by its primary key
func (r *MediaRepository) GetMediaByID(ctx context.Context, id int64) (*models.MediaObject, error) {
	query := `
		SELECT id, owner_id, title, storage_path, mime_type, size_bytes, created_at, updated_at
		FROM media_objects
		WHERE id = $1
	`

	media := &models.MediaObject{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&media.ID,
		&media.OwnerID,
		&media.Title,
		&media.StoragePath,
		&media.MimeType,
		&media.SizeBytes,
		&media.CreatedAt,
		&media.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get media object: %w", err)
	}

	return media, nil
}
