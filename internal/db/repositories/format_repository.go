// format_repository.go implements FormatRepository over sqlx. Formats are
// immutable reference data, so only reads are exposed.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/media-gateway/media-gateway/internal/db/models"
)

// FormatRepository handles database reads for format specifications
type FormatRepository struct {
	db *sqlx.DB
}

// NewFormatRepository creates a new format repository
func NewFormatRepository(db *sqlx.DB) *FormatRepository {
	return &FormatRepository{db: db}
}

type formatRow struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	Width        int       `db:"width"`
	Height       int       `db:"height"`
	Quality      int       `db:"quality"`
	Extension    string    `db:"extension"`
	CropMode     string    `db:"crop_mode"`
	CropPosition string    `db:"crop_position"`
	CreatedAt    time.Time `db:"created_at"`
}

func (row *formatRow) toModel() *models.Format {
	return &models.Format{
		ID:           row.ID,
		Name:         row.Name,
		Width:        row.Width,
		Height:       row.Height,
		Quality:      row.Quality,
		Extension:    row.Extension,
		CropMode:     row.CropMode,
		CropPosition: row.CropPosition,
		CreatedAt:    row.CreatedAt,
	}
}

// GetFormatByID retrieves a format by its primary key
func (r *FormatRepository) GetFormatByID(ctx context.Context, id int64) (*models.Format, error) {
	query := `
		SELECT id, name, width, height, quality, extension, crop_mode, crop_position, created_at
		FROM formats
		WHERE id = $1
	`

	var row formatRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get format: %w", err)
	}

	return row.toModel(), nil
}

// ListFormats retrieves all formats ordered by name
func (r *FormatRepository) ListFormats(ctx context.Context) ([]*models.Format, error) {
	query := `
		SELECT id, name, width, height, quality, extension, crop_mode, crop_position, created_at
		FROM formats
		ORDER BY name
	`

	var rows []formatRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list formats: %w", err)
	}

	formats := make([]*models.Format, 0, len(rows))
	for i := range rows {
		formats = append(formats, rows[i].toModel())
	}

	return formats, nil
}
