// key_repository.go implements KeyRepository, the persistence layer behind the
// key ring. Exactly one signing key row is active at a time; the key ring
// loads it on first use and creates one if none exists.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/media-gateway/media-gateway/internal/db/models"
)

// KeyRepository handles database operations for signing keys
type KeyRepository struct {
	db *sql.DB
}

// NewKeyRepository creates a new key repository
func NewKeyRepository(db *sql.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// ActiveKey retrieves the newest active signing key
func (r *KeyRepository) ActiveKey(ctx context.Context) (*models.SigningKey, error) {
	query := `
		SELECT id, key_id, private_key_pem, public_key_pem, is_active, created_at
		FROM signing_keys
		WHERE is_active
		ORDER BY created_at DESC
		LIMIT 1
	`

	key := &models.SigningKey{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&key.ID,
		&key.KeyID,
		&key.PrivateKeyPEM,
		&key.PublicKeyPEM,
		&key.IsActive,
		&key.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get active signing key: %w", err)
	}

	return key, nil
}

// CreateKey inserts a new signing key row
func (r *KeyRepository) CreateKey(ctx context.Context, key *models.SigningKey) error {
	query := `
		INSERT INTO signing_keys (key_id, private_key_pem, public_key_pem, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		key.KeyID,
		key.PrivateKeyPEM,
		key.PublicKeyPEM,
	).Scan(&key.ID, &key.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create signing key: %w", err)
	}

	key.IsActive = true
	return nil
}
