// policy_repository.go implements PolicyRepository, providing database queries
// for allow/deny rules consumed by the policy engine and written by the
// violation escalator.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/media-gateway/media-gateway/internal/db/models"
)

// PolicyRepository handles database operations for policy rules
type PolicyRepository struct {
	db *sql.DB
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *sql.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

const policyColumns = `id, subject_type, subject_value, list_type, allowed_actions,
	       is_active, created_by, comment, created_at`

// CreateRule inserts a new policy rule
func (r *PolicyRepository) CreateRule(ctx context.Context, rule *models.PolicyRule) error {
	query := `
		INSERT INTO policy_rules (subject_type, subject_value, list_type, allowed_actions, is_active, created_by, comment)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		rule.SubjectType,
		rule.SubjectValue,
		rule.ListType,
		pq.Array(rule.AllowedActions),
		rule.CreatedBy,
		rule.Comment,
	).Scan(&rule.ID, &rule.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create policy rule: %w", err)
	}

	rule.IsActive = true
	return nil
}

// ActiveRules retrieves all active rules for a subject type
func (r *PolicyRepository) ActiveRules(ctx context.Context, subjectType string) ([]*models.PolicyRule, error) {
	query := `
		SELECT ` + policyColumns + `
		FROM policy_rules
		WHERE subject_type = $1 AND is_active
		ORDER BY list_type, id
	`

	rows, err := r.db.QueryContext(ctx, query, subjectType)
	if err != nil {
		return nil, fmt.Errorf("failed to list active policy rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.PolicyRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating policy rules: %w", err)
	}

	return rules, nil
}

// ListRules retrieves all rules (active and inactive) with pagination
func (r *PolicyRepository) ListRules(ctx context.Context, limit, offset int) ([]*models.PolicyRule, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM policy_rules`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count policy rules: %w", err)
	}

	query := `
		SELECT ` + policyColumns + `
		FROM policy_rules
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list policy rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.PolicyRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan policy rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating policy rules: %w", err)
	}

	return rules, total, nil
}

// HasActiveDeny reports whether an active deny rule exists for the exact
// subject value. Used by the escalator's idempotence guard.
func (r *PolicyRepository) HasActiveDeny(ctx context.Context, subjectType, subjectValue string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM policy_rules
			WHERE subject_type = $1 AND subject_value = $2 AND list_type = 'deny' AND is_active
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, subjectType, subjectValue).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check deny rule existence: %w", err)
	}

	return exists, nil
}

// DeactivateRule flips is_active to false for a rule
func (r *PolicyRepository) DeactivateRule(ctx context.Context, id int64) error {
	query := `UPDATE policy_rules SET is_active = FALSE WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate policy rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("policy rule: %w", ErrNotFound)
	}

	return nil
}

// Ping verifies the policy store is reachable. Exposed for the readiness
// endpoint's policy_store_reachable boolean.
func (r *PolicyRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func scanRule(rows *sql.Rows) (*models.PolicyRule, error) {
	rule := &models.PolicyRule{}
	err := rows.Scan(
		&rule.ID,
		&rule.SubjectType,
		&rule.SubjectValue,
		&rule.ListType,
		&rule.AllowedActions,
		&rule.IsActive,
		&rule.CreatedBy,
		&rule.Comment,
		&rule.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rule, nil
}
