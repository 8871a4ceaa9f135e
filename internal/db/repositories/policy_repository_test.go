package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/media-gateway/media-gateway/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var policyCols = []string{
	"id", "subject_type", "subject_value", "list_type", "allowed_actions",
	"is_active", "created_by", "comment", "created_at",
}

var policyCreateCols = []string{"id", "created_at"}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

func sampleRuleRow() *sqlmock.Rows {
	// allowed_actions arrives from the driver as a Postgres array literal.
	return sqlmock.NewRows(policyCols).
		AddRow(int64(1), "domain", "example.com", "allow", "{download,view}",
			true, nil, nil, time.Now())
}

func emptyRuleRows() *sqlmock.Rows {
	return sqlmock.NewRows(policyCols)
}

func newPolicyRepo(t *testing.T) (*PolicyRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPolicyRepository(db), mock
}

// ---------------------------------------------------------------------------
// CreateRule
// ---------------------------------------------------------------------------

func TestCreateRule_Success(t *testing.T) {
	repo, mock := newPolicyRepo(t)
	mock.ExpectQuery("INSERT INTO policy_rules").
		WillReturnRows(sqlmock.NewRows(policyCreateCols).AddRow(int64(11), time.Now()))

	rule := &models.PolicyRule{
		SubjectType:    models.SubjectDomain,
		SubjectValue:   "example.com",
		ListType:       models.ListAllow,
		AllowedActions: []string{"download", "view"},
	}
	if err := repo.CreateRule(context.Background(), rule); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.ID != 11 {
		t.Errorf("ID = %d, want 11", rule.ID)
	}
	if !rule.IsActive {
		t.Error("created rule should be marked active")
	}
}

func TestCreateRule_DBError(t *testing.T) {
	repo, mock := newPolicyRepo(t)
	mock.ExpectQuery("INSERT INTO policy_rules").
		WillReturnError(errDB)

	rule := &models.PolicyRule{SubjectType: models.SubjectIP, SubjectValue: "1.2.3.4", ListType: models.ListDeny}
	if err := repo.CreateRule(context.Background(), rule); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// ActiveRules
// ---------------------------------------------------------------------------

func TestActiveRules_Success(t *testing.T) {
	repo, mock := newPolicyRepo(t)
	mock.ExpectQuery("SELECT.*FROM policy_rules.*WHERE subject_type").
		WithArgs("domain").
		WillReturnRows(sampleRuleRow())

	rules, err := repo.ActiveRules(context.Background(), "domain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("len(rules) = %d, want 1", len(rules))
	}
	if got := []string(rules[0].AllowedActions); len(got) != 2 || got[0] != "download" {
		t.Errorf("AllowedActions = %v", got)
	}
}

func TestActiveRules_Empty(t *testing.T) {
	repo, mock := newPolicyRepo(t)
	mock.ExpectQuery("SELECT.*FROM policy_rules.*WHERE subject_type").
		WillReturnRows(emptyRuleRows())

	rules, err := repo.ActiveRules(context.Background(), "ip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("len(rules) = %d, want 0", len(rules))
	}
}

func TestActiveRules_DBError(t *testing.T) {
	repo, mock := newPolicyRepo(t)
	mock.ExpectQuery("SELECT.*FROM policy_rules.*WHERE subject_type").
		WillReturnError(errDB)

	if _, err := repo.ActiveRules(context.Background(), "ip"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// ListRules
// ---------------------------------------------------------------------------

func TestListRules_Success(t *testing.T) {
	repo, mock := newPolicyRepo(t)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("SELECT.*FROM policy_rules.*ORDER BY created_at").
		WithArgs(50, 0).
		WillReturnRows(sampleRuleRow())

	rules, total, err := repo.ListRules(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(rules) != 1 {
		t.Errorf("len(rules) = %d, want 1", len(rules))
	}
}

func TestListRules_CountError(t *testing.T) {
	repo, mock := newPolicyRepo(t)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnError(errDB)

	if _, _, err := repo.ListRules(context.Background(), 50, 0); err == nil {
		t.Error("expected error on count query failure")
	}
}

// ---------------------------------------------------------------------------
// HasActiveDeny
// ---------------------------------------------------------------------------

func TestHasActiveDeny_Exists(t *testing.T) {
	repo, mock := newPolicyRepo(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ip", "1.2.3.4").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.HasActiveDeny(context.Background(), "ip", "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("exists = false, want true")
	}
}

func TestHasActiveDeny_Missing(t *testing.T) {
	repo, mock := newPolicyRepo(t)
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.HasActiveDeny(context.Background(), "ip", "5.6.7.8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("exists = true, want false")
	}
}

// ---------------------------------------------------------------------------
// DeactivateRule
// ---------------------------------------------------------------------------

func TestDeactivateRule_Success(t *testing.T) {
	repo, mock := newPolicyRepo(t)
	mock.ExpectExec("UPDATE policy_rules SET is_active = FALSE WHERE id").
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeactivateRule(context.Background(), 11); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeactivateRule_NotFound(t *testing.T) {
	repo, mock := newPolicyRepo(t)
	mock.ExpectExec("UPDATE policy_rules SET is_active = FALSE WHERE id").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeactivateRule(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
