package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/media-gateway/media-gateway/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var usageCols = []string{
	"id", "link_id", "action", "source_ip", "domain", "user_agent",
	"authorized", "violation_kind", "geo", "created_at",
}

var usageCreateCols = []string{"id", "created_at"}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

func sampleUsageRows() *sqlmock.Rows {
	return sqlmock.NewRows(usageCols).
		AddRow(int64(2), int64(7), "download", "203.0.113.9", "example.com", "curl/8.0",
			false, "policy_denied", []byte(`{"country":"DE"}`), time.Now()).
		AddRow(int64(1), int64(7), "view", "203.0.113.9", "example.com", "curl/8.0",
			true, nil, nil, time.Now().Add(-time.Minute))
}

func newUsageRepo(t *testing.T) (*UsageRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUsageRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// ---------------------------------------------------------------------------
// CreateEvent
// ---------------------------------------------------------------------------

func TestCreateEvent_Success(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("INSERT INTO usage_events").
		WillReturnRows(sqlmock.NewRows(usageCreateCols).AddRow(int64(9), time.Now()))

	event := &models.UsageEvent{
		LinkID:     7,
		Action:     "download",
		SourceIP:   "203.0.113.9",
		Domain:     "example.com",
		UserAgent:  "curl/8.0",
		Authorized: true,
	}
	if err := repo.CreateEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ID != 9 {
		t.Errorf("ID = %d, want 9", event.ID)
	}
}

func TestCreateEvent_DBError(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("INSERT INTO usage_events").
		WillReturnError(errDB)

	event := &models.UsageEvent{LinkID: 7, Action: "download"}
	if err := repo.CreateEvent(context.Background(), event); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// CountDeniedByIPSince
// ---------------------------------------------------------------------------

func TestCountDeniedByIPSince_Success(t *testing.T) {
	repo, mock := newUsageRepo(t)
	since := time.Now().Add(-24 * time.Hour)
	mock.ExpectQuery("SELECT COUNT.*FROM usage_events.*NOT authorized").
		WithArgs("203.0.113.9", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	count, err := repo.CountDeniedByIPSince(context.Background(), "203.0.113.9", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 12 {
		t.Errorf("count = %d, want 12", count)
	}
}

func TestCountDeniedByIPSince_DBError(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM usage_events").
		WillReturnError(errDB)

	_, err := repo.CountDeniedByIPSince(context.Background(), "203.0.113.9", time.Now())
	if err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// ListByLink
// ---------------------------------------------------------------------------

func TestListByLink_Success(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("SELECT.*FROM usage_events.*WHERE link_id").
		WithArgs(int64(7), 50, 0).
		WillReturnRows(sampleUsageRows())

	events, err := repo.ListByLink(context.Background(), 7, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].ViolationKind == nil || *events[0].ViolationKind != "policy_denied" {
		t.Errorf("ViolationKind = %v", events[0].ViolationKind)
	}
	if !events[1].Authorized || events[1].ViolationKind != nil {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestListByLink_Empty(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("SELECT.*FROM usage_events.*WHERE link_id").
		WillReturnRows(sqlmock.NewRows(usageCols))

	events, err := repo.ListByLink(context.Background(), 99, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("len(events) = %d, want 0", len(events))
	}
}

func TestListByLink_DBError(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("SELECT.*FROM usage_events.*WHERE link_id").
		WillReturnError(errDB)

	if _, err := repo.ListByLink(context.Background(), 7, 50, 0); err == nil {
		t.Error("expected error, got nil")
	}
}
