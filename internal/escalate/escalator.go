// Package escalate turns repeat policy violations into automatic deny rules.
// The escalator is monotonic and additive: it only ever creates rules, never
// removes them, and the existing-deny check keeps it from firing more than
// once per threshold crossing.
package escalate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/media-gateway/media-gateway/internal/audit"
	"github.com/media-gateway/media-gateway/internal/db/models"
	"github.com/media-gateway/media-gateway/internal/telemetry"
)

// ViolationCounter counts recent denied access attempts per IP.
type ViolationCounter interface {
	CountDeniedByIPSince(ctx context.Context, ip string, since time.Time) (int, error)
}

// RuleStore is the slice of the policy store the escalator needs.
type RuleStore interface {
	HasActiveDeny(ctx context.Context, subjectType, subjectValue string) (bool, error)
	CreateRule(ctx context.Context, rule *models.PolicyRule) error
}

// Settings is the auto-blocking configuration snapshot, read per Observe call
// so configuration reloads apply immediately.
type Settings struct {
	Enabled     bool
	Threshold   int
	WindowHours int
}

// Escalator watches denied usage events and blocks offending IPs.
type Escalator struct {
	usage    ViolationCounter
	rules    RuleStore
	sink     audit.Shipper
	settings func() Settings
	now      func() time.Time
}

// New creates an escalator. sink may be nil when auditing is disabled.
func New(usage ViolationCounter, rules RuleStore, sink audit.Shipper, settings func() Settings) *Escalator {
	return &Escalator{
		usage:    usage,
		rules:    rules,
		sink:     sink,
		settings: settings,
		now:      time.Now,
	}
}

const autoBlockAuthor = "auto-blocker"

// Observe is called after each denied request. It counts the IP's denials in
// the trailing window and, at or above the threshold, creates a deny rule for
// the IP unless one already exists.
func (e *Escalator) Observe(ctx context.Context, ip string) error {
	s := e.settings()
	if !s.Enabled || ip == "" {
		return nil
	}

	since := e.now().Add(-time.Duration(s.WindowHours) * time.Hour)
	count, err := e.usage.CountDeniedByIPSince(ctx, ip, since)
	if err != nil {
		return fmt.Errorf("failed to count violations: %w", err)
	}
	if count < s.Threshold {
		return nil
	}

	exists, err := e.rules.HasActiveDeny(ctx, models.SubjectIP, ip)
	if err != nil {
		return fmt.Errorf("failed to check existing deny rule: %w", err)
	}
	if exists {
		return nil
	}

	author := autoBlockAuthor
	comment := fmt.Sprintf("auto-blocked: %d denied requests within %dh", count, s.WindowHours)
	rule := &models.PolicyRule{
		SubjectType:    models.SubjectIP,
		SubjectValue:   ip,
		ListType:       models.ListDeny,
		AllowedActions: []string{"download", "copy", "view"},
		IsActive:       true,
		CreatedBy:      &author,
		Comment:        &comment,
	}
	if err := e.rules.CreateRule(ctx, rule); err != nil {
		return fmt.Errorf("failed to create deny rule: %w", err)
	}

	telemetry.AutoBlocksTotal.Inc()
	slog.Warn("auto-block applied", "ip", ip, "violations", count, "window_hours", s.WindowHours)

	if e.sink != nil {
		event := &audit.Event{
			Timestamp: e.now().UTC(),
			Action:    audit.ActionAutoBlockApplied,
			IPAddress: ip,
			Metadata: map[string]interface{}{
				"violations":   count,
				"window_hours": s.WindowHours,
				"threshold":    s.Threshold,
			},
		}
		if err := e.sink.Ship(ctx, event); err != nil {
			slog.Warn("failed to ship auto-block audit event", "error", err)
		}
	}

	return nil
}
