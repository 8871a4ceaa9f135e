package policy

import (
	"context"
	"testing"
	"time"

	"github.com/media-gateway/media-gateway/internal/db/models"
)

// stubRules serves canned rules and counts lookups so cache tests can assert
// how often the engine fell through to the store.
type stubRules struct {
	rules   map[string][]*models.PolicyRule
	lookups int
}

func (s *stubRules) ActiveRules(_ context.Context, subjectType string) ([]*models.PolicyRule, error) {
	s.lookups++
	return s.rules[subjectType], nil
}

func rule(subjectType, subjectValue, listType string, actions ...string) *models.PolicyRule {
	if len(actions) == 0 {
		actions = []string{"download", "copy", "view"}
	}
	return &models.PolicyRule{
		SubjectType:    subjectType,
		SubjectValue:   subjectValue,
		ListType:       listType,
		AllowedActions: actions,
		IsActive:       true,
	}
}

func newTestEngine(rules ...*models.PolicyRule) *Engine {
	byType := map[string][]*models.PolicyRule{}
	for _, r := range rules {
		byType[r.SubjectType] = append(byType[r.SubjectType], r)
	}
	return NewEngine(&stubRules{rules: byType}, func() time.Duration { return time.Minute })
}

func TestCheckNoRulesPermits(t *testing.T) {
	engine := newTestEngine()

	result, err := engine.Check(context.Background(), "1.2.3.4", "example.com", ActionDownload)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.Authorized {
		t.Error("request should be authorized with no rules")
	}
	if result.IPDecision != DecisionNone || result.DomainDecision != DecisionNone {
		t.Errorf("expected no-opinion decisions, got %s/%s", result.IPDecision, result.DomainDecision)
	}
}

func TestCheckDenyDominatesAllow(t *testing.T) {
	// An allow on the IP does not rescue a request whose referrer domain is
	// blacklisted.
	engine := newTestEngine(
		rule(models.SubjectIP, "1.2.3.4", models.ListAllow),
		rule(models.SubjectDomain, "evil.com", models.ListDeny),
	)

	result, err := engine.Check(context.Background(), "1.2.3.4", "evil.com", ActionDownload)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Authorized {
		t.Fatal("blacklisted domain must be denied despite IP allow")
	}
	if result.Violation != ViolationBlacklisted {
		t.Errorf("violation = %q, want %q", result.Violation, ViolationBlacklisted)
	}
	if result.IPDecision != DecisionAllow || result.DomainDecision != DecisionDeny {
		t.Errorf("decisions = %s/%s", result.IPDecision, result.DomainDecision)
	}
}

func TestCheckImplicitWhitelistDenial(t *testing.T) {
	// One allow rule for domains puts the domain subject type into a
	// whitelist regime: every non-matching domain is implicitly denied.
	engine := newTestEngine(rule(models.SubjectDomain, "good.com", models.ListAllow))

	result, err := engine.Check(context.Background(), "9.9.9.9", "other.com", ActionDownload)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Authorized {
		t.Fatal("non-whitelisted domain should be denied")
	}
	if result.Violation != ViolationNotWhitelistedHost {
		t.Errorf("violation = %q, want %q", result.Violation, ViolationNotWhitelistedHost)
	}

	allowed, err := engine.Check(context.Background(), "9.9.9.9", "good.com", ActionDownload)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !allowed.Authorized {
		t.Error("whitelisted domain should be authorized")
	}
}

func TestCheckEmptyReferrerPassesWhitelist(t *testing.T) {
	// Requests without a referrer contribute no domain opinion, even under a
	// whitelist regime.
	engine := newTestEngine(rule(models.SubjectDomain, "good.com", models.ListAllow))

	result, err := engine.Check(context.Background(), "9.9.9.9", "", ActionDownload)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.Authorized {
		t.Error("empty referrer should not be caught by a domain whitelist")
	}
	if result.DomainDecision != DecisionNone {
		t.Errorf("domain decision = %s, want %s", result.DomainDecision, DecisionNone)
	}
}

func TestCheckIPWhitelist(t *testing.T) {
	engine := newTestEngine(rule(models.SubjectIP, "10.0.0.1", models.ListAllow))

	result, err := engine.Check(context.Background(), "10.0.0.2", "", ActionDownload)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Authorized {
		t.Fatal("non-whitelisted IP should be denied")
	}
	if result.Violation != ViolationNotWhitelistedIP {
		t.Errorf("violation = %q, want %q", result.Violation, ViolationNotWhitelistedIP)
	}
}

func TestCheckActionScoping(t *testing.T) {
	// A deny scoped to copy must not affect downloads.
	engine := newTestEngine(rule(models.SubjectIP, "1.2.3.4", models.ListDeny, "copy"))

	download, err := engine.Check(context.Background(), "1.2.3.4", "", ActionDownload)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !download.Authorized {
		t.Error("download should be permitted, deny rule only covers copy")
	}

	cp, err := engine.Check(context.Background(), "1.2.3.4", "", ActionCopy)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if cp.Authorized {
		t.Error("copy should be denied")
	}
}

func TestCheckDomainNormalizationAndSubdomains(t *testing.T) {
	engine := newTestEngine(rule(models.SubjectDomain, "Evil.com", models.ListDeny))

	for _, referrer := range []string{
		"evil.com",
		"https://www.evil.com/some/page?x=1",
		"cdn.evil.com",
		"EVIL.COM:8080",
	} {
		result, err := engine.Check(context.Background(), "", referrer, ActionDownload)
		if err != nil {
			t.Fatalf("Check(%q): %v", referrer, err)
		}
		if result.Authorized {
			t.Errorf("referrer %q should be denied", referrer)
		}
	}

	// A host merely containing the rule value is not a subdomain of it.
	result, err := engine.Check(context.Background(), "", "notevil.com", ActionDownload)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.Authorized {
		t.Error("notevil.com should not match deny rule for evil.com")
	}
}

func TestMatchIP(t *testing.T) {
	tests := []struct {
		ip    string
		value string
		want  bool
	}{
		{"1.2.3.4", "1.2.3.4", true},
		{"1.2.3.5", "1.2.3.4", false},
		{"10.1.2.3", "10.1.0.0/16", true},
		{"10.2.0.1", "10.1.0.0/16", false},
		{"192.168.1.77", "192.168.1.", true},
		{"192.168.10.1", "192.168.1.", false},
		{"2001:db8::1", "2001:db8::/32", true},
		{"bogus", "10.0.0.0/8", false},
	}

	for _, tt := range tests {
		if got := matchIP(tt.ip, tt.value); got != tt.want {
			t.Errorf("matchIP(%q, %q) = %v, want %v", tt.ip, tt.value, got, tt.want)
		}
	}
}

func TestCheckUsesCacheTiers(t *testing.T) {
	source := &stubRules{rules: map[string][]*models.PolicyRule{
		models.SubjectIP: {rule(models.SubjectIP, "1.2.3.4", models.ListDeny)},
	}}
	engine := NewEngine(source, func() time.Duration { return time.Minute }, NewMemoryTier())

	for i := 0; i < 3; i++ {
		result, err := engine.Check(context.Background(), "1.2.3.4", "", ActionDownload)
		if err != nil {
			t.Fatalf("Check %d: %v", i, err)
		}
		if result.Authorized {
			t.Fatalf("Check %d: expected denial", i)
		}
	}

	// First evaluation loads IP rules once; the two repeats must be cache hits.
	if source.lookups != 1 {
		t.Errorf("rule lookups = %d, want 1", source.lookups)
	}
}

func TestMemoryTierExpiry(t *testing.T) {
	tier := NewMemoryTier()
	now := time.Now()
	tier.now = func() time.Time { return now }

	tier.Set(context.Background(), "k", CheckResult{Authorized: true}, time.Minute)
	if _, ok := tier.Get(context.Background(), "k"); !ok {
		t.Fatal("fresh entry should hit")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := tier.Get(context.Background(), "k"); ok {
		t.Error("expired entry should miss")
	}
}
