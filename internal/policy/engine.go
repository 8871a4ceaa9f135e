// Package policy evaluates access rules against the subjects of a media
// request: the client IP and the normalized referrer domain. Rules are
// allow/deny list entries scoped to actions; an explicit deny always wins,
// and the presence of any allow rule for a subject type switches that subject
// type into a whitelist regime where unmatched subjects are denied.
package policy

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/media-gateway/media-gateway/internal/db/models"
)

// ViolationKind labels why a request was denied. Stored verbatim on usage
// events and used by the escalator to find repeat offenders.
type ViolationKind string

const (
	ViolationNone               ViolationKind = ""
	ViolationBlacklisted        ViolationKind = models.ViolationBlacklisted
	ViolationNotWhitelistedIP   ViolationKind = models.ViolationNotWhitelistedIP
	ViolationNotWhitelistedHost ViolationKind = models.ViolationNotWhitelistedHost
)

// Decision is the per-subject evaluation outcome.
type Decision string

const (
	DecisionNone         Decision = "none" // no applicable rules, no opinion
	DecisionAllow        Decision = "allow"
	DecisionDeny         Decision = "deny"          // explicit deny rule matched
	DecisionImplicitDeny Decision = "implicit_deny" // whitelist regime active, no allow matched
)

// CheckResult is the engine's verdict for one (ip, domain, action) tuple.
// It is what the cache tiers store, so it must round-trip through JSON.
type CheckResult struct {
	Authorized     bool          `json:"authorized"`
	Violation      ViolationKind `json:"violation,omitempty"`
	IPDecision     Decision      `json:"ip_decision"`
	DomainDecision Decision      `json:"domain_decision"`
}

// RuleSource supplies the active rules for a subject type. Backed by the
// policy_rules repository in production.
type RuleSource interface {
	ActiveRules(ctx context.Context, subjectType string) ([]*models.PolicyRule, error)
}

// Engine evaluates policy with a tiered decision cache in front of the rule
// store. The TTL is read through a func so configuration reloads take effect
// without rebuilding the engine.
type Engine struct {
	rules RuleSource
	tiers []CacheTier
	ttl   func() time.Duration
}

// NewEngine builds an engine over the given rule source and cache tiers,
// ordered fastest first.
func NewEngine(rules RuleSource, ttl func() time.Duration, tiers ...CacheTier) *Engine {
	return &Engine{rules: rules, tiers: tiers, ttl: ttl}
}

// Check evaluates whether a request from ip with the given referrer domain
// may perform action. The domain may be raw referrer input; it is normalized
// before matching. An empty subject contributes no opinion, so requests
// without a referrer pass a domain whitelist untouched.
func (e *Engine) Check(ctx context.Context, ip, domain string, action Action) (CheckResult, error) {
	host := NormalizeDomain(domain)
	key := cacheKey(ip, host, action)

	for i, tier := range e.tiers {
		if result, ok := tier.Get(ctx, key); ok {
			for j := 0; j < i; j++ {
				e.tiers[j].Set(ctx, key, result, e.ttl())
			}
			return result, nil
		}
	}

	result, err := e.evaluate(ctx, ip, host, action)
	if err != nil {
		return CheckResult{}, err
	}

	ttl := e.ttl()
	for _, tier := range e.tiers {
		tier.Set(ctx, key, result, ttl)
	}
	return result, nil
}

func (e *Engine) evaluate(ctx context.Context, ip, host string, action Action) (CheckResult, error) {
	ipDecision := DecisionNone
	if ip != "" {
		rules, err := e.rules.ActiveRules(ctx, models.SubjectIP)
		if err != nil {
			return CheckResult{}, fmt.Errorf("failed to load ip rules: %w", err)
		}
		ipDecision = evaluateSubject(rules, action, func(value string) bool {
			return matchIP(ip, value)
		})
	}

	hostDecision := DecisionNone
	if host != "" {
		rules, err := e.rules.ActiveRules(ctx, models.SubjectDomain)
		if err != nil {
			return CheckResult{}, fmt.Errorf("failed to load domain rules: %w", err)
		}
		hostDecision = evaluateSubject(rules, action, func(value string) bool {
			return matchDomain(host, value)
		})
	}

	result := CheckResult{IPDecision: ipDecision, DomainDecision: hostDecision}

	// Explicit denies dominate everything, including allows on the other
	// subject type.
	switch {
	case ipDecision == DecisionDeny || hostDecision == DecisionDeny:
		result.Violation = ViolationBlacklisted
	case ipDecision == DecisionImplicitDeny:
		result.Violation = ViolationNotWhitelistedIP
	case hostDecision == DecisionImplicitDeny:
		result.Violation = ViolationNotWhitelistedHost
	default:
		result.Authorized = true
	}

	return result, nil
}

// evaluateSubject applies the rule ordering for one subject type: deny beats
// allow, and any active allow rule for the type establishes a whitelist
// regime under which an unmatched subject is implicitly denied.
func evaluateSubject(rules []*models.PolicyRule, action Action, match func(string) bool) Decision {
	allowed := false
	whitelistRegime := false

	for _, rule := range rules {
		if rule.ListType == models.ListAllow {
			whitelistRegime = true
		}
		if !match(rule.SubjectValue) || !rule.AppliesTo(string(action)) {
			continue
		}
		if rule.ListType == models.ListDeny {
			return DecisionDeny
		}
		allowed = true
	}

	switch {
	case allowed:
		return DecisionAllow
	case whitelistRegime:
		return DecisionImplicitDeny
	default:
		return DecisionNone
	}
}

// matchIP reports whether a client IP matches a rule value. Rule values may
// be an exact address, a CIDR block, or a dotted prefix ending in ".".
func matchIP(ip, value string) bool {
	if ip == value {
		return true
	}
	if strings.Contains(value, "/") {
		_, network, err := net.ParseCIDR(value)
		if err != nil {
			return false
		}
		parsed := net.ParseIP(ip)
		return parsed != nil && network.Contains(parsed)
	}
	if strings.HasSuffix(value, ".") {
		return strings.HasPrefix(ip, value)
	}
	return false
}

// matchDomain reports whether a normalized host matches a rule value. The
// rule value is normalized too, so rules may be entered as bare hosts or full
// URLs. A rule matches its own host and any subdomain of it.
func matchDomain(host, value string) bool {
	ruleHost := NormalizeDomain(value)
	if ruleHost == "" {
		return false
	}
	return host == ruleHost || strings.HasSuffix(host, "."+ruleHost)
}

func cacheKey(ip, host string, action Action) string {
	return ip + "|" + host + "|" + string(action)
}
