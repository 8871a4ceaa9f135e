// Package models - policy_rule.go defines the PolicyRule model backing the
// allow/deny decision engine. Rules are scoped to a subject type (ip or
// domain) and a set of actions; deny rules always dominate allow rules.
package models

import (
	"time"

	"github.com/lib/pq"
)

// Subject types a rule can match against
const (
	SubjectIP     = "ip"
	SubjectDomain = "domain"
)

// List types
const (
	ListAllow = "allow"
	ListDeny  = "deny"
)

// PolicyRule represents one allow or deny entry
type PolicyRule struct {
	ID             int64          `json:"id"`
	SubjectType    string         `json:"subject_type"` // ip | domain
	SubjectValue   string         `json:"subject_value"`
	ListType       string         `json:"list_type"` // allow | deny
	AllowedActions pq.StringArray `json:"allowed_actions"`
	IsActive       bool           `json:"is_active"`
	CreatedBy      *string        `json:"created_by,omitempty"`
	Comment        *string        `json:"comment,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AppliesTo reports whether the rule covers the given action.
func (r *PolicyRule) AppliesTo(action string) bool {
	for _, a := range r.AllowedActions {
		if a == action {
			return true
		}
	}
	return false
}
