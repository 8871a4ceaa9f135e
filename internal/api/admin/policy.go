package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/media-gateway/media-gateway/internal/audit"
	"github.com/media-gateway/media-gateway/internal/db/models"
	"github.com/media-gateway/media-gateway/internal/db/repositories"
	"github.com/media-gateway/media-gateway/internal/middleware"
	"github.com/media-gateway/media-gateway/internal/policy"
)

// RuleStore is the slice of the policy repository the handlers need.
type RuleStore interface {
	ListRules(ctx context.Context, limit, offset int) ([]*models.PolicyRule, int, error)
	CreateRule(ctx context.Context, rule *models.PolicyRule) error
	DeactivateRule(ctx context.Context, id int64) error
}

// PolicyHandler serves the /api/v1/policy/rules routes.
type PolicyHandler struct {
	rules RuleStore
	sink  audit.Shipper
}

// NewPolicyHandler creates the handler. sink may be nil when auditing is disabled.
func NewPolicyHandler(rules RuleStore, sink audit.Shipper) *PolicyHandler {
	return &PolicyHandler{rules: rules, sink: sink}
}

// createRuleRequest is the POST /api/v1/policy/rules body.
type createRuleRequest struct {
	SubjectType  string   `json:"subject_type" binding:"required"`
	SubjectValue string   `json:"subject_value" binding:"required"`
	ListType     string   `json:"list_type" binding:"required"`
	Actions      []string `json:"actions"`
	Comment      *string  `json:"comment"`
}

// List handles GET /api/v1/policy/rules.
func (h *PolicyHandler) List(c *gin.Context) {
	limit, offset := pagination(c)

	rules, total, err := h.rules.ListRules(c.Request.Context(), limit, offset)
	if err != nil {
		slog.Error("rule listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load policy rules"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rules":  rules,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Create handles POST /api/v1/policy/rules.
func (h *PolicyHandler) Create(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if req.SubjectType != models.SubjectIP && req.SubjectType != models.SubjectDomain {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject_type must be ip or domain"})
		return
	}
	if req.ListType != models.ListAllow && req.ListType != models.ListDeny {
		c.JSON(http.StatusBadRequest, gin.H{"error": "list_type must be allow or deny"})
		return
	}

	actions := req.Actions
	if len(actions) == 0 {
		actions = []string{string(policy.ActionDownload), string(policy.ActionCopy), string(policy.ActionView)}
	}
	for _, a := range actions {
		if _, ok := policy.ParseAction(a); !ok || a == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + a})
			return
		}
	}

	// Domain subjects are stored normalized so rule matching and referrer
	// normalization agree on representation.
	value := req.SubjectValue
	if req.SubjectType == models.SubjectDomain {
		value = policy.NormalizeDomain(value)
		if value == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "subject_value does not contain a usable domain"})
			return
		}
	}

	var createdBy *string
	if name := c.GetString(middleware.ClientNameKey); name != "" {
		createdBy = &name
	}

	rule := &models.PolicyRule{
		SubjectType:    req.SubjectType,
		SubjectValue:   value,
		ListType:       req.ListType,
		AllowedActions: actions,
		IsActive:       true,
		CreatedBy:      createdBy,
		Comment:        req.Comment,
	}
	if err := h.rules.CreateRule(c.Request.Context(), rule); err != nil {
		slog.Error("rule creation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create policy rule"})
		return
	}

	h.audit(c, audit.ActionRuleCreated, rule)
	c.JSON(http.StatusCreated, gin.H{"rule": rule})
}

// Remove handles DELETE /api/v1/policy/rules/:id. Rules are deactivated, not
// deleted: the row remains for audit history.
func (h *PolicyHandler) Remove(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.rules.DeactivateRule(c.Request.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Policy rule not found"})
			return
		}
		slog.Error("rule removal failed", "rule_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove policy rule"})
		return
	}

	h.audit(c, audit.ActionRuleRemoved, &models.PolicyRule{ID: id})
	c.Status(http.StatusNoContent)
}

func (h *PolicyHandler) audit(c *gin.Context, action string, rule *models.PolicyRule) {
	if h.sink == nil {
		return
	}
	event := &audit.Event{
		Timestamp: time.Now().UTC(),
		Action:    action,
		UserID:    c.GetString(middleware.ClientNameKey),
		IPAddress: c.ClientIP(),
		Metadata: map[string]interface{}{
			"rule_id":       rule.ID,
			"subject_type":  rule.SubjectType,
			"subject_value": rule.SubjectValue,
			"list_type":     rule.ListType,
		},
	}
	if err := h.sink.Ship(c.Request.Context(), event); err != nil {
		slog.Warn("failed to ship audit event", "action", action, "error", err)
	}
}
