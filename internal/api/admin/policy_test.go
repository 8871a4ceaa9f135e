package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/media-gateway/media-gateway/internal/audit"
	"github.com/media-gateway/media-gateway/internal/db/models"
	"github.com/media-gateway/media-gateway/internal/db/repositories"
)

type fakeRuleStore struct {
	rules       []*models.PolicyRule
	created     []*models.PolicyRule
	deactivated []int64
	missing     bool
}

func (f *fakeRuleStore) ListRules(_ context.Context, _, _ int) ([]*models.PolicyRule, int, error) {
	return f.rules, len(f.rules), nil
}

func (f *fakeRuleStore) CreateRule(_ context.Context, rule *models.PolicyRule) error {
	f.created = append(f.created, rule)
	return nil
}

func (f *fakeRuleStore) DeactivateRule(_ context.Context, id int64) error {
	if f.missing {
		return fmt.Errorf("policy rule: %w", repositories.ErrNotFound)
	}
	f.deactivated = append(f.deactivated, id)
	return nil
}

func policyRouter(h *PolicyHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/policy/rules", h.List)
	router.POST("/policy/rules", h.Create)
	router.DELETE("/policy/rules/:id", h.Remove)
	return router
}

func postRule(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/policy/rules", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestCreateRuleNormalizesDomain(t *testing.T) {
	store := &fakeRuleStore{}
	sink := &memShipper{}
	router := policyRouter(NewPolicyHandler(store, sink))

	w := postRule(router, `{
		"subject_type": "domain",
		"subject_value": "https://WWW.Example.COM/some/page",
		"list_type": "allow",
		"actions": ["download", "view"]
	}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d rules", len(store.created))
	}
	rule := store.created[0]
	if rule.SubjectValue != "example.com" {
		t.Errorf("subject stored as %q, want normalized example.com", rule.SubjectValue)
	}
	if !rule.IsActive || rule.ListType != models.ListAllow {
		t.Errorf("unexpected rule: %+v", rule)
	}
	if len(sink.events) != 1 || sink.events[0].Action != audit.ActionRuleCreated {
		t.Errorf("audit events = %+v", sink.events)
	}
}

func TestCreateRuleDefaultsAllActions(t *testing.T) {
	store := &fakeRuleStore{}
	router := policyRouter(NewPolicyHandler(store, nil))

	w := postRule(router, `{"subject_type": "ip", "subject_value": "10.0.0.0/8", "list_type": "deny"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := len(store.created[0].AllowedActions); got != 3 {
		t.Errorf("actions = %v, want all three", store.created[0].AllowedActions)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	router := policyRouter(NewPolicyHandler(&fakeRuleStore{}, nil))

	cases := map[string]string{
		"bad subject type": `{"subject_type": "email", "subject_value": "x", "list_type": "deny"}`,
		"bad list type":    `{"subject_type": "ip", "subject_value": "1.2.3.4", "list_type": "block"}`,
		"unknown action":   `{"subject_type": "ip", "subject_value": "1.2.3.4", "list_type": "deny", "actions": ["stream"]}`,
		"empty domain":     `{"subject_type": "domain", "subject_value": "https://", "list_type": "allow"}`,
		"missing fields":   `{"subject_type": "ip"}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if w := postRule(router, body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestListRules(t *testing.T) {
	store := &fakeRuleStore{rules: []*models.PolicyRule{
		{ID: 1, SubjectType: models.SubjectIP, SubjectValue: "1.2.3.4", ListType: models.ListDeny},
	}}
	router := policyRouter(NewPolicyHandler(store, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/policy/rules", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}
}

func TestRemoveRule(t *testing.T) {
	store := &fakeRuleStore{}
	sink := &memShipper{}
	router := policyRouter(NewPolicyHandler(store, sink))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/policy/rules/4", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if len(store.deactivated) != 1 || store.deactivated[0] != 4 {
		t.Errorf("deactivated = %v", store.deactivated)
	}
	if len(sink.events) != 1 || sink.events[0].Action != audit.ActionRuleRemoved {
		t.Errorf("audit events = %+v", sink.events)
	}
}

func TestRemoveRuleMissing(t *testing.T) {
	router := policyRouter(NewPolicyHandler(&fakeRuleStore{missing: true}, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/policy/rules/4", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
