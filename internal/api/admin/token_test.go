package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/media-gateway/media-gateway/internal/audit"
	"github.com/media-gateway/media-gateway/internal/auth"
	"github.com/media-gateway/media-gateway/internal/config"
)

func tokenRouter(h *TokenHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/auth/token", h.Exchange)
	return router
}

func TestTokenExchange(t *testing.T) {
	if err := auth.InitJWTSecret("exactly-32-char-secret-for-test!!"); err != nil {
		t.Fatalf("InitJWTSecret: %v", err)
	}

	key, hash, err := auth.GenerateAPIKey("mgw")
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	cfg := &config.Config{}
	cfg.Auth.APIKeys = []config.APIKeyEntry{{Name: "ci", Hash: hash}}
	cfg.Auth.TokenLifetime = 2 * time.Hour

	sink := &memShipper{}
	router := tokenRouter(NewTokenHandler(cfg, sink))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
		Client    string `json:"client"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Client != "ci" || resp.ExpiresIn != 7200 {
		t.Errorf("resp = %+v", resp)
	}

	claims, err := auth.ValidateJWT(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.ClientName != "ci" {
		t.Errorf("claims.ClientName = %q", claims.ClientName)
	}

	if len(sink.events) != 1 || sink.events[0].Action != audit.ActionAdminLogin {
		t.Errorf("audit events = %+v", sink.events)
	}
}

func TestTokenExchangeRejectsBadKey(t *testing.T) {
	cfg := &config.Config{}
	router := tokenRouter(NewTokenHandler(cfg, nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	req.Header.Set("Authorization", "Bearer mgw_nope")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/token", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing header status = %d, want 401", w.Code)
	}
}
