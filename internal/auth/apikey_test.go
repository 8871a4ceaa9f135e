package auth

import (
	"strings"
	"testing"

	"github.com/media-gateway/media-gateway/internal/config"
)

func TestGenerateAPIKey(t *testing.T) {
	key, hash, err := GenerateAPIKey("mgw")
	if err != nil {
		t.Fatalf("GenerateAPIKey() error: %v", err)
	}
	if !strings.HasPrefix(key, "mgw_") {
		t.Errorf("GenerateAPIKey() key = %q, want prefix mgw_", key)
	}
	if hash == "" || hash == key {
		t.Error("GenerateAPIKey() hash must be non-empty and distinct from the key")
	}
}

func TestMatchAPIKey(t *testing.T) {
	key, hash, err := GenerateAPIKey("mgw")
	if err != nil {
		t.Fatalf("GenerateAPIKey() error: %v", err)
	}

	entries := []config.APIKeyEntry{
		{Name: "other", Hash: "$2a$12$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva"},
		{Name: "ci-pipeline", Hash: hash},
	}

	name, ok := MatchAPIKey(key, entries)
	if !ok || name != "ci-pipeline" {
		t.Errorf("MatchAPIKey() = (%q, %v), want (ci-pipeline, true)", name, ok)
	}

	if _, ok := MatchAPIKey("mgw_wrong", entries); ok {
		t.Error("MatchAPIKey() matched a wrong key")
	}
	if _, ok := MatchAPIKey(key, nil); ok {
		t.Error("MatchAPIKey() matched against an empty entry list")
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid", "Bearer mgw_abc123", "mgw_abc123", false},
		{"empty header", "", "", true},
		{"missing scheme", "mgw_abc123", "", true},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "", true},
		{"empty token", "Bearer   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearerToken(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractBearerToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
