package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pcorbett/issuedeck/internal/api"
	"github.com/pcorbett/issuedeck/internal/config"
)

func testRouter() http.Handler {
	cfg := config.Config{
		Port:              "4400",
		JWTSecret:         "test-secret",
		JWTTTL:            time.Hour,
		InvitationTTL:     time.Hour,
		UploadsDir:        "uploads",
		ProjectDeleteRole: "owner",
	}
	return api.NewRouter(cfg, nil)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	router := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected content-type application/json, got %q", ct)
	}
}

func TestHealthEndpointFields(t *testing.T) {
	t.Parallel()

	router := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode json: %v", err)
	}

	for _, field := range []string{"status", "uptime", "timestamp"} {
		if payload[field] == "" {
			t.Fatalf("expected %s to be set, got empty", field)
		}
	}

	if _, err := time.Parse(time.RFC3339, payload["timestamp"]); err != nil {
		t.Fatalf("expected timestamp to be RFC3339, got %q", payload["timestamp"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	t.Parallel()

	router := testRouter()

	for _, path := range []string{"/api/projects", "/api/users/me", "/api/me/invitations"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected %s to return %d, got %d", path, http.StatusUnauthorized, rec.Code)
		}
	}
}
