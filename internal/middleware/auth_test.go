package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestAuth(t *testing.T, skipPaths ...string) *AuthMiddleware {
	t.Helper()
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return NewAuthMiddleware(&AuthConfig{
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret",
		JWTExpiryHours:    1,
		SkipPaths:         skipPaths,
	})
}

func TestValidateCredentials(t *testing.T) {
	auth := newTestAuth(t)

	if !auth.ValidateCredentials("admin", "correct-horse") {
		t.Error("expected valid credentials to pass")
	}
	if auth.ValidateCredentials("admin", "wrong") {
		t.Error("expected wrong password to fail")
	}
	if auth.ValidateCredentials("intruder", "correct-horse") {
		t.Error("expected wrong username to fail")
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	auth := newTestAuth(t)

	token, err := auth.GenerateToken("admin")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("expected username admin, got %q", claims.Username)
	}

	// A token signed with another secret is rejected.
	other := newTestAuth(t)
	other.config.JWTSecret = "different-secret"
	foreign, _ := other.GenerateToken("admin")
	if _, err := auth.ValidateToken(foreign); err == nil {
		t.Error("expected token with wrong signature to fail")
	}

	if _, err := auth.ValidateToken("not.a.token"); err == nil {
		t.Error("expected garbage token to fail")
	}
}

func TestAuthMiddleware_Wrap(t *testing.T) {
	auth := newTestAuth(t, "/health", "/public/*")
	handler := auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(AuthenticatedUser(r.Context())))
	}))

	// No token.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/alerts", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}

	// Valid token passes and sets the user on the context.
	token, _ := auth.GenerateToken("admin")
	req := httptest.NewRequest("GET", "/api/alerts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", rec.Code)
	}
	if rec.Body.String() != "admin" {
		t.Errorf("expected authenticated user admin, got %q", rec.Body.String())
	}

	// Invalid token.
	req = httptest.NewRequest("GET", "/api/alerts", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with invalid token, got %d", rec.Code)
	}

	// Skip paths bypass authentication.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on skip path, got %d", rec.Code)
	}

	// Wildcard skip paths match by prefix.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/public/docs", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on wildcard skip path, got %d", rec.Code)
	}
}

func TestAuthenticatedUser_EmptyContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if user := AuthenticatedUser(req.Context()); user != "" {
		t.Errorf("expected empty username, got %q", user)
	}
}
