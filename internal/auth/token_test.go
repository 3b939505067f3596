package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestStore_RoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nested", "token"))

	if got, err := s.Load(); err != nil || got != "" {
		t.Fatalf("expected empty load before save, got %q, %v", got, err)
	}

	if err := s.Save("tok-123"); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "tok-123" {
		t.Errorf("expected tok-123, got %q", got)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got, _ := s.Load(); got != "" {
		t.Errorf("expected empty after clear, got %q", got)
	}
}

func TestStore_SaveEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "token"))
	if err := s.Save(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()

	if Expired(testToken(t, now.Add(time.Hour)), now) {
		t.Error("future exp must not be expired")
	}
	if !Expired(testToken(t, now.Add(-time.Hour)), now) {
		t.Error("past exp must be expired")
	}
}

func TestExpired_OpaqueToken(t *testing.T) {
	if Expired("not-a-jwt", time.Now()) {
		t.Error("opaque tokens are passed through to the backend, never rejected locally")
	}
}
