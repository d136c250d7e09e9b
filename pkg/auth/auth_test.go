package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
)

func testJWTManager(accessTTL time.Duration) *JWTManager {
	return NewJWTManager(config.JWTConfig{
		Secret:          "a-test-secret-that-is-long-enough-for-hs256",
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: time.Hour,
		Issuer:          "medvault-test",
	})
}

func TestTokenPairRoundTrip(t *testing.T) {
	m := testJWTManager(time.Minute)
	userID := uuid.New()

	pair, err := m.GenerateTokenPair(&domain.Claims{UserID: userID, Username: "alice", Role: domain.RolePatient})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	access, err := m.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if access.UserID != userID || access.Username != "alice" || access.Role != domain.RolePatient {
		t.Fatalf("unexpected claims: %+v", access)
	}

	refresh, err := m.ValidateRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh parse error: %v", err)
	}
	if refresh.TokenID == "" || refresh.TokenID == access.TokenID {
		t.Fatalf("expected distinct token ids, got %q and %q", access.TokenID, refresh.TokenID)
	}
	if refresh.ExpiresAt.IsZero() {
		t.Fatalf("expected refresh expiry to be set")
	}
}

func TestTokenTypeMismatch(t *testing.T) {
	m := testJWTManager(time.Minute)
	pair, err := m.GenerateTokenPair(&domain.Claims{UserID: uuid.New(), Username: "bob", Role: domain.RoleDoctor})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if _, err := m.ValidateAccessToken(pair.RefreshToken); !errors.Is(err, ErrTokenTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestExpiredAndForeignTokens(t *testing.T) {
	m := testJWTManager(-time.Minute)
	pair, err := m.GenerateTokenPair(&domain.Claims{UserID: uuid.New(), Username: "carol", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := m.ValidateAccessToken(pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}

	other := NewJWTManager(config.JWTConfig{
		Secret:          "some-other-secret-entirely-different-value",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		Issuer:          "medvault-test",
	})
	foreign, err := other.GenerateTokenPair(&domain.Claims{UserID: uuid.New(), Username: "eve", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := m.ValidateAccessToken(foreign.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestTOTPValidate(t *testing.T) {
	m := NewTOTPManager("medvault-test")
	enr, err := m.Generate("alice")
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if enr.Secret == "" || enr.URL == "" {
		t.Fatalf("expected secret and url")
	}

	now := time.Now()
	code, err := totp.GenerateCode(enr.Secret, now)
	if err != nil {
		t.Fatalf("code error: %v", err)
	}
	if err := m.Validate(enr.Secret, code, now); err != nil {
		t.Fatalf("expected valid code, got %v", err)
	}
	if err := m.Validate(enr.Secret, code, now.Add(5*time.Minute)); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected stale code to fail, got %v", err)
	}
}
