package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParseAccessToken(t *testing.T) {
	secret := "test-secret-key-for-jwt-signing"

	token, err := GenerateAccessToken("usr-001", "Alice", secret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	if token == "" {
		t.Fatal("GenerateAccessToken() returned empty token")
	}

	claims, err := ParseToken(token, secret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	if claims.Subject != "usr-001" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "usr-001")
	}

	if claims.Name != "Alice" {
		t.Errorf("Name = %q, want %q", claims.Name, "Alice")
	}

	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}

	if claims.ExpiresAt.Time.Before(time.Now()) {
		t.Error("newly generated token should not be expired")
	}
}

func TestGenerateAccessToken_EmptyUserID(t *testing.T) {
	_, err := GenerateAccessToken("", "Alice", "secret", 15)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("GenerateAccessToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestGenerateAccessToken_DefaultTTL(t *testing.T) {
	token, err := GenerateAccessToken("usr-001", "", "secret", 0)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, "secret")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 59*time.Minute || remaining > 61*time.Minute {
		t.Errorf("default TTL = %v, want ~60m", remaining)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateAccessToken("usr-001", "", "correct-secret", 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	_, err = ParseToken(token, "wrong-secret")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_Expired(t *testing.T) {
	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "usr-001",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	_, err = ParseToken(signed, "secret")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_MissingSubject(t *testing.T) {
	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	_, err = ParseToken(signed, "secret")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_WrongSigningMethod(t *testing.T) {
	// alg=none tokens must be rejected outright.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-001"},
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	_, err = ParseToken(signed, "secret")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_Malformed(t *testing.T) {
	for _, tok := range []string{"", "abc.def", "not-a-valid-jwt"} {
		if _, err := ParseToken(tok, "secret"); err == nil {
			t.Errorf("ParseToken(%q) expected error", tok)
		}
	}
}
