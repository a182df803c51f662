package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "secret" {
		t.Fatal("password stored in clear")
	}
	if !CheckPassword("secret", hash) {
		t.Error("expected password check to pass")
	}
	if CheckPassword("Secret", hash) {
		t.Error("expected password check to fail")
	}
}

func TestTokenRoundTripCarriesUser(t *testing.T) {
	token, err := GenerateToken("u-123", "user", "supersecret")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(token, "supersecret")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "u-123" || claims.Subject != "u-123" || claims.Role != "user" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Sub(claims.IssuedAt.Time) != tokenTTL {
		t.Fatalf("unexpected expiry %+v", claims.RegisteredClaims)
	}

	if _, err := ValidateToken(token, "wrongsecret"); err == nil {
		t.Error("expected error with wrong secret")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	claims := Claims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(past.Add(-tokenTTL)),
			ExpiresAt: jwt.NewNumericDate(past),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := ValidateToken(token, "k"); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateTokenRejectsUnsignedToken(t *testing.T) {
	claims := Claims{UserID: "u-1"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := ValidateToken(token, "k"); err == nil {
		t.Fatal("expected unsigned token to be rejected")
	}
}
