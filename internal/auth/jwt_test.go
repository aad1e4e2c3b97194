package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func TestCreateAndValidateAccessToken(t *testing.T) {
	editorID := "550e8400-e29b-41d4-a716-446655440000"

	token, err := CreateAccessToken(editorID, "editor@example.com", testSecret)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}

	claims, err := ValidateAccessToken(token, testSecret)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.EditorID() != editorID {
		t.Errorf("EditorID() = %q, want %q", claims.EditorID(), editorID)
	}
	if claims.Email != "editor@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
	if claims.Issuer != tokenIssuer {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, tokenIssuer)
	}
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	now := time.Now()
	valid := jwt.RegisteredClaims{
		Subject:   "id",
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	foreign := valid
	foreign.Issuer = "someone-else"

	noExpiry := valid
	noExpiry.ExpiresAt = nil

	goodToken, err := CreateAccessToken("id", "e@x.io", testSecret)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", goodToken, "other-secret"},
		{"malformed", "not-a-jwt", testSecret},
		{"expired", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{RegisteredClaims: expired}), testSecret},
		{"foreign issuer", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{RegisteredClaims: foreign}), testSecret},
		{"no expiry", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{RegisteredClaims: noExpiry}), testSecret},
		{"none algorithm", signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, Claims{RegisteredClaims: valid}), testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateAccessToken(tt.token, tt.secret); err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}
}
