package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func validClaims(sub string) Claims {
	return Claims{
		Email: sub + "@example.com",
		Roles: []string{"member"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestNewTokenVerifierWithoutSecret(t *testing.T) {
	assert.Nil(t, NewTokenVerifier(""))
}

func TestVerify(t *testing.T) {
	verifier := NewTokenVerifier("secret")

	expired := validClaims("alice")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims("alice")
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", sign(t, jwt.SigningMethodHS256, []byte("secret"), validClaims("alice")), false},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims("alice")), true},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte("secret"), expired), true},
		{"no expiry", sign(t, jwt.SigningMethodHS256, []byte("secret"), noExpiry), true},
		{"no subject", sign(t, jwt.SigningMethodHS256, []byte("secret"), validClaims("")), true},
		{"other hmac", sign(t, jwt.SigningMethodHS512, []byte("secret"), validClaims("alice")), true},
		{"garbage", "not.a.token", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := verifier.Verify(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidToken))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", claims.Subject)
			assert.Equal(t, "alice@example.com", claims.Email)
			assert.Equal(t, []string{"member"}, claims.Roles)
		})
	}
}
