package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", 2)

	tok, err := m.GenerateToken("ops", RoleAdmin)
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.ClientID)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "ops", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), claims.ExpiresAt.Time, time.Minute)
	assert.Equal(t, 2*time.Hour, m.ExpiresIn())
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	tok, err := NewJWTManager("other", 1).GenerateToken("ops", RoleAdmin)
	require.NoError(t, err)

	_, err = NewJWTManager("secret", 1).VerifyToken(tok)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	claims := CustomClaims{
		ClientID: "ops",
		Role:     RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewJWTManager("secret", 1).VerifyToken(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := NewJWTManager("secret", 1).VerifyToken("not-a-token")
	assert.Error(t, err)
}
