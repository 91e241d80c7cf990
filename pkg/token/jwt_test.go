package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	m := NewJWTManager("test-secret", 1)

	tokenString, err := m.GenerateToken("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTManager("issuer-secret", 1)
	verifier := NewJWTManager("other-secret", 1)

	tokenString, err := issuer.GenerateToken("user-1")
	require.NoError(t, err)

	_, err = verifier.VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	m := NewJWTManager("test-secret", -1)

	tokenString, err := m.GenerateToken("user-1")
	require.NoError(t, err)

	_, err = m.VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", 1)
	_, err := m.VerifyToken("not-a-token")
	assert.Error(t, err)
}
