package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	cfg := JWTConfig{Secret: "test-secret"}

	token, err := GenerateToken(cfg, "u-1", "alice", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken("test-secret", token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "admin", claims.Role)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken(JWTConfig{Secret: "right"}, "u-1", "alice", "admin")
	require.NoError(t, err)

	_, err = ValidateToken("wrong", token)
	assert.Error(t, err)
}

func TestValidateTokenExpired(t *testing.T) {
	cfg := JWTConfig{Secret: "test-secret", Lifetime: -time.Hour}

	token, err := GenerateToken(cfg, "u-1", "alice", "admin")
	require.NoError(t, err)

	_, err = ValidateToken("test-secret", token)
	assert.Error(t, err)
}

func TestValidateTokenGarbage(t *testing.T) {
	_, err := ValidateToken("test-secret", "not.a.token")
	assert.Error(t, err)
}
