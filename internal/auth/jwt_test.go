package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwari-pos/ordering/internal/auth"
	"github.com/kiwari-pos/ordering/internal/enum"
)

func TestGenerateAndValidateToken(t *testing.T) {
	userID := uuid.New()

	token, err := auth.GenerateToken("test-secret", userID, enum.RoleStaff, time.Minute)
	require.NoError(t, err)

	claims, err := auth.ValidateToken("test-secret", token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, enum.RoleStaff, claims.Role)
	assert.Equal(t, userID, claims.Actor().ID)
	assert.Equal(t, enum.RoleStaff, claims.Actor().Role)
}

func TestValidateTokenRejects(t *testing.T) {
	sign := func(c auth.Claims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}

	wrongSecret, err := auth.GenerateToken("secret-a", uuid.New(), enum.RoleStaff, time.Minute)
	require.NoError(t, err)
	expired, err := auth.GenerateToken("secret", uuid.New(), enum.RoleStaff, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", wrongSecret},
		{"expired", expired},
		{"not a jwt", "not-a-jwt"},
		{"system role", sign(auth.Claims{UserID: uuid.New(), Role: enum.RoleSystem, RegisteredClaims: valid}, jwt.SigningMethodHS256, []byte("secret"))},
		{"unknown role", sign(auth.Claims{UserID: uuid.New(), Role: "OWNER", RegisteredClaims: valid}, jwt.SigningMethodHS256, []byte("secret"))},
		{"no user", sign(auth.Claims{Role: enum.RoleStaff, RegisteredClaims: valid}, jwt.SigningMethodHS256, []byte("secret"))},
		{"none alg", sign(auth.Claims{UserID: uuid.New(), Role: enum.RoleStaff, RegisteredClaims: valid}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.ValidateToken("secret", tt.token)
			assert.Error(t, err)
		})
	}
}

func TestPINVerifier(t *testing.T) {
	hash, err := auth.HashPIN("4321")
	require.NoError(t, err)

	v := auth.NewPINVerifier(hash)
	assert.True(t, v.Verify("4321"))
	assert.False(t, v.Verify("1234"))
	assert.False(t, v.Verify(""))

	assert.False(t, auth.NewPINVerifier("").Verify("4321"))
}
