package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	Configure("unit-secret", time.Hour)

	token, err := GenerateToken("user-1", RoleUser)
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, RoleUser, claims.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestParseToken_Rejects(t *testing.T) {
	Configure("unit-secret", time.Hour)

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseToken("not.a.token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		claims := Claims{UserID: "u", Role: RoleUser, RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))
		require.NoError(t, err)
		_, err = ParseToken(tok)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		claims := Claims{UserID: "u", Role: RoleUser, RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unit-secret"))
		require.NoError(t, err)
		_, err = ParseToken(tok)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("s3cret-pass", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))

	assert.Error(t, ValidatePassword("short"))
	assert.NoError(t, ValidatePassword("long-enough"))
}

func TestPermissions(t *testing.T) {
	assert.True(t, CanAccessAnyTenant(RoleMaster))
	assert.True(t, CanAccessAnyTenant(RoleAdmin))
	assert.False(t, CanAccessAnyTenant(RoleUser))
	assert.Error(t, ValidateRole("moderator"))
	assert.True(t, IsAdmin(&Claims{Role: RoleMaster}))
}
