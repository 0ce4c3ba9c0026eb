package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigit/coursereg/internal/pkg/apperrors"
)

func newTestJWT() *JWTService {
	return NewJWTService(JWTConfig{
		SecretKey:      "test-secret",
		AccessTokenExp: time.Hour,
		TokenIssuer:    "coursereg.test",
	})
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := newTestJWT()

	token, expiresIn, err := svc.GenerateToken("student123")
	require.NoError(t, err)
	assert.Equal(t, 3600, expiresIn)

	claims, err := svc.ValidateAndExtractClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "student123", claims.StudentID)
	assert.Equal(t, "student123", claims.Subject)
	assert.NotEmpty(t, claims.ID)

	_, _, err = svc.GenerateToken("")
	assert.Error(t, err)
}

func TestValidateTokenRejections(t *testing.T) {
	svc := newTestJWT()
	token, _, err := svc.GenerateToken("student123")
	require.NoError(t, err)

	expired := newTestJWT()
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = expired.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)

	otherKey := NewJWTService(JWTConfig{SecretKey: "other", AccessTokenExp: time.Hour, TokenIssuer: "coursereg.test"})
	_, err = otherKey.ValidateToken(token)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)

	otherIssuer := NewJWTService(JWTConfig{SecretKey: "test-secret", AccessTokenExp: time.Hour, TokenIssuer: "someone.else"})
	_, err = otherIssuer.ValidateToken(token)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)

	_, err = svc.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, apperrors.ErrInvalidFormat)

	_, err = svc.ValidateAndExtractClaims("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractBearerToken(t *testing.T) {
	token, err := ExtractBearerToken("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	token, err = ExtractBearerToken("  abc.def.ghi ")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	_, err = ExtractBearerToken("   ")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}
