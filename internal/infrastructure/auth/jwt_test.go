package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-chars"

func newTestJWTService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:                testSecret,
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "groupbuy-test",
	})
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	svc := newTestJWTService()
	userID := uuid.New()

	token, expiresAt, err := svc.GenerateAccessToken(GenerateTokenInput{
		UserID:      userID,
		Username:    "ops",
		Permissions: []string{PermissionGroupBuyManage},
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Username)
	assert.True(t, claims.HasPermission(PermissionGroupBuyManage))
	assert.False(t, claims.HasPermission("catalog:write"))
	assert.True(t, claims.HasAnyPermission("catalog:write", PermissionGroupBuyManage))

	parsed, err := claims.GetUserUUID()
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestValidateAccessToken_Failures(t *testing.T) {
	svc := newTestJWTService()
	token, _, err := svc.GenerateAccessToken(GenerateTokenInput{UserID: uuid.New(), Username: "ops"})
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		svc.now = func() time.Time { return time.Now().Add(time.Hour) }
		defer func() { svc.now = time.Now }()
		_, err := svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: "another-secret-key-of-32-characters", Issuer: "groupbuy-test"})
		_, err := other.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: testSecret, Issuer: "someone-else"})
		_, err := other.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateAccessToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("chat token is not an access token", func(t *testing.T) {
		chat := NewChatTokenService(testSecret, time.Hour)
		ct, _, err := chat.Issue(uuid.New(), uuid.New())
		require.NoError(t, err)
		_, err = NewJWTService(config.JWTConfig{Secret: testSecret}).ValidateAccessToken(ct)
		assert.ErrorIs(t, err, ErrInvalidTokenType)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: uuid.NewString(), TokenType: TokenTypeAccess})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestChatTokenService(t *testing.T) {
	svc := NewChatTokenService(testSecret, 24*time.Hour)
	groupID, participantID := uuid.New(), uuid.New()

	token, expiresAt, err := svc.Issue(groupID, participantID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, groupID, claims.GroupUUID())
	assert.Equal(t, participantID, claims.ParticipantUUID())
	assert.Equal(t, ChatScope, claims.Scope)
	assert.Equal(t, jwt.ClaimStrings{ChatAudience}, claims.Audience)

	t.Run("expired", func(t *testing.T) {
		late := NewChatTokenService(testSecret, time.Hour)
		late.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
		_, err := late.Validate(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("operator token has the wrong audience", func(t *testing.T) {
		access, _, err := NewJWTService(config.JWTConfig{
			Secret: testSecret, AccessTokenExpiration: time.Hour, Issuer: "groupbuy",
		}).GenerateAccessToken(GenerateTokenInput{UserID: uuid.New()})
		require.NoError(t, err)
		_, err = svc.Validate(access)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong scope", func(t *testing.T) {
		claims := &ChatClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Audience:  jwt.ClaimStrings{ChatAudience},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			GroupID:       groupID.String(),
			ParticipantID: participantID.String(),
			Scope:         "admin",
		}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = svc.Validate(raw)
		assert.ErrorIs(t, err, ErrInvalidTokenType)
	})
}
