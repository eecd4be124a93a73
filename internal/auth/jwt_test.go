package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_UsesConfiguredTTL(t *testing.T) {
	ttl := 2 * time.Hour
	tm := NewTokenManager("test-secret", ttl)

	userID := uuid.New()

	start := time.Now()

	token, err := tm.GenerateToken(userID, "Ada", domain.SenderAgent)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	require.NotNil(t, claims.ExpiresAt)

	expectedExpiry := start.Add(ttl)
	assert.WithinDuration(t, expectedExpiry, claims.ExpiresAt.Time, 2*time.Second)
}

func TestTokenManager_Actor(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	userID := uuid.New()

	token, err := tm.GenerateToken(userID, "Ada", domain.SenderAdmin)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)

	actor := claims.Actor()
	assert.Equal(t, userID, actor.ID)
	assert.Equal(t, "Ada", actor.Name)
	assert.Equal(t, domain.SenderAdmin, actor.Role)
	assert.True(t, actor.IsStaff())
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewTokenManager("other", time.Hour).GenerateToken(uuid.New(), "Eve", domain.SenderAgent)
		require.NoError(t, err)
		_, err = tm.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		claims := &Claims{
			UserID: uuid.New(),
			Role:   domain.SenderAgent,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = tm.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("missing role", func(t *testing.T) {
		claims := &Claims{UserID: uuid.New()}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = tm.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("unknown role cannot be minted", func(t *testing.T) {
		_, err := tm.GenerateToken(uuid.New(), "Bot", domain.SenderType("bot"))
		assert.Error(t, err)
	})
}
