package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandi/backend/internal/infrastructure/config"
)

func newService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-that-is-long-enough",
		Issuer:                "mandi-test",
		AccessTokenExpiration: time.Minute,
	})
}

func TestIssueAndValidate(t *testing.T) {
	svc := newService()
	tenantID := uuid.New()

	token, expiresAt, err := svc.IssueAccessToken(IssueInput{
		TenantID: tenantID,
		ActorID:  "clerk-1",
		Username: "ravi",
		Roles:    []string{RoleClerk},
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	got, err := claims.GetTenantUUID()
	require.NoError(t, err)
	assert.Equal(t, tenantID, got)
	assert.Equal(t, "clerk-1", claims.Subject)
	assert.True(t, claims.HasRole(RoleClerk))
	assert.False(t, claims.HasRole(RoleAdmin))
}

func TestHasRole_AdminImpliesAll(t *testing.T) {
	c := &Claims{Roles: []string{RoleAdmin}}
	assert.True(t, c.HasRole(RoleClerk))
}

func TestIssueAccessToken_RequiresTenantAndActor(t *testing.T) {
	svc := newService()
	_, _, err := svc.IssueAccessToken(IssueInput{ActorID: "x"})
	assert.ErrorIs(t, err, ErrMissingTenantID)
	_, _, err = svc.IssueAccessToken(IssueInput{TenantID: uuid.New()})
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestValidateAccessToken_Rejections(t *testing.T) {
	svc := newService()
	tenantID := uuid.New()

	t.Run("expired", func(t *testing.T) {
		token, _, err := svc.IssueAccessToken(IssueInput{TenantID: tenantID, ActorID: "a", TTL: -time.Minute})
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: "another-secret", Issuer: "mandi-test"})
		token, _, err := other.IssueAccessToken(IssueInput{TenantID: tenantID, ActorID: "a"})
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: "test-secret-key-that-is-long-enough", Issuer: "elsewhere"})
		token, _, err := other.IssueAccessToken(IssueInput{TenantID: tenantID, ActorID: "a"})
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "a", Issuer: "mandi-test"},
			TenantID:         tenantID.String(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("tenant claim must be a uuid", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "a",
				Issuer:    "mandi-test",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
			TenantID: "not-a-uuid",
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key-that-is-long-enough"))
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrMissingTenantID)
	})
}
