package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmdurin/georchestra-gateway/pkg/identity"
	"github.com/emmdurin/georchestra-gateway/pkg/security"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = testSecret
	}
	svc, err := NewService(cfg)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRejectsShortSecret(t *testing.T) {
	_, err := NewService(Config{Secret: "too-short"})
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
}

func TestMintAndValidate(t *testing.T) {
	svc := newTestService(t, Config{})

	user := &identity.Identity{
		Username:     "pmartin",
		Email:        "pierre.martin@example.org",
		FirstName:    "Pierre",
		LastName:     "Martin",
		Organization: "C2C",
		Roles:        []string{"admin"},
	}

	signed, err := svc.Mint(user)
	require.NoError(t, err)

	claims, err := svc.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "pmartin", claims.Subject)
	assert.Equal(t, "pmartin", claims.Username)
	assert.Equal(t, "C2C", claims.Organization)
	// roles are canonicalized at mint time
	assert.Equal(t, []string{"ROLE_ADMIN"}, claims.Roles)

	rebuilt := claims.Identity()
	assert.Equal(t, user.Username, rebuilt.Username)
	assert.Equal(t, user.Email, rebuilt.Email)
}

func TestMintRejectsEmptyUsername(t *testing.T) {
	svc := newTestService(t, Config{})
	_, err := svc.Mint(&identity.Identity{})
	assert.Error(t, err)
}

func TestValidateRejectsTampering(t *testing.T) {
	svc := newTestService(t, Config{})
	other := newTestService(t, Config{Secret: "fedcba9876543210fedcba9876543210"})

	signed, err := svc.Mint(&identity.Identity{Username: "pmartin"})
	require.NoError(t, err)

	_, err = other.Validate(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Validate(signed + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Validate("not a token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := newTestService(t, Config{Duration: -time.Minute})

	signed, err := svc.Mint(&identity.Identity{Username: "pmartin"})
	require.NoError(t, err)

	_, err = svc.Validate(signed)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t, Config{})

	signed, err := svc.Mint(&identity.Identity{Username: "pmartin", Roles: []string{"GN_EDITOR"}})
	require.NoError(t, err)

	auth, err := svc.Authenticate(signed)
	require.NoError(t, err)
	assert.Equal(t, security.KindToken, auth.AuthKind())
	assert.Equal(t, "pmartin", auth.PrincipalName())
	require.NotNil(t, auth.Credentials)
	assert.Equal(t, []string{"ROLE_GN_EDITOR"}, auth.Credentials.Roles)
}
