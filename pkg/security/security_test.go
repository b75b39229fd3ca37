package security

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmdurin/georchestra-gateway/pkg/identity"
)

func TestIdentityStore(t *testing.T) {
	t.Run("empty holder resolves nothing", func(t *testing.T) {
		ctx := WithIdentityHolder(context.Background())
		user, ok := Resolve(ctx)
		assert.False(t, ok)
		assert.Nil(t, user)
	})

	t.Run("store then resolve", func(t *testing.T) {
		ctx := WithIdentityHolder(context.Background())
		require.True(t, Store(ctx, &identity.Identity{Username: "pmartin"}))

		user, ok := Resolve(ctx)
		require.True(t, ok)
		assert.Equal(t, "pmartin", user.Username)
	})

	t.Run("store replaces previous value", func(t *testing.T) {
		ctx := WithIdentityHolder(context.Background())
		Store(ctx, &identity.Identity{Username: "first"})
		Store(ctx, &identity.Identity{Username: "second"})

		user, _ := Resolve(ctx)
		assert.Equal(t, "second", user.Username)
	})

	t.Run("store nil clears the slot", func(t *testing.T) {
		ctx := WithIdentityHolder(context.Background())
		Store(ctx, &identity.Identity{Username: "pmartin"})
		Store(ctx, nil)

		_, ok := Resolve(ctx)
		assert.False(t, ok)
	})

	t.Run("missing holder", func(t *testing.T) {
		assert.False(t, Store(context.Background(), &identity.Identity{Username: "x"}))
		_, ok := Resolve(context.Background())
		assert.False(t, ok)
	})
}

func TestTokenResolver(t *testing.T) {
	resolver := NewTokenResolver()
	assert.Equal(t, KindToken, resolver.Kind())

	t.Run("extracts embedded identity", func(t *testing.T) {
		sig := &Signal{
			Authentication: &PreAuthenticatedToken{
				Principal:   "pmartin",
				Credentials: &identity.Identity{Username: "pmartin", Roles: []string{"ROLE_USER"}},
			},
			Headers: http.Header{},
		}
		user, err := resolver.Resolve(context.Background(), sig)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "pmartin", user.Username)
	})

	t.Run("returned identity is a copy", func(t *testing.T) {
		embedded := &identity.Identity{Username: "pmartin", Roles: []string{"ROLE_USER"}}
		sig := &Signal{Authentication: &PreAuthenticatedToken{Principal: "pmartin", Credentials: embedded}}

		user, err := resolver.Resolve(context.Background(), sig)
		require.NoError(t, err)
		user.Roles[0] = "ROLE_ADMIN"
		assert.Equal(t, "ROLE_USER", embedded.Roles[0])
	})

	t.Run("no authentication resolves empty", func(t *testing.T) {
		user, err := resolver.Resolve(context.Background(), &Signal{Headers: http.Header{}})
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("other authentication kind resolves empty", func(t *testing.T) {
		user, err := resolver.Resolve(context.Background(), &Signal{Authentication: otherAuth{}})
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("token without credentials resolves empty", func(t *testing.T) {
		sig := &Signal{Authentication: &PreAuthenticatedToken{Principal: "pmartin"}}
		user, err := resolver.Resolve(context.Background(), sig)
		require.NoError(t, err)
		assert.Nil(t, user)
	})
}

// otherAuth is an authentication kind the token resolver must ignore.
type otherAuth struct{}

func (otherAuth) AuthKind() SignalKind  { return KindHeaders }
func (otherAuth) PrincipalName() string { return "other" }

func TestMapperPrecedence(t *testing.T) {
	first := &stubResolver{kind: KindToken, user: &identity.Identity{Username: "from-token"}}
	second := &stubResolver{kind: KindHeaders, user: &identity.Identity{Username: "from-headers"}}
	mapper := NewMapper(first, second)

	user, err := mapper.Resolve(context.Background(), &Signal{})
	require.NoError(t, err)
	assert.Equal(t, "from-token", user.Username)
	assert.False(t, second.called, "later resolvers must not run once one resolves")
}

func TestMapperFallsThrough(t *testing.T) {
	first := &stubResolver{kind: KindToken}
	second := &stubResolver{kind: KindHeaders, user: &identity.Identity{Username: "from-headers"}}
	mapper := NewMapper(first, second)

	user, err := mapper.Resolve(context.Background(), &Signal{})
	require.NoError(t, err)
	assert.Equal(t, "from-headers", user.Username)
}

func TestMapperAllEmpty(t *testing.T) {
	mapper := NewMapper(&stubResolver{kind: KindToken}, &stubResolver{kind: KindHeaders})

	user, err := mapper.Resolve(context.Background(), &Signal{})
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestMapperPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	mapper := NewMapper(
		&stubResolver{kind: KindToken, err: boom},
		&stubResolver{kind: KindHeaders, user: &identity.Identity{Username: "unreachable"}},
	)

	user, err := mapper.Resolve(context.Background(), &Signal{})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, user)
}

type stubResolver struct {
	kind   SignalKind
	user   *identity.Identity
	err    error
	called bool
}

func (s *stubResolver) Kind() SignalKind { return s.kind }

func (s *stubResolver) Resolve(_ context.Context, _ *Signal) (*identity.Identity, error) {
	s.called = true
	return s.user, s.err
}
