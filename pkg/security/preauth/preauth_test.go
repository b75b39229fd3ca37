package preauth

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmdurin/georchestra-gateway/pkg/identity"
	"github.com/emmdurin/georchestra-gateway/pkg/security"
)

func preauthHeaders() http.Header {
	h := http.Header{}
	h.Set(PreauthHeader, "true")
	h.Set(HeaderUsername, "pmartin")
	h.Set(HeaderEmail, "pierre.martin@example.org")
	h.Set(HeaderFirstName, "Pierre")
	h.Set(HeaderLastName, "Martin")
	h.Set(HeaderOrg, "C2C")
	return h
}

func TestIsPreAuthenticated(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"literal true", "true", true},
		{"case-insensitive true", "TRUE", true},
		{"mixed case", "True", true},
		{"false", "false", false},
		{"other truthy-looking value", "1", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set(PreauthHeader, tt.value)
			}
			assert.Equal(t, tt.want, IsPreAuthenticated(h))
		})
	}
}

func TestFromHeaders(t *testing.T) {
	user := FromHeaders(preauthHeaders())

	assert.Equal(t, "pmartin", user.Username)
	assert.Equal(t, "pierre.martin@example.org", user.Email)
	assert.Equal(t, "Pierre", user.FirstName)
	assert.Equal(t, "Martin", user.LastName)
	assert.Equal(t, "C2C", user.Organization)
	assert.Equal(t, []string{identity.DefaultRole}, user.Roles)
}

func TestHeaderResolver(t *testing.T) {
	resolver := NewHeaderResolver()
	assert.Equal(t, security.KindHeaders, resolver.Kind())

	t.Run("resolves when flag set", func(t *testing.T) {
		sig := &security.Signal{Headers: preauthHeaders()}
		user, err := resolver.Resolve(context.Background(), sig)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "pmartin", user.Username)
		assert.Equal(t, []string{identity.DefaultRole}, user.Roles)
	})

	t.Run("empty without flag", func(t *testing.T) {
		h := preauthHeaders()
		h.Del(PreauthHeader)
		user, err := resolver.Resolve(context.Background(), &security.Signal{Headers: h})
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("fatal when flag set without username", func(t *testing.T) {
		h := preauthHeaders()
		h.Del(HeaderUsername)
		user, err := resolver.Resolve(context.Background(), &security.Signal{Headers: h})
		assert.ErrorIs(t, err, ErrMissingUsername)
		assert.Nil(t, user)
	})

	t.Run("fatal when username is blank", func(t *testing.T) {
		h := preauthHeaders()
		h.Set(HeaderUsername, "   ")
		_, err := resolver.Resolve(context.Background(), &security.Signal{Headers: h})
		assert.ErrorIs(t, err, ErrMissingUsername)
	})
}

func TestConvert(t *testing.T) {
	t.Run("flag absent converts to nothing", func(t *testing.T) {
		tok, err := Convert(http.Header{})
		require.NoError(t, err)
		assert.Nil(t, tok)
	})

	t.Run("flag set yields pre-authenticated token", func(t *testing.T) {
		tok, err := Convert(preauthHeaders())
		require.NoError(t, err)
		require.NotNil(t, tok)
		assert.Equal(t, security.KindToken, tok.AuthKind())
		assert.Equal(t, "pmartin", tok.PrincipalName())
		assert.Equal(t, "pmartin", tok.Credentials.Username)
	})

	t.Run("flag set without username is fatal", func(t *testing.T) {
		h := http.Header{}
		h.Set(PreauthHeader, "true")
		_, err := Convert(h)
		assert.ErrorIs(t, err, ErrMissingUsername)
	})
}
