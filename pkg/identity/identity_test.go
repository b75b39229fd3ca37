package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"valid username", "pmartin", false},
		{"empty username", "", true},
		{"whitespace only username", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &Identity{Username: tt.username}
			err := u.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeRoleName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ADMIN", "ROLE_ADMIN"},
		{"ROLE_ADMIN", "ROLE_ADMIN"},
		{"admin", "ROLE_ADMIN"},
		{"role_admin", "ROLE_ADMIN"},
		{"  GN_EDITOR ", "ROLE_GN_EDITOR"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeRoleName(tt.in), "input %q", tt.in)
	}
}

func TestStripRolePrefix(t *testing.T) {
	assert.Equal(t, "ADMIN", StripRolePrefix("ROLE_ADMIN"))
	assert.Equal(t, "ADMIN", StripRolePrefix("admin"))
	assert.Equal(t, "USER", StripRolePrefix("ROLE_USER"))
}

func TestNormalizeRoles(t *testing.T) {
	t.Run("prefixes and dedupes preserving order", func(t *testing.T) {
		got := NormalizeRoles([]string{"ADMIN", "ROLE_ADMIN", "GN_EDITOR", "admin"})
		assert.Equal(t, []string{"ROLE_ADMIN", "ROLE_GN_EDITOR"}, got)
	})

	t.Run("empty set yields default role", func(t *testing.T) {
		assert.Equal(t, []string{DefaultRole}, NormalizeRoles(nil))
		assert.Equal(t, []string{DefaultRole}, NormalizeRoles([]string{"", "  "}))
	})
}

func TestNormalize(t *testing.T) {
	u := &Identity{Username: "pmartin", Roles: []string{"admin"}}
	normalized := u.Normalize()

	require.NotSame(t, u, normalized)
	assert.Equal(t, []string{"ROLE_ADMIN"}, normalized.Roles)
	// receiver untouched
	assert.Equal(t, []string{"admin"}, u.Roles)
}

func TestClone(t *testing.T) {
	u := &Identity{Username: "pmartin", Roles: []string{"ROLE_USER"}}
	clone := u.Clone()

	clone.Roles[0] = "ROLE_ADMIN"
	assert.Equal(t, "ROLE_USER", u.Roles[0])

	var nilIdentity *Identity
	assert.Nil(t, nilIdentity.Clone())
}

func TestHasRole(t *testing.T) {
	u := &Identity{Username: "pmartin", Roles: []string{"ROLE_USER", "GN_EDITOR"}}

	assert.True(t, u.HasRole("USER"))
	assert.True(t, u.HasRole("ROLE_GN_EDITOR"))
	assert.False(t, u.HasRole("ADMIN"))
}
