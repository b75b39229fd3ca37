// Package identity defines the canonical user identity resolved by the
// gateway security pipeline and the role-name normalization rules shared
// by the directory and provisioning layers.
package identity

import (
	"fmt"
	"slices"
	"strings"
)

const (
	// RolePrefix is the canonical prefix carried by every role name on an
	// Identity. The directory stores role names without it.
	RolePrefix = "ROLE_"

	// DefaultRole is the base role every authenticated user carries.
	DefaultRole = "ROLE_USER"
)

// Identity represents a resolved gateway user.
//
// An Identity is produced once per request by one of the configured
// resolvers (pre-authenticated token or trusted proxy headers) and may be
// replaced later in the pipeline by the canonical directory copy. Downstream
// header-injection collaborators read it from the request context.
type Identity struct {
	// Username is the unique key within the directory. Never empty on a
	// published Identity.
	Username string `json:"username" yaml:"username" mapstructure:"username"`

	// Email is the user's email address.
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`

	// FirstName is the user's given name.
	FirstName string `json:"first_name,omitempty" yaml:"first_name,omitempty" mapstructure:"first_name"`

	// LastName is the user's family name.
	LastName string `json:"last_name,omitempty" yaml:"last_name,omitempty" mapstructure:"last_name"`

	// Organization is the organization short name the user belongs to.
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty" mapstructure:"organization"`

	// Roles is the normalized role set, every entry carrying RolePrefix.
	// A fresh identity with no explicit roles carries DefaultRole.
	Roles []string `json:"roles" yaml:"roles" mapstructure:"roles"`

	// OAuth2ProviderID is an opaque external identity-provider subject,
	// usable as an alternate directory lookup key. Optional.
	OAuth2ProviderID string `json:"oauth2_provider_id,omitempty" yaml:"oauth2_provider_id,omitempty" mapstructure:"oauth2_provider_id"`
}

// Validate checks that the identity is publishable. An empty username is a
// hard failure, not a valid anonymous identity.
func (u *Identity) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("identity username is required")
	}
	return nil
}

// Clone returns a deep copy of the identity.
func (u *Identity) Clone() *Identity {
	if u == nil {
		return nil
	}
	clone := *u
	clone.Roles = slices.Clone(u.Roles)
	return &clone
}

// Normalize returns a copy with the role set canonicalized: every role
// carries RolePrefix, duplicates collapse, and an empty set becomes
// [DefaultRole]. The receiver is not modified.
func (u *Identity) Normalize() *Identity {
	clone := u.Clone()
	clone.Roles = NormalizeRoles(u.Roles)
	return clone
}

// HasRole reports whether the identity carries the given role, comparing
// canonical forms.
func (u *Identity) HasRole(role string) bool {
	want := NormalizeRoleName(role)
	for _, r := range u.Roles {
		if NormalizeRoleName(r) == want {
			return true
		}
	}
	return false
}

// NormalizeRoleName returns the canonical prefixed form of a role name:
// upper-cased and carrying RolePrefix exactly once. "admin", "ADMIN" and
// "ROLE_ADMIN" all normalize to "ROLE_ADMIN".
func NormalizeRoleName(role string) string {
	name := strings.ToUpper(strings.TrimSpace(role))
	if name == "" {
		return ""
	}
	if !strings.HasPrefix(name, RolePrefix) {
		name = RolePrefix + name
	}
	return name
}

// StripRolePrefix returns the directory-side role name, without RolePrefix.
// The directory stores "ADMIN" for the canonical role "ROLE_ADMIN".
func StripRolePrefix(role string) string {
	name := strings.ToUpper(strings.TrimSpace(role))
	return strings.TrimPrefix(name, RolePrefix)
}

// NormalizeRoles canonicalizes a role set: each name normalized via
// NormalizeRoleName, blanks dropped, duplicates collapsed preserving first
// occurrence order. An empty result yields [DefaultRole].
func NormalizeRoles(roles []string) []string {
	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		name := NormalizeRoleName(role)
		if name == "" {
			continue
		}
		if !slices.Contains(normalized, name) {
			normalized = append(normalized, name)
		}
	}
	if len(normalized) == 0 {
		normalized = append(normalized, DefaultRole)
	}
	return normalized
}
