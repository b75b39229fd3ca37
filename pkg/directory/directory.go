// Package directory defines the capability interface the gateway uses to
// talk to the user directory service. The gateway itself never reaches the
// storage engine: concrete adapters (memory, ldap, sql) implement this
// interface and own connection handling.
package directory

import (
	"context"
	"errors"
)

// Common errors for directory operations.
//
// The "not found" conditions are expected in lookup contexts and drive the
// create-vs-reuse branch; the duplicate conditions signal a uniqueness
// violation detected by the directory itself and are fatal to the caller.
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrRoleNotFound      = errors.New("role not found")
	ErrDuplicateUsername = errors.New("account with this username already exists")
	ErrDuplicateEmail    = errors.New("account with this email already exists")
	ErrDuplicateRole     = errors.New("role already exists")
)

// Account is a directory entry for a user. The key is Username; all other
// identity attributes mirror the resolved identity. Accounts created by the
// gateway never carry credentials: authentication already happened upstream.
type Account struct {
	// UID is the directory-assigned unique id, set on read.
	UID string

	// Username is the unique account key.
	Username string

	Email        string
	FirstName    string
	LastName     string
	Organization string

	// OAuth2ProviderID links the account to an external identity provider
	// subject, when the account originated from an OAuth2 login.
	OAuth2ProviderID string

	// Pending marks accounts awaiting manual approval. Accounts provisioned
	// by the gateway are immediately usable and always have Pending false.
	Pending bool

	// Roles holds the directory-side (unprefixed) role names the account is
	// a member of. Populated on read, ignored on insert: membership is
	// mutated through AddUserToRole only.
	Roles []string
}

// Role is a directory role entry, keyed by its unprefixed name.
type Role struct {
	Name        string
	Description string
}

// Gateway is the capability set the gateway requires of a directory
// service.
//
// Implementations must be safe for concurrent use: the same instance is
// shared across in-flight requests. Every call takes a context and must
// honor its cancellation; blocking on a bounded connection pool is a slow
// condition, not an error.
type Gateway interface {
	// FindByUsername returns the account with the given username.
	// Returns ErrAccountNotFound if no such account exists.
	FindByUsername(ctx context.Context, username string) (*Account, error)

	// FindByOAuth2ProviderID returns the account linked to the given external
	// provider subject. Returns ErrAccountNotFound if no account is linked.
	FindByOAuth2ProviderID(ctx context.Context, providerID string) (*Account, error)

	// InsertAccount creates a new account. The directory's own uniqueness
	// constraint is the race detector: concurrent inserts of the same
	// username surface as ErrDuplicateUsername (or ErrDuplicateEmail).
	InsertAccount(ctx context.Context, account *Account) error

	// DeleteAccount removes an account by username.
	// Returns ErrAccountNotFound if the account doesn't exist.
	DeleteAccount(ctx context.Context, username string) error

	// FindRoleByName returns the role with the given unprefixed name.
	// Returns ErrRoleNotFound if no such role exists.
	FindRoleByName(ctx context.Context, name string) (*Role, error)

	// CreateRole creates a new role. Returns ErrDuplicateRole if a role with
	// the same name already exists.
	CreateRole(ctx context.Context, role *Role) error

	// AddUserToRole adds the account to the role's membership.
	// Returns ErrAccountNotFound or ErrRoleNotFound when either side is
	// missing. Adding an existing member is not an error.
	AddUserToRole(ctx context.Context, roleName, username string) error
}

// IsNotFound reports whether err is one of the expected lookup-miss
// conditions.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrRoleNotFound)
}
