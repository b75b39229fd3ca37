// Package accounts implements account provisioning: given a resolved
// identity with no backing directory entry, it runs the
// create-account-then-assign-roles transaction, rolling the account back on
// partial failure so the directory never ends up half-applied.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/emmdurin/georchestra-gateway/internal/logger"
	"github.com/emmdurin/georchestra-gateway/pkg/directory"
	"github.com/emmdurin/georchestra-gateway/pkg/events"
	"github.com/emmdurin/georchestra-gateway/pkg/identity"
)

// ErrAccountVanished is returned when the account re-read right after a
// successful creation finds nothing. That can only mean the directory lost
// or rejected the insert it just acknowledged.
var ErrAccountVanished = errors.New("account not found right after creation")

// Metrics counts provisioning outcomes. A nil Metrics disables counting.
type Metrics interface {
	// ProvisioningSucceeded counts one fully provisioned account.
	ProvisioningSucceeded()
	// ProvisioningFailed counts one failed provisioning attempt.
	ProvisioningFailed()
	// RollbackPerformed counts one compensating account deletion.
	RollbackPerformed()
	// EventPublishFailed counts one dropped account-created event.
	EventPublishFailed()
}

// Manager provisions directory accounts for resolved identities.
//
// Safe for concurrent use: it holds no per-request state, and the race on
// "does this username already have an account" is delegated to the
// directory's uniqueness constraint on insert.
type Manager struct {
	dir     directory.Gateway
	sink    events.Sink
	metrics Metrics
	log     *slog.Logger
}

// NewManager creates a Manager over the given directory. A nil sink
// disables event emission; a nil metrics disables counting.
func NewManager(dir directory.Gateway, sink events.Sink, metrics Metrics) *Manager {
	return &Manager{
		dir:     dir,
		sink:    sink,
		metrics: metrics,
		log:     logger.WithComponent("accounts"),
	}
}

// Find returns the canonical directory identity for the given resolved
// identity, looking up by external provider id first when the identity
// carries one, then by username. Returns directory.ErrAccountNotFound when
// neither lookup matches.
func (m *Manager) Find(ctx context.Context, user *identity.Identity) (*identity.Identity, error) {
	if user.OAuth2ProviderID != "" {
		found, err := m.dir.FindByOAuth2ProviderID(ctx, user.OAuth2ProviderID)
		if err == nil {
			return identityFromAccount(found), nil
		}
		if !directory.IsNotFound(err) {
			return nil, err
		}
	}
	found, err := m.dir.FindByUsername(ctx, user.Username)
	if err != nil {
		return nil, err
	}
	return identityFromAccount(found), nil
}

// GetOrCreate returns the directory identity for the given resolved
// identity, provisioning the account when no directory entry exists yet.
// Sequential calls for the same username are idempotent: the second call
// takes the found branch.
func (m *Manager) GetOrCreate(ctx context.Context, user *identity.Identity) (*identity.Identity, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	existing, err := m.Find(ctx, user)
	if err == nil {
		return existing, nil
	}
	if !directory.IsNotFound(err) {
		return nil, fmt.Errorf("looking up account %q: %w", user.Username, err)
	}
	return m.Create(ctx, user)
}

// Create runs the provisioning transaction:
//
//  1. insert the account (no credential, pending cleared)
//  2. ensure every role exists and add the account to it
//  3. on role failure, delete the just-inserted account; a failed deletion
//     is logged but never masks the triggering role error
//  4. re-read the account for the canonical directory view
//  5. emit one account-created event, best-effort
func (m *Manager) Create(ctx context.Context, user *identity.Identity) (*identity.Identity, error) {
	account := accountFromIdentity(user)

	if err := m.dir.InsertAccount(ctx, account); err != nil {
		// Nothing to roll back: the insert is the first mutation.
		m.failed()
		return nil, fmt.Errorf("creating account %q: %w", user.Username, err)
	}

	if err := m.assignRoles(ctx, user); err != nil {
		m.rollback(ctx, user.Username)
		m.failed()
		return nil, fmt.Errorf("assigning roles to account %q: %w", user.Username, err)
	}

	canonical, err := m.dir.FindByUsername(ctx, user.Username)
	if err != nil {
		m.failed()
		if directory.IsNotFound(err) {
			return nil, fmt.Errorf("account %q: %w", user.Username, ErrAccountVanished)
		}
		return nil, fmt.Errorf("reading back account %q: %w", user.Username, err)
	}

	created := identityFromAccount(canonical)
	if m.metrics != nil {
		m.metrics.ProvisioningSucceeded()
	}
	m.publish(ctx, created)
	return created, nil
}

// assignRoles adds the account to the default role (when absent from the
// identity's set) and to every role the identity carries.
func (m *Manager) assignRoles(ctx context.Context, user *identity.Identity) error {
	roles := identity.NormalizeRoles(user.Roles)
	if !m.hasDefaultRole(roles) {
		roles = append([]string{identity.DefaultRole}, roles...)
	}
	for _, role := range roles {
		name := identity.StripRolePrefix(role)
		if err := m.ensureRoleExists(ctx, name); err != nil {
			return err
		}
		if err := m.dir.AddUserToRole(ctx, name, user.Username); err != nil {
			return fmt.Errorf("adding to role %q: %w", name, err)
		}
	}
	return nil
}

func (m *Manager) hasDefaultRole(roles []string) bool {
	for _, role := range roles {
		if role == identity.DefaultRole {
			return true
		}
	}
	return false
}

// ensureRoleExists looks up the role by its directory-side name and creates
// it when missing. A duplicate-creation error from the directory is
// surfaced as fatal: two requests racing on the same new role is tolerable
// for the directory, but a hard duplicate signal here means the lookup and
// the insert disagree about directory state.
func (m *Manager) ensureRoleExists(ctx context.Context, name string) error {
	_, err := m.dir.FindRoleByName(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, directory.ErrRoleNotFound) {
		return fmt.Errorf("looking up role %q: %w", name, err)
	}
	if err := m.dir.CreateRole(ctx, &directory.Role{Name: name}); err != nil {
		return fmt.Errorf("creating role %q: %w", name, err)
	}
	return nil
}

// rollback deletes the just-inserted account after a role-assignment
// failure. A deletion failure leaves an orphan account in the directory;
// that inconsistency is logged, and the caller propagates the original
// role error, not the deletion one.
func (m *Manager) rollback(ctx context.Context, username string) {
	if m.metrics != nil {
		m.metrics.RollbackPerformed()
	}
	if err := m.dir.DeleteAccount(ctx, username); err != nil {
		m.log.Warn("error reverting account creation after role assignment failure",
			logger.KeyUsername, username,
			logger.KeyError, err.Error(),
		)
	}
}

// publish emits the account-created event. Delivery is best-effort: a sink
// failure is logged and never fails the provisioning.
func (m *Manager) publish(ctx context.Context, created *identity.Identity) {
	if m.sink == nil {
		return
	}
	event := events.NewAccountCreated(created.Username, created.Roles)
	if err := m.sink.Publish(ctx, event); err != nil {
		if m.metrics != nil {
			m.metrics.EventPublishFailed()
		}
		m.log.Warn("failed to publish account-created event",
			logger.KeyEventID, event.ID,
			logger.KeyUsername, created.Username,
			logger.KeyError, err.Error(),
		)
	}
}

func (m *Manager) failed() {
	if m.metrics != nil {
		m.metrics.ProvisioningFailed()
	}
}

// accountFromIdentity maps a resolved identity to a directory account
// record. No credential is minted (authentication already happened
// upstream) and the pending flag is explicitly cleared: accounts created
// through this path are immediately usable.
func accountFromIdentity(user *identity.Identity) *directory.Account {
	return &directory.Account{
		Username:         user.Username,
		Email:            user.Email,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		Organization:     user.Organization,
		OAuth2ProviderID: user.OAuth2ProviderID,
		Pending:          false,
	}
}

// identityFromAccount maps a directory account to the canonical identity
// exposed to the pipeline: role names get the canonical prefix back, and
// an account with no roles yields the default role.
func identityFromAccount(account *directory.Account) *identity.Identity {
	return &identity.Identity{
		Username:         account.Username,
		Email:            account.Email,
		FirstName:        account.FirstName,
		LastName:         account.LastName,
		Organization:     account.Organization,
		OAuth2ProviderID: account.OAuth2ProviderID,
		Roles:            identity.NormalizeRoles(account.Roles),
	}
}
