// Package memory provides an in-memory directory.Gateway. It backs
// single-node development setups and is the canonical test double for the
// provisioning transaction.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/emmdurin/georchestra-gateway/pkg/directory"
)

// Directory is an in-memory implementation of directory.Gateway.
// Safe for concurrent use.
type Directory struct {
	mu       sync.RWMutex
	nextUID  int
	accounts map[string]*directory.Account // keyed by username
	roles    map[string]*directory.Role    // keyed by unprefixed role name
	members  map[string][]string           // role name -> usernames
}

// New creates an empty in-memory directory.
func New() *Directory {
	return &Directory{
		accounts: make(map[string]*directory.Account),
		roles:    make(map[string]*directory.Role),
		members:  make(map[string][]string),
	}
}

func (d *Directory) FindByUsername(_ context.Context, username string) (*directory.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	account, ok := d.accounts[username]
	if !ok {
		return nil, fmt.Errorf("find %q: %w", username, directory.ErrAccountNotFound)
	}
	return d.withRoles(account), nil
}

func (d *Directory) FindByOAuth2ProviderID(_ context.Context, providerID string) (*directory.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, account := range d.accounts {
		if account.OAuth2ProviderID != "" && account.OAuth2ProviderID == providerID {
			return d.withRoles(account), nil
		}
	}
	return nil, fmt.Errorf("find by provider id %q: %w", providerID, directory.ErrAccountNotFound)
}

func (d *Directory) InsertAccount(_ context.Context, account *directory.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.accounts[account.Username]; exists {
		return fmt.Errorf("insert %q: %w", account.Username, directory.ErrDuplicateUsername)
	}
	if account.Email != "" {
		for _, existing := range d.accounts {
			if strings.EqualFold(existing.Email, account.Email) {
				return fmt.Errorf("insert %q: %w", account.Username, directory.ErrDuplicateEmail)
			}
		}
	}

	d.nextUID++
	stored := *account
	stored.UID = fmt.Sprintf("uid-%d", d.nextUID)
	stored.Roles = nil // membership is mutated through AddUserToRole only
	d.accounts[account.Username] = &stored
	return nil
}

func (d *Directory) DeleteAccount(_ context.Context, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.accounts[username]; !ok {
		return fmt.Errorf("delete %q: %w", username, directory.ErrAccountNotFound)
	}
	delete(d.accounts, username)
	for role, usernames := range d.members {
		d.members[role] = slices.DeleteFunc(usernames, func(u string) bool { return u == username })
	}
	return nil
}

func (d *Directory) FindRoleByName(_ context.Context, name string) (*directory.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	role, ok := d.roles[name]
	if !ok {
		return nil, fmt.Errorf("find role %q: %w", name, directory.ErrRoleNotFound)
	}
	clone := *role
	return &clone, nil
}

func (d *Directory) CreateRole(_ context.Context, role *directory.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.roles[role.Name]; exists {
		return fmt.Errorf("create role %q: %w", role.Name, directory.ErrDuplicateRole)
	}
	clone := *role
	d.roles[role.Name] = &clone
	return nil
}

func (d *Directory) AddUserToRole(_ context.Context, roleName, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.accounts[username]; !ok {
		return fmt.Errorf("add %q to role %q: %w", username, roleName, directory.ErrAccountNotFound)
	}
	if _, ok := d.roles[roleName]; !ok {
		return fmt.Errorf("add %q to role %q: %w", username, roleName, directory.ErrRoleNotFound)
	}
	if !slices.Contains(d.members[roleName], username) {
		d.members[roleName] = append(d.members[roleName], username)
	}
	return nil
}

// withRoles returns a copy of the account with its role membership filled
// in. Callers must hold at least a read lock.
func (d *Directory) withRoles(account *directory.Account) *directory.Account {
	clone := *account
	clone.Roles = nil
	for role, usernames := range d.members {
		if slices.Contains(usernames, account.Username) {
			clone.Roles = append(clone.Roles, role)
		}
	}
	slices.Sort(clone.Roles)
	return &clone
}
