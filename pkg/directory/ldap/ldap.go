// Package ldap implements the directory gateway against an OpenLDAP tree
// laid out the geOrchestra way: user entries under ou=users, pending
// signups under ou=pendingusers, and roles as groupOfMembers entries under
// ou=roles holding full member DNs.
package ldap

import (
	"context"
	"fmt"
	"time"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/emmdurin/georchestra-gateway/internal/logger"
	"github.com/emmdurin/georchestra-gateway/pkg/directory"
)

// Config holds the LDAP connection and tree-layout settings.
type Config struct {
	// URL is the server address, e.g. "ldap://localhost:389".
	URL string `mapstructure:"url" yaml:"url"`

	// BindDN and Password authenticate the gateway's service account.
	BindDN   string `mapstructure:"bind_dn" yaml:"bind_dn"`
	Password string `mapstructure:"password" yaml:"password"`

	// BaseDN is the tree root, e.g. "dc=georchestra,dc=org".
	BaseDN string `mapstructure:"base_dn" yaml:"base_dn"`

	// UsersRDN is the relative DN of the active-users organizational unit.
	// Default: "ou=users"
	UsersRDN string `mapstructure:"users_rdn" yaml:"users_rdn"`

	// PendingRDN is the relative DN of the pending-signup organizational
	// unit. Accounts found there resolve with Pending set.
	// Default: "ou=pendingusers"
	PendingRDN string `mapstructure:"pending_rdn" yaml:"pending_rdn"`

	// RolesRDN is the relative DN of the roles organizational unit.
	// Default: "ou=roles"
	RolesRDN string `mapstructure:"roles_rdn" yaml:"roles_rdn"`

	// Timeout bounds each LDAP operation.
	// Default: 5s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

func (c *Config) applyDefaults() {
	if c.UsersRDN == "" {
		c.UsersRDN = "ou=users"
	}
	if c.PendingRDN == "" {
		c.PendingRDN = "ou=pendingusers"
	}
	if c.RolesRDN == "" {
		c.RolesRDN = "ou=roles"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
}

// Directory is an LDAP-backed directory gateway. Each operation dials a
// fresh connection, so one instance is safe to share across requests.
type Directory struct {
	config Config
}

// New creates an LDAP directory gateway and verifies the service bind.
func New(config Config) (*Directory, error) {
	config.applyDefaults()

	d := &Directory{config: config}
	conn, err := d.connect()
	if err != nil {
		return nil, fmt.Errorf("ldap directory unavailable: %w", err)
	}
	conn.Close()

	logger.Info("ldap directory connected",
		logger.KeyBackend, "ldap",
		"url", config.URL,
		"base_dn", config.BaseDN,
	)
	return d, nil
}

func (d *Directory) connect() (*goldap.Conn, error) {
	conn, err := goldap.DialURL(d.config.URL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", d.config.URL, err)
	}
	conn.SetTimeout(d.config.Timeout)
	if err := conn.Bind(d.config.BindDN, d.config.Password); err != nil {
		conn.Close()
		return nil, fmt.Errorf("binding as %s: %w", d.config.BindDN, err)
	}
	return conn, nil
}

func (d *Directory) usersDN() string   { return d.config.UsersRDN + "," + d.config.BaseDN }
func (d *Directory) pendingDN() string { return d.config.PendingRDN + "," + d.config.BaseDN }
func (d *Directory) rolesDN() string   { return d.config.RolesRDN + "," + d.config.BaseDN }

func (d *Directory) userDN(username string) string {
	return fmt.Sprintf("uid=%s,%s", goldap.EscapeDN(username), d.usersDN())
}

func (d *Directory) roleDN(name string) string {
	return fmt.Sprintf("cn=%s,%s", goldap.EscapeDN(name), d.rolesDN())
}

var accountAttributes = []string{
	"uid", "mail", "givenName", "sn", "o", "oauth2ProviderId", "entryUUID",
}

// FindByUsername searches the active and pending user trees for the uid.
func (d *Directory) FindByUsername(ctx context.Context, username string) (*directory.Account, error) {
	filter := fmt.Sprintf("(uid=%s)", goldap.EscapeFilter(username))
	return d.findAccount(ctx, filter)
}

// FindByOAuth2ProviderID searches by the external provider subject.
func (d *Directory) FindByOAuth2ProviderID(ctx context.Context, providerID string) (*directory.Account, error) {
	filter := fmt.Sprintf("(oauth2ProviderId=%s)", goldap.EscapeFilter(providerID))
	return d.findAccount(ctx, filter)
}

func (d *Directory) findAccount(ctx context.Context, filter string) (*directory.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := d.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	for _, base := range []struct {
		dn      string
		pending bool
	}{
		{d.usersDN(), false},
		{d.pendingDN(), true},
	} {
		entry, err := d.searchOne(conn, base.dn, filter, accountAttributes)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}
		account := accountFromEntry(entry, base.pending)
		account.Roles, err = d.rolesOf(conn, entry.DN)
		if err != nil {
			return nil, err
		}
		return account, nil
	}
	return nil, directory.ErrAccountNotFound
}

// searchOne returns the single entry matching filter under base, or nil
// when nothing matches.
func (d *Directory) searchOne(conn *goldap.Conn, base, filter string, attributes []string) (*goldap.Entry, error) {
	req := goldap.NewSearchRequest(
		base,
		goldap.ScopeWholeSubtree, goldap.NeverDerefAliases,
		2, int(d.config.Timeout.Seconds()), false,
		filter, attributes, nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		if goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject) {
			return nil, nil
		}
		return nil, fmt.Errorf("ldap search %s under %s: %w", filter, base, err)
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}
	return res.Entries[0], nil
}

// rolesOf lists the cn of every role entry holding dn as a member.
func (d *Directory) rolesOf(conn *goldap.Conn, dn string) ([]string, error) {
	req := goldap.NewSearchRequest(
		d.rolesDN(),
		goldap.ScopeWholeSubtree, goldap.NeverDerefAliases,
		0, int(d.config.Timeout.Seconds()), false,
		fmt.Sprintf("(member=%s)", goldap.EscapeFilter(dn)),
		[]string{"cn"}, nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		if goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject) {
			return nil, nil
		}
		return nil, fmt.Errorf("ldap membership search for %s: %w", dn, err)
	}
	roles := make([]string, 0, len(res.Entries))
	for _, entry := range res.Entries {
		roles = append(roles, entry.GetAttributeValue("cn"))
	}
	return roles, nil
}

func accountFromEntry(entry *goldap.Entry, pending bool) *directory.Account {
	return &directory.Account{
		UID:              entry.GetAttributeValue("entryUUID"),
		Username:         entry.GetAttributeValue("uid"),
		Email:            entry.GetAttributeValue("mail"),
		FirstName:        entry.GetAttributeValue("givenName"),
		LastName:         entry.GetAttributeValue("sn"),
		Organization:     entry.GetAttributeValue("o"),
		OAuth2ProviderID: entry.GetAttributeValue("oauth2ProviderId"),
		Pending:          pending,
	}
}

// InsertAccount adds the account under ou=users. The server's uid
// uniqueness surfaces as ErrDuplicateUsername; the email check runs first
// because mail carries no schema constraint.
func (d *Directory) InsertAccount(ctx context.Context, account *directory.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := d.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	if account.Email != "" {
		filter := fmt.Sprintf("(mail=%s)", goldap.EscapeFilter(account.Email))
		entry, err := d.searchOne(conn, d.usersDN(), filter, []string{"uid"})
		if err != nil {
			return err
		}
		if entry != nil {
			return directory.ErrDuplicateEmail
		}
	}

	req := goldap.NewAddRequest(d.userDN(account.Username), nil)
	req.Attribute("objectClass", []string{"top", "person", "organizationalPerson", "inetOrgPerson", "georchestraUser"})
	req.Attribute("uid", []string{account.Username})
	// sn and cn are mandatory for person entries; fall back to the username.
	req.Attribute("cn", []string{displayName(account)})
	req.Attribute("sn", []string{orDefault(account.LastName, account.Username)})
	if account.FirstName != "" {
		req.Attribute("givenName", []string{account.FirstName})
	}
	if account.Email != "" {
		req.Attribute("mail", []string{account.Email})
	}
	if account.Organization != "" {
		req.Attribute("o", []string{account.Organization})
	}
	if account.OAuth2ProviderID != "" {
		req.Attribute("oauth2ProviderId", []string{account.OAuth2ProviderID})
	}

	if err := conn.Add(req); err != nil {
		if goldap.IsErrorWithCode(err, goldap.LDAPResultEntryAlreadyExists) {
			return directory.ErrDuplicateUsername
		}
		return fmt.Errorf("ldap add account %s: %w", account.Username, err)
	}
	return nil
}

// DeleteAccount removes the account entry under ou=users.
func (d *Directory) DeleteAccount(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := d.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Del(goldap.NewDelRequest(d.userDN(username), nil)); err != nil {
		if goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject) {
			return directory.ErrAccountNotFound
		}
		return fmt.Errorf("ldap delete account %s: %w", username, err)
	}
	return nil
}

// FindRoleByName looks up the role entry by cn.
func (d *Directory) FindRoleByName(ctx context.Context, name string) (*directory.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := d.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	filter := fmt.Sprintf("(cn=%s)", goldap.EscapeFilter(name))
	entry, err := d.searchOne(conn, d.rolesDN(), filter, []string{"cn", "description"})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, directory.ErrRoleNotFound
	}
	return &directory.Role{
		Name:        entry.GetAttributeValue("cn"),
		Description: entry.GetAttributeValue("description"),
	}, nil
}

// CreateRole adds a groupOfMembers entry under ou=roles.
func (d *Directory) CreateRole(ctx context.Context, role *directory.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := d.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	req := goldap.NewAddRequest(d.roleDN(role.Name), nil)
	req.Attribute("objectClass", []string{"top", "groupOfMembers"})
	req.Attribute("cn", []string{role.Name})
	if role.Description != "" {
		req.Attribute("description", []string{role.Description})
	}

	if err := conn.Add(req); err != nil {
		if goldap.IsErrorWithCode(err, goldap.LDAPResultEntryAlreadyExists) {
			return directory.ErrDuplicateRole
		}
		return fmt.Errorf("ldap add role %s: %w", role.Name, err)
	}
	return nil
}

// AddUserToRole appends the user's DN to the role's member attribute.
// Re-adding an existing member is a no-op.
func (d *Directory) AddUserToRole(ctx context.Context, roleName, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := d.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	req := goldap.NewModifyRequest(d.roleDN(roleName), nil)
	req.Add("member", []string{d.userDN(username)})

	if err := conn.Modify(req); err != nil {
		switch {
		case goldap.IsErrorWithCode(err, goldap.LDAPResultAttributeOrValueExists):
			return nil
		case goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject):
			return directory.ErrRoleNotFound
		}
		return fmt.Errorf("ldap add %s to role %s: %w", username, roleName, err)
	}
	return nil
}

func displayName(account *directory.Account) string {
	if account.FirstName != "" && account.LastName != "" {
		return account.FirstName + " " + account.LastName
	}
	return account.Username
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
