package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmdurin/georchestra-gateway/pkg/directory"
)

func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := New()

	_, err := dir.FindByUsername(ctx, "pmartin")
	assert.ErrorIs(t, err, directory.ErrAccountNotFound)

	account := &directory.Account{
		Username:     "pmartin",
		Email:        "pierre.martin@example.org",
		FirstName:    "Pierre",
		LastName:     "Martin",
		Organization: "C2C",
	}
	require.NoError(t, dir.InsertAccount(ctx, account))

	found, err := dir.FindByUsername(ctx, "pmartin")
	require.NoError(t, err)
	assert.Equal(t, "pmartin", found.Username)
	assert.Equal(t, "C2C", found.Organization)
	assert.NotEmpty(t, found.UID)
	assert.Empty(t, found.Roles)

	require.NoError(t, dir.DeleteAccount(ctx, "pmartin"))
	_, err = dir.FindByUsername(ctx, "pmartin")
	assert.ErrorIs(t, err, directory.ErrAccountNotFound)
}

func TestInsertDuplicates(t *testing.T) {
	ctx := context.Background()
	dir := New()

	require.NoError(t, dir.InsertAccount(ctx, &directory.Account{
		Username: "pmartin",
		Email:    "pierre.martin@example.org",
	}))

	err := dir.InsertAccount(ctx, &directory.Account{Username: "pmartin"})
	assert.ErrorIs(t, err, directory.ErrDuplicateUsername)

	err = dir.InsertAccount(ctx, &directory.Account{
		Username: "pmartin2",
		Email:    "Pierre.Martin@example.org", // email compare is case-insensitive
	})
	assert.ErrorIs(t, err, directory.ErrDuplicateEmail)
}

func TestFindByOAuth2ProviderID(t *testing.T) {
	ctx := context.Background()
	dir := New()

	require.NoError(t, dir.InsertAccount(ctx, &directory.Account{
		Username:         "alice",
		OAuth2ProviderID: "google;1234",
	}))
	require.NoError(t, dir.InsertAccount(ctx, &directory.Account{Username: "bob"}))

	found, err := dir.FindByOAuth2ProviderID(ctx, "google;1234")
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)

	_, err = dir.FindByOAuth2ProviderID(ctx, "google;9999")
	assert.ErrorIs(t, err, directory.ErrAccountNotFound)

	// accounts without a provider id never match the empty key
	_, err = dir.FindByOAuth2ProviderID(ctx, "")
	assert.ErrorIs(t, err, directory.ErrAccountNotFound)
}

func TestRolesAndMembership(t *testing.T) {
	ctx := context.Background()
	dir := New()

	_, err := dir.FindRoleByName(ctx, "USER")
	assert.ErrorIs(t, err, directory.ErrRoleNotFound)

	require.NoError(t, dir.CreateRole(ctx, &directory.Role{Name: "USER"}))
	err = dir.CreateRole(ctx, &directory.Role{Name: "USER"})
	assert.ErrorIs(t, err, directory.ErrDuplicateRole)

	require.NoError(t, dir.InsertAccount(ctx, &directory.Account{Username: "pmartin"}))

	// both sides must exist
	err = dir.AddUserToRole(ctx, "ADMIN", "pmartin")
	assert.ErrorIs(t, err, directory.ErrRoleNotFound)
	err = dir.AddUserToRole(ctx, "USER", "ghost")
	assert.ErrorIs(t, err, directory.ErrAccountNotFound)

	require.NoError(t, dir.AddUserToRole(ctx, "USER", "pmartin"))
	// adding an existing member is not an error
	require.NoError(t, dir.AddUserToRole(ctx, "USER", "pmartin"))

	found, err := dir.FindByUsername(ctx, "pmartin")
	require.NoError(t, err)
	assert.Equal(t, []string{"USER"}, found.Roles)
}

func TestDeleteAccountRemovesMembership(t *testing.T) {
	ctx := context.Background()
	dir := New()

	require.NoError(t, dir.CreateRole(ctx, &directory.Role{Name: "USER"}))
	require.NoError(t, dir.InsertAccount(ctx, &directory.Account{Username: "pmartin"}))
	require.NoError(t, dir.AddUserToRole(ctx, "USER", "pmartin"))

	require.NoError(t, dir.DeleteAccount(ctx, "pmartin"))

	// re-inserting the same username starts with empty membership
	require.NoError(t, dir.InsertAccount(ctx, &directory.Account{Username: "pmartin"}))
	found, err := dir.FindByUsername(ctx, "pmartin")
	require.NoError(t, err)
	assert.Empty(t, found.Roles)
}

func TestIsNotFound(t *testing.T) {
	ctx := context.Background()
	dir := New()

	_, err := dir.FindByUsername(ctx, "nobody")
	assert.True(t, directory.IsNotFound(err))

	_, err = dir.FindRoleByName(ctx, "NOBODY")
	assert.True(t, directory.IsNotFound(err))

	assert.False(t, directory.IsNotFound(directory.ErrDuplicateRole))
	assert.False(t, directory.IsNotFound(nil))
}
