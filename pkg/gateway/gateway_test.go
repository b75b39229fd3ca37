package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmdurin/georchestra-gateway/pkg/accounts"
	"github.com/emmdurin/georchestra-gateway/pkg/directory"
	"github.com/emmdurin/georchestra-gateway/pkg/directory/memory"
	"github.com/emmdurin/georchestra-gateway/pkg/events"
	"github.com/emmdurin/georchestra-gateway/pkg/identity"
	"github.com/emmdurin/georchestra-gateway/pkg/security"
	"github.com/emmdurin/georchestra-gateway/pkg/security/preauth"
	"github.com/emmdurin/georchestra-gateway/pkg/security/token"
)

// recordingSink captures published events for assertions.
type recordingSink struct {
	published []events.AccountCreated
}

func (s *recordingSink) Publish(_ context.Context, event events.AccountCreated) error {
	s.published = append(s.published, event)
	return nil
}

// capturingDownstream records the identity each forwarded request carried.
type capturingDownstream struct {
	calls []*identity.Identity
}

func (d *capturingDownstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := security.Resolve(r.Context())
	if !ok {
		user = nil
	}
	d.calls = append(d.calls, user)
	w.WriteHeader(http.StatusOK)
}

type fixture struct {
	dir        *memory.Directory
	sink       *recordingSink
	downstream *capturingDownstream
	handler    http.Handler
}

func newFixture(t *testing.T, config PipelineConfig, authenticator Authenticator) *fixture {
	t.Helper()

	f := &fixture{
		dir:        memory.New(),
		sink:       &recordingSink{},
		downstream: &capturingDownstream{},
	}
	manager := accounts.NewManager(f.dir, f.sink, nil)
	pipeline := NewPipeline(config, authenticator, NewDefaultMapper(), manager, nil)
	f.handler = pipeline.Handler(f.downstream)
	return f
}

func preauthRequest(username string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/geoserver/wms", nil)
	req.Header.Set(preauth.PreauthHeader, "true")
	req.Header.Set(preauth.HeaderUsername, username)
	req.Header.Set(preauth.HeaderEmail, username+"@example.org")
	req.Header.Set(preauth.HeaderFirstName, "Pierre")
	req.Header.Set(preauth.HeaderLastName, "Martin")
	req.Header.Set(preauth.HeaderOrg, "C2C")
	return req
}

func TestPipelineProvisionsNewPreauthenticatedUser(t *testing.T) {
	f := newFixture(t, PipelineConfig{PreauthEnabled: true, CreateNonExistingAccounts: true}, nil)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, preauthRequest("pmartin"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.downstream.calls, 1)

	user := f.downstream.calls[0]
	require.NotNil(t, user)
	assert.Equal(t, "pmartin", user.Username)
	assert.Equal(t, "pmartin@example.org", user.Email)
	assert.Equal(t, "C2C", user.Organization)
	assert.Equal(t, []string{identity.DefaultRole}, user.Roles)

	account, err := f.dir.FindByUsername(context.Background(), "pmartin")
	require.NoError(t, err)
	assert.False(t, account.Pending)
	assert.Equal(t, []string{"USER"}, account.Roles)

	require.Len(t, f.sink.published, 1)
	assert.Equal(t, "pmartin", f.sink.published[0].Username)
}

func TestPipelineReusesExistingAccount(t *testing.T) {
	f := newFixture(t, PipelineConfig{PreauthEnabled: true, CreateNonExistingAccounts: true}, nil)

	ctx := context.Background()
	require.NoError(t, f.dir.InsertAccount(ctx, &directory.Account{
		Username: "pmartin",
		Email:    "pmartin@example.org",
	}))
	require.NoError(t, f.dir.CreateRole(ctx, &directory.Role{Name: "USER"}))
	require.NoError(t, f.dir.CreateRole(ctx, &directory.Role{Name: "GN_EDITOR"}))
	require.NoError(t, f.dir.AddUserToRole(ctx, "USER", "pmartin"))
	require.NoError(t, f.dir.AddUserToRole(ctx, "GN_EDITOR", "pmartin"))

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, preauthRequest("pmartin"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.downstream.calls, 1)

	user := f.downstream.calls[0]
	require.NotNil(t, user)
	assert.ElementsMatch(t, []string{"ROLE_USER", "ROLE_GN_EDITOR"}, user.Roles)

	assert.Empty(t, f.sink.published, "existing accounts must not republish creation events")
}

func TestPipelineTokenIdentityWithoutPreauth(t *testing.T) {
	service, err := token.NewService(token.Config{Secret: "test-secret-test-secret-test-secret!"})
	require.NoError(t, err)

	f := newFixture(t, PipelineConfig{PreauthEnabled: false}, token.NewBearerAuthenticator(service))

	signed, err := service.Mint(&identity.Identity{
		Username: "jdoe",
		Email:    "jdoe@example.org",
		Roles:    []string{"ROLE_ADMIN"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/console", nil)
	req.Header.Set("Authorization", "Bearer "+signed)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.downstream.calls, 1)

	user := f.downstream.calls[0]
	require.NotNil(t, user)
	assert.Equal(t, "jdoe", user.Username)
	assert.Contains(t, user.Roles, "ROLE_ADMIN")

	_, err = f.dir.FindByUsername(context.Background(), "jdoe")
	assert.ErrorIs(t, err, directory.ErrAccountNotFound, "no provisioning without the pre-auth flag")
}

func TestPipelineHeadersOverrideTokenIdentity(t *testing.T) {
	service, err := token.NewService(token.Config{Secret: "test-secret-test-secret-test-secret!"})
	require.NoError(t, err)

	f := newFixture(t,
		PipelineConfig{PreauthEnabled: true, CreateNonExistingAccounts: true},
		token.NewBearerAuthenticator(service),
	)

	signed, err := service.Mint(&identity.Identity{Username: "jdoe"})
	require.NoError(t, err)

	req := preauthRequest("pmartin")
	req.Header.Set("Authorization", "Bearer "+signed)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.downstream.calls, 1)

	user := f.downstream.calls[0]
	require.NotNil(t, user)
	assert.Equal(t, "pmartin", user.Username, "trusted proxy headers win for pre-authenticated requests")
}

func TestPipelineInvalidTokenRejected(t *testing.T) {
	service, err := token.NewService(token.Config{Secret: "test-secret-test-secret-test-secret!"})
	require.NoError(t, err)

	f := newFixture(t, PipelineConfig{}, token.NewBearerAuthenticator(service))

	req := httptest.NewRequest(http.MethodGet, "/console", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.downstream.calls)
}

func TestPipelineBlankUsernameWithFlagIsFatal(t *testing.T) {
	f := newFixture(t, PipelineConfig{PreauthEnabled: true, CreateNonExistingAccounts: true}, nil)

	req := preauthRequest("")
	req.Header.Del(preauth.HeaderUsername)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.downstream.calls, "fatal resolution errors must never forward the request")
	assert.Empty(t, f.sink.published)
}

func TestPipelineAnonymousRequestPassesThrough(t *testing.T) {
	f := newFixture(t, PipelineConfig{PreauthEnabled: true, CreateNonExistingAccounts: true}, nil)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/geonetwork", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.downstream.calls, 1)
	assert.Nil(t, f.downstream.calls[0])
	assert.Empty(t, f.sink.published)
}

func TestPipelinePreauthDisabledIgnoresHeaders(t *testing.T) {
	f := newFixture(t, PipelineConfig{PreauthEnabled: false, CreateNonExistingAccounts: true}, nil)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, preauthRequest("pmartin"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.downstream.calls, 1)
	assert.Nil(t, f.downstream.calls[0])

	_, err := f.dir.FindByUsername(context.Background(), "pmartin")
	assert.ErrorIs(t, err, directory.ErrAccountNotFound)
}

func TestPipelineProvisioningDisabledKeepsHeaderIdentity(t *testing.T) {
	f := newFixture(t, PipelineConfig{PreauthEnabled: true, CreateNonExistingAccounts: false}, nil)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, preauthRequest("pmartin"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.downstream.calls, 1)

	user := f.downstream.calls[0]
	require.NotNil(t, user)
	assert.Equal(t, "pmartin", user.Username)

	_, err := f.dir.FindByUsername(context.Background(), "pmartin")
	assert.ErrorIs(t, err, directory.ErrAccountNotFound)
}

func TestRouterHealthBypassesResolution(t *testing.T) {
	f := newFixture(t, PipelineConfig{PreauthEnabled: true, CreateNonExistingAccounts: true}, nil)

	manager := accounts.NewManager(f.dir, f.sink, nil)
	pipeline := NewPipeline(PipelineConfig{PreauthEnabled: true, CreateNonExistingAccounts: true}, nil, NewDefaultMapper(), manager, nil)
	router := NewRouter(ServerConfig{RequestTimeout: 5 * time.Second}, pipeline, f.downstream)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Empty(t, f.downstream.calls)
}

func TestRouterForwardsThroughPipeline(t *testing.T) {
	f := newFixture(t, PipelineConfig{PreauthEnabled: true, CreateNonExistingAccounts: true}, nil)

	manager := accounts.NewManager(f.dir, f.sink, nil)
	pipeline := NewPipeline(PipelineConfig{PreauthEnabled: true, CreateNonExistingAccounts: true}, nil, NewDefaultMapper(), manager, nil)
	router := NewRouter(ServerConfig{RequestTimeout: 5 * time.Second}, pipeline, f.downstream)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, preauthRequest("pmartin"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.downstream.calls, 1)
	require.NotNil(t, f.downstream.calls[0])
	assert.Equal(t, "pmartin", f.downstream.calls[0].Username)
}
