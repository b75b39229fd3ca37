// Package gateway assembles the per-request identity-resolution pipeline:
// an ordered chain of stages that resolve the user from the request's
// authentication or trusted pre-auth headers, provision missing directory
// accounts, and leave the canonical identity in the request context for
// downstream header-injection collaborators.
package gateway

import (
	"errors"
	"net/http"
	"sort"

	"github.com/emmdurin/georchestra-gateway/internal/logger"
	"github.com/emmdurin/georchestra-gateway/pkg/accounts"
	"github.com/emmdurin/georchestra-gateway/pkg/security"
	"github.com/emmdurin/georchestra-gateway/pkg/security/preauth"
)

// Stage precedence. The chain is built sorted by these values, never by
// registration order: the ordering encodes which identity source wins and
// must stay stable.
const (
	orderResolvePrincipal = 100
	orderResolveHeaders   = 200
	orderProvision        = 300
)

// Authenticator turns an inbound request into a security-framework
// authentication object, or (nil, nil) for anonymous requests.
type Authenticator interface {
	Authenticate(r *http.Request) (security.Authentication, error)
}

// Metrics counts pipeline outcomes. A nil Metrics disables counting.
type Metrics interface {
	// IdentityResolved counts one stored identity by source
	// ("token", "headers", "directory").
	IdentityResolved(source string)
	// ResolutionFailed counts one request aborted by the pipeline.
	ResolutionFailed()
}

// PipelineConfig holds the per-deployment switches the pipeline reads.
type PipelineConfig struct {
	// PreauthEnabled trusts the sec-georchestra-preauthenticated header
	// path. When false the header stage is inert.
	PreauthEnabled bool

	// CreateNonExistingAccounts provisions directory accounts for
	// pre-authenticated users that have none yet.
	CreateNonExistingAccounts bool
}

// Pipeline owns the ordered stage chain. Build one at startup and mount
// Handler in front of the proxy routes; the pipeline itself holds no
// per-request state.
type Pipeline struct {
	config        PipelineConfig
	authenticator Authenticator // nil when no token authentication is configured
	mapper        *security.Mapper
	headers       *preauth.HeaderResolver
	accounts      *accounts.Manager
	metrics       Metrics
}

// NewPipeline creates the resolution pipeline. The mapper must be
// configured with the token resolver ahead of the header resolver so the
// verified identity wins; NewDefaultMapper does that.
func NewPipeline(config PipelineConfig, authenticator Authenticator, mapper *security.Mapper, manager *accounts.Manager, metrics Metrics) *Pipeline {
	return &Pipeline{
		config:        config,
		authenticator: authenticator,
		mapper:        mapper,
		headers:       preauth.NewHeaderResolver(),
		accounts:      manager,
		metrics:       metrics,
	}
}

// NewDefaultMapper returns the mapper with the canonical trust precedence:
// pre-authenticated token first, trusted proxy headers second.
func NewDefaultMapper() *security.Mapper {
	return security.NewMapper(security.NewTokenResolver(), preauth.NewHeaderResolver())
}

// stage is one pipeline step with its fixed precedence.
type stage struct {
	name       string
	order      int
	middleware func(http.Handler) http.Handler
}

// stages returns the stage table sorted by precedence.
func (p *Pipeline) stages() []stage {
	table := []stage{
		{"resolve-from-principal", orderResolvePrincipal, p.resolveFromPrincipal},
		{"resolve-from-headers", orderResolveHeaders, p.resolveFromHeaders},
		{"provision-account", orderProvision, p.provisionAccount},
	}
	sort.SliceStable(table, func(i, j int) bool { return table[i].order < table[j].order })
	return table
}

// Handler wraps next with the full resolution chain. A fresh identity slot
// is installed at entry and dropped with the request; next runs with the
// resolved identity (if any) readable through security.Resolve.
func (p *Pipeline) Handler(next http.Handler) http.Handler {
	chain := next
	ordered := p.stages()
	for i := len(ordered) - 1; i >= 0; i-- {
		chain = ordered[i].middleware(chain)
	}
	entry := chain
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := security.WithIdentityHolder(r.Context())
		entry.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveFromPrincipal runs the identity mapper against the request's
// authentication object. An empty result is not an error: the request
// continues with the slot empty. The inbound headers are part of the
// signal only when the pre-auth path is enabled; otherwise sec-* headers
// from untrusted clients never reach a resolver.
func (p *Pipeline) resolveFromPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, err := p.authenticate(r)
		if err != nil {
			// A blank username with the pre-auth flag set is a broken
			// trusted-proxy contract, surfaced as a server error.
			status := http.StatusUnauthorized
			if errors.Is(err, preauth.ErrMissingUsername) {
				status = http.StatusInternalServerError
			}
			p.fail(w, r, status, err)
			return
		}

		sig := &security.Signal{Authentication: auth}
		if p.config.PreauthEnabled {
			sig.Headers = r.Header
		}
		user, err := p.mapper.Resolve(r.Context(), sig)
		if err != nil {
			p.fail(w, r, http.StatusInternalServerError, err)
			return
		}
		if user != nil {
			// Every resolver consumes an authentication signal, so a
			// resolved user implies a non-nil auth.
			security.Store(r.Context(), user)
			source := auth.AuthKind().String()
			p.resolved(source)
			logger.DebugCtx(r.Context(), "resolved user from principal",
				logger.KeyUsername, user.Username,
				logger.KeyAuthSource, source,
			)
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate extracts the authentication object, if any. The pre-auth
// header set converts to a pre-authenticated token; a configured
// authenticator (e.g. bearer tokens) takes precedence over it.
func (p *Pipeline) authenticate(r *http.Request) (security.Authentication, error) {
	if p.authenticator != nil {
		auth, err := p.authenticator.Authenticate(r)
		if err != nil || auth != nil {
			return auth, err
		}
	}
	if !p.config.PreauthEnabled {
		return nil, nil
	}
	tok, err := preauth.Convert(r.Header)
	if err != nil || tok == nil {
		return nil, err
	}
	return tok, nil
}

// resolveFromHeaders runs only the header resolver. When the pre-auth flag
// is set the result overwrites the slot unconditionally: headers are
// authoritative for the pre-auth path. A blank username with the flag set
// aborts the request.
func (p *Pipeline) resolveFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.config.PreauthEnabled {
			next.ServeHTTP(w, r)
			return
		}

		sig := &security.Signal{Headers: r.Header}
		user, err := p.headers.Resolve(r.Context(), sig)
		if err != nil {
			p.fail(w, r, http.StatusInternalServerError, err)
			return
		}
		if user != nil {
			security.Store(r.Context(), user)
			p.resolved("headers")
			logger.DebugCtx(r.Context(), "resolved pre-authenticated user from headers",
				logger.KeyUsername, user.Username,
			)
		}
		next.ServeHTTP(w, r)
	})
}

// provisionAccount replaces the stored identity with its canonical
// directory copy, creating the account when missing. Runs only for
// pre-authenticated requests and only when auto-creation is enabled.
func (p *Pipeline) provisionAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.config.PreauthEnabled || !p.config.CreateNonExistingAccounts || !preauth.IsPreAuthenticated(r.Header) {
			next.ServeHTTP(w, r)
			return
		}

		user, ok := security.Resolve(r.Context())
		if !ok {
			// The header stage stores or aborts whenever the flag is set, so
			// an empty slot here means the chain was assembled wrong.
			p.fail(w, r, http.StatusInternalServerError, errors.New("pre-authenticated request reached provisioning with no identity"))
			return
		}

		canonical, err := p.accounts.GetOrCreate(r.Context(), user)
		if err != nil {
			p.fail(w, r, http.StatusInternalServerError, err)
			return
		}
		security.Store(r.Context(), canonical)
		p.resolved("directory")
		next.ServeHTTP(w, r)
	})
}

// fail aborts the request. Fatal conditions never degrade to an anonymous
// or partial identity: the whole request fails with the error surfaced.
func (p *Pipeline) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if p.metrics != nil {
		p.metrics.ResolutionFailed()
	}
	logger.ErrorCtx(r.Context(), "identity resolution failed",
		logger.KeyPath, r.URL.Path,
		logger.Err(err),
	)
	http.Error(w, http.StatusText(status), status)
}

func (p *Pipeline) resolved(source string) {
	if p.metrics != nil {
		p.metrics.IdentityResolved(source)
	}
}
