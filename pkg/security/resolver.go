package security

import (
	"context"
	"net/http"

	"github.com/emmdurin/georchestra-gateway/pkg/identity"
)

// Signal carries the per-request inputs a resolver may consume: the
// security-framework authentication object (if any) and the raw inbound
// headers.
type Signal struct {
	Authentication Authentication // nil for anonymous requests
	Headers        http.Header
}

// Resolver attempts to produce an identity from one specific signal kind.
//
// A resolver returns (nil, nil) when its signal is absent or inapplicable;
// a non-nil error aborts resolution and must surface to the caller.
type Resolver interface {
	// Kind declares the signal kind this resolver accepts.
	Kind() SignalKind

	// Resolve extracts an identity from the signal, or returns (nil, nil)
	// when the signal doesn't apply.
	Resolve(ctx context.Context, sig *Signal) (*identity.Identity, error)
}

// TokenResolver extracts the identity embedded in a pre-authenticated
// token's credential payload. Any other authentication kind resolves empty.
type TokenResolver struct{}

// NewTokenResolver creates a TokenResolver.
func NewTokenResolver() *TokenResolver { return &TokenResolver{} }

func (r *TokenResolver) Kind() SignalKind { return KindToken }

func (r *TokenResolver) Resolve(_ context.Context, sig *Signal) (*identity.Identity, error) {
	if sig.Authentication == nil || sig.Authentication.AuthKind() != KindToken {
		return nil, nil
	}
	token, ok := sig.Authentication.(*PreAuthenticatedToken)
	if !ok || token.Credentials == nil {
		return nil, nil
	}
	return token.Credentials.Clone(), nil
}

// Mapper tries the configured resolvers in a fixed, deterministic order and
// returns the first non-empty result. The order encodes trust precedence:
// a verified token identity wins over raw proxy headers, so the token
// resolver is configured first.
type Mapper struct {
	resolvers []Resolver
}

// NewMapper creates a Mapper trying the given resolvers in order.
func NewMapper(resolvers ...Resolver) *Mapper {
	return &Mapper{resolvers: resolvers}
}

// Resolve returns the first non-empty resolver result, or (nil, nil) when
// every resolver returns empty (an anonymous request). Resolver errors
// abort immediately.
func (m *Mapper) Resolve(ctx context.Context, sig *Signal) (*identity.Identity, error) {
	for _, resolver := range m.resolvers {
		user, err := resolver.Resolve(ctx, sig)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}
	return nil, nil
}
