// Package security implements the gateway's identity-resolution layer: the
// per-request identity store, the resolver strategies that extract an
// identity from one specific request signal, and the mapper that tries them
// in trust-precedence order.
package security

import (
	"github.com/emmdurin/georchestra-gateway/pkg/identity"
)

// SignalKind discriminates the authentication signals a resolver can
// consume. Dispatch is by this explicit tag, never by runtime type
// inspection of the authentication object.
type SignalKind int

const (
	// KindToken is a security-framework authentication object, e.g. a
	// pre-authenticated token minted earlier in the pipeline.
	KindToken SignalKind = iota

	// KindHeaders is the set of trusted headers injected by an upstream
	// proxy.
	KindHeaders
)

func (k SignalKind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindHeaders:
		return "headers"
	default:
		return "unknown"
	}
}

// Authentication is the gateway's view of a security-framework
// authentication object. It is opaque except for its signal kind and, for
// pre-authenticated tokens, the embedded identity credential.
type Authentication interface {
	// AuthKind returns the signal kind this authentication carries.
	AuthKind() SignalKind

	// PrincipalName returns the authenticated principal's name.
	PrincipalName() string
}

// PreAuthenticatedToken is an Authentication whose credential payload is an
// identity already verified upstream. It is the one authentication kind the
// token resolver understands.
type PreAuthenticatedToken struct {
	// Principal is the authenticated username.
	Principal string

	// Credentials is the embedded identity minted when the token was
	// created.
	Credentials *identity.Identity
}

func (t *PreAuthenticatedToken) AuthKind() SignalKind { return KindToken }

func (t *PreAuthenticatedToken) PrincipalName() string { return t.Principal }
