// Package preauth implements the trusted-proxy pre-authentication path:
// resolving an identity from the sec-* request headers injected by an
// upstream proxy, and converting that header set into a pre-authenticated
// token for the rest of the security pipeline.
package preauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/emmdurin/georchestra-gateway/pkg/identity"
	"github.com/emmdurin/georchestra-gateway/pkg/security"
)

// Trusted pre-authentication headers. Header names are case-insensitive;
// these are the canonical spellings.
const (
	// PreauthHeader activates header resolution when its value is the
	// literal "true" (case-insensitive).
	PreauthHeader = "sec-georchestra-preauthenticated"

	HeaderUsername  = "sec-username"
	HeaderEmail     = "sec-email"
	HeaderFirstName = "sec-firstname"
	HeaderLastName  = "sec-lastname"
	HeaderOrg       = "sec-org"
)

// ErrMissingUsername is returned when the pre-auth flag is set but the
// username header is blank. The trusted-proxy contract requires the
// username whenever the flag is present, so this is fatal to the request.
var ErrMissingUsername = errors.New("pre-authenticated request headers provided without a username")

// IsPreAuthenticated reports whether the request carries the pre-auth flag
// header with the literal truthy value.
func IsPreAuthenticated(headers http.Header) bool {
	return strings.EqualFold(headers.Get(PreauthHeader), "true")
}

// FromHeaders maps the five fixed pre-auth headers into a new identity
// carrying the single default role. It does not check the flag header nor
// validate the username; callers do both.
func FromHeaders(headers http.Header) *identity.Identity {
	return &identity.Identity{
		Username:     headers.Get(HeaderUsername),
		Email:        headers.Get(HeaderEmail),
		FirstName:    headers.Get(HeaderFirstName),
		LastName:     headers.Get(HeaderLastName),
		Organization: headers.Get(HeaderOrg),
		Roles:        []string{identity.DefaultRole},
	}
}

// HeaderResolver resolves an identity from the trusted pre-auth headers.
//
// It activates only when the pre-auth flag header is present with the
// literal truthy value; a blank username with the flag set is a fatal
// contract violation, never a silent empty result.
type HeaderResolver struct{}

// NewHeaderResolver creates a HeaderResolver.
func NewHeaderResolver() *HeaderResolver { return &HeaderResolver{} }

func (r *HeaderResolver) Kind() security.SignalKind { return security.KindHeaders }

func (r *HeaderResolver) Resolve(_ context.Context, sig *security.Signal) (*identity.Identity, error) {
	if !IsPreAuthenticated(sig.Headers) {
		return nil, nil
	}
	user := FromHeaders(sig.Headers)
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("resolving pre-authenticated headers: %w", ErrMissingUsername)
	}
	return user, nil
}

// Convert turns a pre-authenticated header set into a pre-authenticated
// token whose credential payload is the mapped identity. Returns (nil, nil)
// when the flag header is absent, and ErrMissingUsername when the flag is
// set without a username.
func Convert(headers http.Header) (*security.PreAuthenticatedToken, error) {
	if !IsPreAuthenticated(headers) {
		return nil, nil
	}
	user := FromHeaders(headers)
	if err := user.Validate(); err != nil {
		return nil, ErrMissingUsername
	}
	return &security.PreAuthenticatedToken{
		Principal:   user.Username,
		Credentials: user,
	}, nil
}
