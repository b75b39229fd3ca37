package token

import (
	"net/http"
	"strings"

	"github.com/emmdurin/georchestra-gateway/pkg/security"
)

const bearerPrefix = "Bearer "

// BearerAuthenticator extracts a gateway session token from the request's
// Authorization header and validates it. Requests without a bearer token
// pass through as anonymous; a present but invalid token is an error.
type BearerAuthenticator struct {
	service *Service
}

// NewBearerAuthenticator creates a bearer-token request authenticator.
func NewBearerAuthenticator(service *Service) *BearerAuthenticator {
	return &BearerAuthenticator{service: service}
}

// Authenticate returns the authentication carried by the request's bearer
// token, or (nil, nil) when the request carries none.
func (a *BearerAuthenticator) Authenticate(r *http.Request) (security.Authentication, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return nil, nil
	}
	auth, err := a.service.Authenticate(strings.TrimSpace(header[len(bearerPrefix):]))
	if err != nil {
		return nil, err
	}
	return auth, nil
}
