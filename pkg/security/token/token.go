// Package token provides JWT-backed gateway session tokens. An upstream
// authentication service mints a token embedding the verified identity;
// the gateway validates it and hands the embedded identity to the token
// resolver as a pre-authenticated credential.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/emmdurin/georchestra-gateway/pkg/identity"
	"github.com/emmdurin/georchestra-gateway/pkg/security"
)

// Common errors for token operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("token secret must be at least 32 characters")
)

// Claims are the JWT claims carrying an embedded gateway identity.
type Claims struct {
	jwt.RegisteredClaims

	// Username is the unique directory key. Mirrors the Subject claim.
	Username string `json:"username"`

	// Email is the user's email address.
	Email string `json:"email,omitempty"`

	// FirstName is the user's given name.
	FirstName string `json:"first_name,omitempty"`

	// LastName is the user's family name.
	LastName string `json:"last_name,omitempty"`

	// Organization is the user's organization short name.
	Organization string `json:"org,omitempty"`

	// Roles is the canonical prefixed role set.
	Roles []string `json:"roles,omitempty"`

	// OAuth2ProviderID is the external provider subject, when the identity
	// originated from an OAuth2 login.
	OAuth2ProviderID string `json:"oauth2_provider_id,omitempty"`
}

// Identity rebuilds the embedded identity from the claims.
func (c *Claims) Identity() *identity.Identity {
	return &identity.Identity{
		Username:         c.Username,
		Email:            c.Email,
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		Organization:     c.Organization,
		Roles:            identity.NormalizeRoles(c.Roles),
		OAuth2ProviderID: c.OAuth2ProviderID,
	}
}

// Config holds configuration for token minting and validation.
type Config struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "georchestra-gateway".
	Issuer string

	// Duration is the token lifetime. Default: 8 hours.
	Duration time.Duration
}

// Service mints and validates gateway session tokens.
type Service struct {
	config Config
}

// NewService creates a token service with the given configuration.
func NewService(config Config) (*Service, error) {
	if len(config.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if config.Issuer == "" {
		config.Issuer = "georchestra-gateway"
	}
	if config.Duration == 0 {
		config.Duration = 8 * time.Hour
	}
	return &Service{config: config}, nil
}

// Mint creates a signed token embedding the given identity.
func (s *Service) Mint(user *identity.Identity) (string, error) {
	if err := user.Validate(); err != nil {
		return "", err
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.Duration)),
		},
		Username:         user.Username,
		Email:            user.Email,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		Organization:     user.Organization,
		Roles:            identity.NormalizeRoles(user.Roles),
		OAuth2ProviderID: user.OAuth2ProviderID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}

// Validate parses and verifies a token string and returns its claims.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate validates the token string and returns a pre-authenticated
// token carrying the embedded identity, the authentication object the
// security pipeline consumes.
func (s *Service) Authenticate(tokenString string) (*security.PreAuthenticatedToken, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	user := claims.Identity()
	if err := user.Validate(); err != nil {
		return nil, ErrInvalidToken
	}
	return &security.PreAuthenticatedToken{
		Principal:   user.Username,
		Credentials: user,
	}, nil
}
