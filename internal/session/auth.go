package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chtrembl/petstoreapp/internal/requestctx"
)

const (
	// GuestUser is the name given to callers without a valid token.
	GuestUser = "Guest"
	// AuthTypeAnonymous marks callers without a valid token.
	AuthTypeAnonymous = "Anonymous"
	// AuthTypeExternal marks callers authenticated with a bearer token.
	AuthTypeExternal = "OAuth2-ExternalID"

	bearerPrefix = "Bearer "
)

var (
	// ErrNoToken is returned when the request carries no bearer token.
	ErrNoToken = errors.New("no bearer token")
	// ErrInvalidToken is returned when the bearer token cannot be verified.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims are the token claims that describe the user.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an Authenticator for tokens signed with secret.
// Without a secret every token is rejected.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(strings.TrimSpace(secret))}
}

// Guest returns the user assumed for unauthenticated callers.
func Guest() requestctx.User {
	return requestctx.User{Name: GuestUser, AuthType: AuthTypeAnonymous}
}

// Authenticate resolves the user of r. The guest user is returned together
// with the error when no valid token is present.
func (a *Authenticator) Authenticate(r *http.Request) (requestctx.User, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return Guest(), ErrNoToken
	}

	claims, err := a.parse(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
	if err != nil {
		return Guest(), err
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}

	return requestctx.User{
		Name:          name,
		Email:         claims.Email,
		AuthType:      AuthTypeExternal,
		Authenticated: true,
	}, nil
}

func (a *Authenticator) parse(tokenString string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, fmt.Errorf("%w: no secret configured", ErrInvalidToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !token.Valid || (claims.Name == "" && claims.Subject == "") {
		return nil, fmt.Errorf("%w: no user in claims", ErrInvalidToken)
	}

	return claims, nil
}
