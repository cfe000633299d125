package engine

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rowapi/rowapi/pkg/apierr"
)

// Authenticator verifies bearer tokens for routes that require auth.
// Tokens are HMAC-signed JWTs; expiry and signature are checked, claims
// beyond that are the caller's business.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator with the given signing secret.
// Returns nil for an empty secret so callers can wire "auth disabled"
// through a nil check.
func NewAuthenticator(secret string) *Authenticator {
	if secret == "" {
		return nil
	}
	return &Authenticator{secret: []byte(secret)}
}

// Verify checks the Authorization header of the request.
func (a *Authenticator) Verify(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if header == "" {
		return apierr.Unauthorized("missing bearer token")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return apierr.Unauthorized("malformed authorization header")
	}

	_, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return apierr.Unauthorized("invalid token")
	}
	return nil
}
