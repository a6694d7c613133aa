package insights

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magicmac/myday/internal/supabase"
)

// ErrInvalidToken is returned when a bearer token cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// UserResolver looks up the user that owns an access token.
type UserResolver interface {
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
}

// Verifier resolves bearer tokens to user ids.
//
// With a JWT secret the token is checked locally (HS256, expiry, subject).
// Without one every token is checked against the auth server.
type Verifier struct {
	secret []byte
	users  UserResolver
}

// NewVerifier creates a Verifier. secret may be empty.
func NewVerifier(secret string, users UserResolver) *Verifier {
	v := &Verifier{users: users}
	if s := strings.TrimSpace(secret); s != "" {
		v.secret = []byte(s)
	}
	return v
}

// Verify returns the user id the token was issued to.
func (v *Verifier) Verify(ctx context.Context, token string) (string, error) {
	if v.secret != nil {
		return v.verifyLocal(token)
	}
	if v.users == nil {
		return "", fmt.Errorf("%w: no verifier configured", ErrInvalidToken)
	}
	user, err := v.users.GetUser(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return user.ID, nil
}

func (v *Verifier) verifyLocal(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. It returns "" when the header has another form.
func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
