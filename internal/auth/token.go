package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrDisabled is returned by Verify when no signing secret is configured.
	ErrDisabled = errors.New("token verification is disabled")
	// ErrInvalidToken wraps every parse or signature failure.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the identity payload carried by auth-service tokens.
type Claims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens issued by the auth service. An empty secret
// disables verification entirely; callers must then fall back to trusting the
// client-declared identity, which is only acceptable in development.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier for the shared signing secret.
func NewVerifier(secret string) *Verifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether tokens will actually be checked.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify parses and validates a token, returning the embedded identity.
func (v *Verifier) Verify(token string) (Claims, error) {
	if !v.Enabled() {
		return Claims{}, ErrDisabled
	}
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		//1.- Pin the algorithm family so an attacker cannot downgrade to none.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, keyFunc)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.UserID == 0 {
		return Claims{}, fmt.Errorf("%w: missing userId claim", ErrInvalidToken)
	}
	return *claims, nil
}
