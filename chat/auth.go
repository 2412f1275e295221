package chat

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator verifies the bearer credential presented when a
// connection is established and resolves it to a user identity. The
// check is pure; it has no side effects.
type TokenValidator struct {
	secret []byte
}

func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// Authenticate extracts the credential from the Authorization header,
// falling back to the token query parameter for browser websocket
// clients that cannot set headers. Any malformed header, decode failure
// or expired token is an error; the caller must terminate the
// connection without establishing a session.
func (v *TokenValidator) Authenticate(r *http.Request) (int, error) {
	var token string
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, "Bearer ") {
			return 0, errors.New("malformed authorization header")
		}
		token = strings.TrimPrefix(h, "Bearer ")
	} else {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return 0, errors.New("missing credential")
	}
	return v.Verify(token)
}

// Verify checks the token signature and expiry claim and returns the
// subject user id.
func (v *TokenValidator) Verify(token string) (int, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid claims")
	}
	switch sub := claims["sub"].(type) {
	case string:
		id, err := strconv.Atoi(sub)
		if err != nil || id <= 0 {
			return 0, errors.New("invalid subject")
		}
		return id, nil
	case float64:
		if sub <= 0 {
			return 0, errors.New("invalid subject")
		}
		return int(sub), nil
	}
	return 0, errors.New("missing subject")
}
