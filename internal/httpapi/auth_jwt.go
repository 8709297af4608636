package httpapi

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenIssuer mints and verifies the opaque bearer tokens described in
// §6: an HS256 JWT carrying {user_id, role, exp, iat, type=access_token},
// sent back as an opaque string and read from X-API-Key (or a Bearer
// header) on every subsequent request.
//
// Grounded on backend/infrastructure/auth.py's generate_jwt_token /
// validate_jwt_token pair, adapted from PyJWT to the pack's
// lestrrat-go/jwx/v2 (already used for JWT handling by the corpus, just
// with an external JWKS issuer rather than a self-signed HS256 secret).
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

const accessTokenType = "access_token"

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Issue mints a signed access token for (userID, role).
func (i *TokenIssuer) Issue(userID, role string) (string, error) {
	now := time.Now()
	token, err := jwt.NewBuilder().
		IssuedAt(now).
		Expiration(now.Add(i.ttl)).
		Claim("type", accessTokenType).
		Claim("user_id", userID).
		Claim("role", role).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, i.secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// Verify satisfies TokenVerifier: it checks the signature and expiry and
// extracts the identity claims.
func (i *TokenIssuer) Verify(token string) (Identity, bool) {
	if token == "" {
		return Identity{}, false
	}
	parsed, err := jwt.Parse([]byte(token), jwt.WithKey(jwa.HS256, i.secret), jwt.WithValidate(true))
	if err != nil {
		return Identity{}, false
	}

	typ, _ := parsed.Get("type")
	if typ != accessTokenType {
		return Identity{}, false
	}

	userID, _ := parsed.Get("user_id")
	role, _ := parsed.Get("role")
	userIDStr, ok1 := userID.(string)
	roleStr, ok2 := role.(string)
	if !ok1 || !ok2 || userIDStr == "" || roleStr == "" {
		return Identity{}, false
	}
	return Identity{UserID: userIDStr, Role: roleStr}, true
}
