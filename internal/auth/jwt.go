package auth

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/avasheets/internal/config"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

// Claim names carried beyond the registered set.
const (
	claimEmail = "email"
	claimRole  = "role"
)

// JWTVerifier validates HMAC-signed JWTs: signature, expiry, and, when
// configured, issuer and audience.
type JWTVerifier struct {
	key      jwk.Key
	issuer   string
	audience string
}

// NewJWTVerifier creates a verifier from the auth configuration.
func NewJWTVerifier(cfg *config.AuthConfig) (*JWTVerifier, error) {
	if cfg == nil || cfg.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}

	key, err := jwk.FromRaw([]byte(cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("building signing key: %w", err)
	}

	return &JWTVerifier{
		key:      key,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}, nil
}

// Verify parses and validates the token and extracts the identity claims.
func (v *JWTVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	opts := []jwt.ParseOption{
		jwt.WithContext(ctx),
		jwt.WithKey(jwa.HS256, v.key),
		jwt.WithValidate(true),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	tok, err := jwt.Parse([]byte(credential), opts...)
	if err != nil {
		return nil, util.NewAuthErrorWithCause("invalid token", err)
	}

	if tok.Subject() == "" {
		return nil, util.NewAuthError("token has no subject")
	}

	id := &Identity{UserID: tok.Subject()}
	if raw, ok := tok.Get(claimEmail); ok {
		id.Email, _ = raw.(string)
	}
	if raw, ok := tok.Get(claimRole); ok {
		id.RoleID, _ = raw.(string)
	}
	return id, nil
}
