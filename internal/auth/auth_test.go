package auth

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avasheets/internal/config"
	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/store"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type tokenSpec struct {
	subject   string
	issuer    string
	audience  string
	email     string
	role      string
	expiresAt time.Time
}

func mintToken(t *testing.T, secret string, spec tokenSpec) string {
	t.Helper()

	builder := jwt.NewBuilder().Subject(spec.subject)
	if spec.issuer != "" {
		builder = builder.Issuer(spec.issuer)
	}
	if spec.audience != "" {
		builder = builder.Audience([]string{spec.audience})
	}
	if spec.email != "" {
		builder = builder.Claim(claimEmail, spec.email)
	}
	if spec.role != "" {
		builder = builder.Claim(claimRole, spec.role)
	}
	if spec.expiresAt.IsZero() {
		spec.expiresAt = time.Now().Add(time.Hour)
	}
	tok, err := builder.Expiration(spec.expiresAt).Build()
	require.NoError(t, err)

	key, err := jwk.FromRaw([]byte(secret))
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, key))
	require.NoError(t, err)
	return string(signed)
}

func TestJWTVerifier(t *testing.T) {
	ctx := context.Background()

	verifier, err := NewJWTVerifier(&config.AuthConfig{
		Secret:   testSecret,
		Issuer:   "avasheets",
		Audience: "sheets-api",
	})
	require.NoError(t, err)

	valid := tokenSpec{
		subject:  "user-1",
		issuer:   "avasheets",
		audience: "sheets-api",
		email:    "alice@example.com",
		role:     "editor",
	}

	t.Run("valid token", func(t *testing.T) {
		id, err := verifier.Verify(ctx, mintToken(t, testSecret, valid))
		require.NoError(t, err)
		assert.Equal(t, "user-1", id.UserID)
		assert.Equal(t, "alice@example.com", id.Email)
		assert.Equal(t, "editor", id.RoleID)
	})

	tests := []struct {
		name   string
		mutate func(*tokenSpec)
		secret string
	}{
		{
			name:   "wrong signing key",
			mutate: func(*tokenSpec) {},
			secret: "another-secret-another-secret-00",
		},
		{
			name:   "expired",
			mutate: func(s *tokenSpec) { s.expiresAt = time.Now().Add(-time.Minute) },
		},
		{
			name:   "wrong issuer",
			mutate: func(s *tokenSpec) { s.issuer = "someone-else" },
		},
		{
			name:   "wrong audience",
			mutate: func(s *tokenSpec) { s.audience = "other-api" },
		},
		{
			name:   "missing subject",
			mutate: func(s *tokenSpec) { s.subject = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := valid
			tt.mutate(&spec)
			secret := tt.secret
			if secret == "" {
				secret = testSecret
			}
			_, err := verifier.Verify(ctx, mintToken(t, secret, spec))
			assert.ErrorIs(t, err, util.ErrUnauthorized)
		})
	}

	t.Run("garbage credential", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "not-a-token")
		assert.ErrorIs(t, err, util.ErrUnauthorized)
	})

	t.Run("issuer and audience optional when unconfigured", func(t *testing.T) {
		loose, err := NewJWTVerifier(&config.AuthConfig{Secret: testSecret})
		require.NoError(t, err)
		id, err := loose.Verify(ctx, mintToken(t, testSecret, tokenSpec{subject: "user-2"}))
		require.NoError(t, err)
		assert.Equal(t, "user-2", id.UserID)
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := NewJWTVerifier(&config.AuthConfig{})
		assert.Error(t, err)
	})
}

func TestAuthenticator(t *testing.T) {
	ctx := context.Background()

	s := store.NewMemory(observability.NopLogger())
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Users().Create(ctx, &model.User{
		ID: "user-1", Email: "alice@example.com", Active: true,
	}))
	require.NoError(t, s.Users().Create(ctx, &model.User{
		ID: "user-2", Email: "bob@example.com", Active: false,
	}))

	verifier := NewStaticVerifier(map[string]Identity{
		"tok-active":   {UserID: "user-1", Email: "alice@example.com"},
		"tok-inactive": {UserID: "user-2"},
		"tok-ghost":    {UserID: "no-such-user"},
	})
	a := NewAuthenticator(verifier, s.Users(), observability.NopLogger())

	t.Run("active user", func(t *testing.T) {
		user, err := a.Authenticate(ctx, "tok-active")
		require.NoError(t, err)
		assert.Equal(t, "user-1", user.ID)
	})

	tests := []struct {
		name       string
		credential string
	}{
		{name: "empty credential", credential: ""},
		{name: "unknown credential", credential: "tok-bogus"},
		{name: "deactivated user", credential: "tok-inactive"},
		{name: "user not in store", credential: "tok-ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(ctx, tt.credential)
			assert.ErrorIs(t, err, util.ErrUnauthorized)
		})
	}
}
