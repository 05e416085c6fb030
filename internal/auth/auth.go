// Package auth verifies connection credentials and resolves them to active
// user accounts. Credential issuance lives outside this service; only
// verification happens here.
package auth

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/store"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

// Identity is the subject a verified credential speaks for.
type Identity struct {
	UserID string
	Email  string
	RoleID string
}

// Verifier validates a raw credential and returns the identity it carries.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// Authenticator combines credential verification with the active-user check
// against the user store.
type Authenticator struct {
	verifier Verifier
	users    store.UserStore
	logger   observability.Logger
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(verifier Verifier, users store.UserStore, logger observability.Logger) *Authenticator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Authenticator{
		verifier: verifier,
		users:    users,
		logger:   logger,
	}
}

// Authenticate verifies the credential and returns the active user behind
// it. Unknown or deactivated users are rejected with an AuthError even when
// the credential itself is valid.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*model.User, error) {
	if credential == "" {
		return nil, util.NewAuthError("missing credential")
	}

	id, err := a.verifier.Verify(ctx, credential)
	if err != nil {
		a.logger.Debug("credential rejected", observability.Error(err))
		return nil, err
	}

	user, err := a.users.Get(ctx, id.UserID)
	if errors.Is(err, util.ErrNotFound) {
		return nil, util.NewAuthError("unknown user")
	}
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, util.NewAuthError("user is deactivated")
	}
	return user, nil
}
