package auth

import (
	"context"

	"github.com/vyrodovalexey/avasheets/internal/util"
)

// StaticVerifier resolves credentials from a fixed table. Intended for tests
// and local development.
type StaticVerifier struct {
	identities map[string]Identity
}

// NewStaticVerifier creates a verifier over a credential-to-identity table.
func NewStaticVerifier(identities map[string]Identity) *StaticVerifier {
	return &StaticVerifier{identities: identities}
}

// Verify looks the credential up in the table.
func (v *StaticVerifier) Verify(_ context.Context, credential string) (*Identity, error) {
	id, ok := v.identities[credential]
	if !ok {
		return nil, util.NewAuthError("unknown credential")
	}
	return &id, nil
}
