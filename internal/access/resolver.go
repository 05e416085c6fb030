// Package access resolves what a user may do to a document and to individual
// cells. Resolution is read-only: the resolver never mutates grants, so it is
// safe under arbitrary concurrency.
//
// A document's creator is its owner and is never restricted. Every other user
// needs a grant; the grant carries a permission level and optional row and
// column restriction sets. A nil restriction set admits every index.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/store"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

// ErrNoAccess indicates the user holds no grant on the document and is not
// its creator. It matches util.ErrForbidden in errors.Is checks.
var ErrNoAccess = fmt.Errorf("no access to document: %w", util.ErrForbidden)

// Resolver computes effective permissions from documents and grants.
type Resolver struct {
	docs   store.DocumentStore
	grants store.GrantStore
	logger observability.Logger
}

// NewResolver creates a resolver over the given store.
func NewResolver(s store.Store, logger observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Resolver{
		docs:   s.Documents(),
		grants: s.Grants(),
		logger: logger,
	}
}

// Resolve returns the user's effective permission on the document: owner and
// unrestricted for the creator, the grant's level and restriction sets for a
// grant holder, ErrNoAccess otherwise. A missing document yields
// util.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, userID, docID string) (model.EffectivePermission, error) {
	doc, err := r.docs.Get(ctx, docID)
	if err != nil {
		return model.EffectivePermission{}, err
	}

	if doc.CreatorID == userID {
		return model.EffectivePermission{Level: model.PermissionOwner}, nil
	}

	grant, err := r.grants.Get(ctx, userID, docID)
	if errors.Is(err, util.ErrNotFound) {
		return model.EffectivePermission{}, ErrNoAccess
	}
	if err != nil {
		return model.EffectivePermission{}, err
	}

	return model.EffectivePermission{
		Level: grant.Level,
		Rows:  grant.Rows.Clone(),
		Cols:  grant.Cols.Clone(),
	}, nil
}

// CheckCellAccess reports whether the user may touch the given cell. The cell
// is accessible when the user resolves to at least read level and both the
// row and the column are admitted by the respective restriction sets. A user
// with no access at all gets {Allowed: false} without an error; only store
// failures and a missing document surface as errors.
func (r *Resolver) CheckCellAccess(ctx context.Context, userID, docID string, row, col int) (model.CellAccess, error) {
	perm, err := r.Resolve(ctx, userID, docID)
	if errors.Is(err, ErrNoAccess) {
		return model.CellAccess{}, nil
	}
	if err != nil {
		return model.CellAccess{}, err
	}

	if !perm.Rows.Admits(row) || !perm.Cols.Admits(col) {
		return model.CellAccess{Allowed: false, Level: perm.Level}, nil
	}
	return model.CellAccess{Allowed: true, Level: perm.Level}, nil
}

// Require resolves the user's permission and verifies it reaches min. On
// success it returns the effective permission so callers can apply cell
// restrictions without a second lookup.
func (r *Resolver) Require(ctx context.Context, userID, docID string, min model.PermissionLevel) (model.EffectivePermission, error) {
	perm, err := r.Resolve(ctx, userID, docID)
	if err != nil {
		return model.EffectivePermission{}, err
	}
	if !perm.Level.AtLeast(min) {
		return model.EffectivePermission{}, util.NewAccessErrorRequired(userID, docID, string(min))
	}
	return perm, nil
}
