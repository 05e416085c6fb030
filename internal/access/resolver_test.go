package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/store"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s := store.NewMemory(observability.NopLogger())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createDocument(t *testing.T, s store.Store, id, creator string) {
	t.Helper()
	err := s.Documents().Create(context.Background(), &model.Document{
		ID:        id,
		Name:      "doc " + id,
		CreatorID: creator,
		Rows:      10,
		Cols:      10,
	})
	require.NoError(t, err)
}

func grantAccess(t *testing.T, s store.Store, userID, docID string, level model.PermissionLevel, rows, cols *model.RestrictionSet) {
	t.Helper()
	_, err := s.Grants().Upsert(context.Background(), &model.Grant{
		UserID:     userID,
		DocumentID: docID,
		Level:      level,
		Rows:       rows,
		Cols:       cols,
	})
	require.NoError(t, err)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := NewResolver(s, observability.NopLogger())

	createDocument(t, s, "doc-1", "owner-1")
	grantAccess(t, s, "writer-1", "doc-1", model.PermissionWrite, model.NewAllowList(2, 5), nil)

	t.Run("creator resolves to owner regardless of grants", func(t *testing.T) {
		perm, err := r.Resolve(ctx, "owner-1", "doc-1")
		require.NoError(t, err)
		assert.Equal(t, model.PermissionOwner, perm.Level)
		assert.True(t, perm.Unrestricted())
	})

	t.Run("non-creator never resolves to owner", func(t *testing.T) {
		grantAccess(t, s, "admin-1", "doc-1", model.PermissionAdmin, nil, nil)
		perm, err := r.Resolve(ctx, "admin-1", "doc-1")
		require.NoError(t, err)
		assert.NotEqual(t, model.PermissionOwner, perm.Level)
	})

	t.Run("grant holder gets grant level and restrictions", func(t *testing.T) {
		perm, err := r.Resolve(ctx, "writer-1", "doc-1")
		require.NoError(t, err)
		assert.Equal(t, model.PermissionWrite, perm.Level)
		require.NotNil(t, perm.Rows)
		assert.True(t, perm.Rows.Admits(5))
		assert.Nil(t, perm.Cols)
	})

	t.Run("no grant means no access", func(t *testing.T) {
		_, err := r.Resolve(ctx, "stranger", "doc-1")
		assert.ErrorIs(t, err, ErrNoAccess)
		assert.ErrorIs(t, err, util.ErrForbidden)
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := r.Resolve(ctx, "owner-1", "missing")
		assert.ErrorIs(t, err, util.ErrNotFound)
	})

	t.Run("resolved restrictions are isolated from the stored grant", func(t *testing.T) {
		perm, err := r.Resolve(ctx, "writer-1", "doc-1")
		require.NoError(t, err)
		perm.Rows.Indices[99] = struct{}{}

		again, err := r.Resolve(ctx, "writer-1", "doc-1")
		require.NoError(t, err)
		assert.False(t, again.Rows.Admits(99))
	})
}

func TestCheckCellAccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := NewResolver(s, observability.NopLogger())

	createDocument(t, s, "doc-1", "owner-1")
	grantAccess(t, s, "restricted", "doc-1", model.PermissionWrite, model.NewAllowList(2, 5), nil)
	grantAccess(t, s, "wildcard", "doc-1", model.PermissionRead, model.NewAllSet(), model.NewAllowList(0))

	tests := []struct {
		name        string
		userID      string
		row, col    int
		wantAllowed bool
		wantLevel   model.PermissionLevel
	}{
		{
			name:        "owner reaches any cell",
			userID:      "owner-1",
			row:         999,
			col:         999,
			wantAllowed: true,
			wantLevel:   model.PermissionOwner,
		},
		{
			name:        "restricted row admitted",
			userID:      "restricted",
			row:         2,
			col:         7,
			wantAllowed: true,
			wantLevel:   model.PermissionWrite,
		},
		{
			name:        "restricted row denied",
			userID:      "restricted",
			row:         3,
			col:         7,
			wantAllowed: false,
			wantLevel:   model.PermissionWrite,
		},
		{
			name:        "wildcard rows with restricted column",
			userID:      "wildcard",
			row:         42,
			col:         0,
			wantAllowed: true,
			wantLevel:   model.PermissionRead,
		},
		{
			name:        "wildcard rows but column denied",
			userID:      "wildcard",
			row:         42,
			col:         1,
			wantAllowed: false,
			wantLevel:   model.PermissionRead,
		},
		{
			name:        "no grant at all",
			userID:      "stranger",
			row:         0,
			col:         0,
			wantAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.CheckCellAccess(ctx, tt.userID, "doc-1", tt.row, tt.col)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, got.Allowed)
			assert.Equal(t, tt.wantLevel, got.Level)
		})
	}

	t.Run("missing document is an error", func(t *testing.T) {
		_, err := r.CheckCellAccess(ctx, "owner-1", "missing", 0, 0)
		assert.ErrorIs(t, err, util.ErrNotFound)
	})
}

func TestRequire(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := NewResolver(s, observability.NopLogger())

	createDocument(t, s, "doc-1", "owner-1")
	grantAccess(t, s, "reader", "doc-1", model.PermissionRead, nil, nil)
	grantAccess(t, s, "writer", "doc-1", model.PermissionWrite, nil, nil)

	tests := []struct {
		name    string
		userID  string
		min     model.PermissionLevel
		wantErr bool
	}{
		{name: "reader can read", userID: "reader", min: model.PermissionRead},
		{name: "reader cannot write", userID: "reader", min: model.PermissionWrite, wantErr: true},
		{name: "writer can write", userID: "writer", min: model.PermissionWrite},
		{name: "writer is not admin", userID: "writer", min: model.PermissionAdmin, wantErr: true},
		{name: "owner passes everything", userID: "owner-1", min: model.PermissionOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Require(ctx, tt.userID, "doc-1", tt.min)
			if tt.wantErr {
				assert.ErrorIs(t, err, util.ErrForbidden)
				return
			}
			assert.NoError(t, err)
		})
	}
}
