package mutation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avasheets/internal/access"
	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/store"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

func strPtr(s string) *string { return &s }

func newTestPipeline(t *testing.T) (*Pipeline, store.Store) {
	t.Helper()
	s := store.NewMemory(observability.NopLogger())
	t.Cleanup(func() { _ = s.Close() })
	r := access.NewResolver(s, observability.NopLogger())
	return NewPipeline(r, s, observability.NopLogger()), s
}

func seedDocument(t *testing.T, s store.Store, id, creator string) {
	t.Helper()
	err := s.Documents().Create(context.Background(), &model.Document{
		ID:        id,
		Name:      "doc " + id,
		CreatorID: creator,
		Rows:      20,
		Cols:      20,
	})
	require.NoError(t, err)
}

func seedGrant(t *testing.T, s store.Store, userID, docID string, level model.PermissionLevel, rows *model.RestrictionSet) {
	t.Helper()
	_, err := s.Grants().Upsert(context.Background(), &model.Grant{
		UserID:     userID,
		DocumentID: docID,
		Level:      level,
		Rows:       rows,
	})
	require.NoError(t, err)
}

func TestUpdateCellClassification(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		seed     *CellChange // applied first to create the cell, optional
		change   CellChange
		wantKind model.ChangeKind
	}{
		{
			name:     "new cell classifies create even with value supplied",
			change:   CellChange{Value: strPtr("x")},
			wantKind: model.ChangeCreate,
		},
		{
			name:     "value change on existing cell",
			seed:     &CellChange{Value: strPtr("a")},
			change:   CellChange{Value: strPtr("b")},
			wantKind: model.ChangeValue,
		},
		{
			name:     "formula wins over simultaneous value change",
			seed:     &CellChange{Value: strPtr("a")},
			change:   CellChange{Value: strPtr("b"), Formula: strPtr("=SUM(A1:A9)")},
			wantKind: model.ChangeFormula,
		},
		{
			name:     "value wins over simultaneous format change",
			seed:     &CellChange{Value: strPtr("a")},
			change:   CellChange{Value: strPtr("b"), Format: map[string]string{"bold": "true"}},
			wantKind: model.ChangeValue,
		},
		{
			name:     "format-only change",
			seed:     &CellChange{Value: strPtr("a")},
			change:   CellChange{Format: map[string]string{"bold": "true"}},
			wantKind: model.ChangeFormat,
		},
		{
			name:     "identical value rewrite classifies value",
			seed:     &CellChange{Value: strPtr("x")},
			change:   CellChange{Value: strPtr("x")},
			wantKind: model.ChangeValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, s := newTestPipeline(t)
			seedDocument(t, s, "doc-1", "owner-1")

			if tt.seed != nil {
				_, _, err := p.UpdateCell(ctx, "owner-1", "doc-1", 1, 1, *tt.seed)
				require.NoError(t, err)
			}

			_, rec, err := p.UpdateCell(ctx, "owner-1", "doc-1", 1, 1, tt.change)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, rec.Kind)
		})
	}
}

func TestUpdateCell(t *testing.T) {
	ctx := context.Background()

	t.Run("persists cell and record atomically", func(t *testing.T) {
		p, s := newTestPipeline(t)
		seedDocument(t, s, "doc-1", "owner-1")

		cell, rec, err := p.UpdateCell(ctx, "owner-1", "doc-1", 2, 3, CellChange{Value: strPtr("42")})
		require.NoError(t, err)
		assert.Equal(t, "42", cell.Value)
		assert.Equal(t, "42", rec.NewValue)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, "owner-1", rec.ActorID)

		stored, err := s.Cells().Get(ctx, "doc-1", 2, 3)
		require.NoError(t, err)
		assert.Equal(t, "42", stored.Value)

		_, total, err := s.History().ListByCell(ctx, "doc-1", 2, 3, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("untouched fields carry over", func(t *testing.T) {
		p, s := newTestPipeline(t)
		seedDocument(t, s, "doc-1", "owner-1")

		_, _, err := p.UpdateCell(ctx, "owner-1", "doc-1", 0, 0, CellChange{
			Value:  strPtr("v"),
			Format: map[string]string{"bold": "true"},
		})
		require.NoError(t, err)

		cell, _, err := p.UpdateCell(ctx, "owner-1", "doc-1", 0, 0, CellChange{Formula: strPtr("=A1")})
		require.NoError(t, err)
		assert.Equal(t, "v", cell.Value)
		assert.Equal(t, "=A1", cell.Formula)
		assert.Equal(t, "true", cell.Format["bold"])
	})

	t.Run("record captures old and new state", func(t *testing.T) {
		p, s := newTestPipeline(t)
		seedDocument(t, s, "doc-1", "owner-1")

		_, _, err := p.UpdateCell(ctx, "owner-1", "doc-1", 0, 0, CellChange{Value: strPtr("old")})
		require.NoError(t, err)

		_, rec, err := p.UpdateCell(ctx, "owner-1", "doc-1", 0, 0, CellChange{Value: strPtr("new")})
		require.NoError(t, err)
		assert.Equal(t, "old", rec.OldValue)
		assert.Equal(t, "new", rec.NewValue)
	})

	t.Run("empty change rejected", func(t *testing.T) {
		p, s := newTestPipeline(t)
		seedDocument(t, s, "doc-1", "owner-1")

		_, _, err := p.UpdateCell(ctx, "owner-1", "doc-1", 0, 0, CellChange{})
		assert.ErrorIs(t, err, util.ErrInvalidInput)
	})

	t.Run("negative coordinates rejected", func(t *testing.T) {
		p, s := newTestPipeline(t)
		seedDocument(t, s, "doc-1", "owner-1")

		_, _, err := p.UpdateCell(ctx, "owner-1", "doc-1", -1, 0, CellChange{Value: strPtr("x")})
		assert.ErrorIs(t, err, util.ErrInvalidInput)
	})

	t.Run("missing document", func(t *testing.T) {
		p, _ := newTestPipeline(t)
		_, _, err := p.UpdateCell(ctx, "owner-1", "missing", 0, 0, CellChange{Value: strPtr("x")})
		assert.ErrorIs(t, err, util.ErrNotFound)
	})
}

func TestUpdateCellAccess(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPipeline(t)
	seedDocument(t, s, "doc-1", "owner-1")
	seedGrant(t, s, "reader", "doc-1", model.PermissionRead, nil)
	seedGrant(t, s, "writer", "doc-1", model.PermissionWrite, model.NewAllowList(1, 2))

	t.Run("restricted writer inside range", func(t *testing.T) {
		_, rec, err := p.UpdateCell(ctx, "writer", "doc-1", 1, 0, CellChange{Value: strPtr("x")})
		require.NoError(t, err)
		assert.Equal(t, model.ChangeCreate, rec.Kind)
	})

	t.Run("restricted writer outside range leaves no trace", func(t *testing.T) {
		_, _, err := p.UpdateCell(ctx, "writer", "doc-1", 3, 0, CellChange{Value: strPtr("x")})
		assert.ErrorIs(t, err, util.ErrForbidden)

		_, cellErr := s.Cells().Get(ctx, "doc-1", 3, 0)
		assert.ErrorIs(t, cellErr, util.ErrNotFound)
		_, total, err := s.History().ListByCell(ctx, "doc-1", 3, 0, 10, 0)
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("reader cannot write", func(t *testing.T) {
		_, _, err := p.UpdateCell(ctx, "reader", "doc-1", 0, 0, CellChange{Value: strPtr("x")})
		assert.ErrorIs(t, err, util.ErrForbidden)
	})

	t.Run("stranger has no access", func(t *testing.T) {
		_, _, err := p.UpdateCell(ctx, "stranger", "doc-1", 0, 0, CellChange{Value: strPtr("x")})
		assert.ErrorIs(t, err, util.ErrForbidden)
	})
}

func TestDeleteCell(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPipeline(t)
	seedDocument(t, s, "doc-1", "owner-1")

	_, _, err := p.UpdateCell(ctx, "owner-1", "doc-1", 0, 0, CellChange{Value: strPtr("bye")})
	require.NoError(t, err)

	rec, err := p.DeleteCell(ctx, "owner-1", "doc-1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeDelete, rec.Kind)
	assert.Equal(t, "bye", rec.OldValue)
	assert.Empty(t, rec.NewValue)

	_, err = s.Cells().Get(ctx, "doc-1", 0, 0)
	assert.ErrorIs(t, err, util.ErrNotFound)

	// History survives the cell.
	_, total, err := s.History().ListByCell(ctx, "doc-1", 0, 0, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	t.Run("absent cell", func(t *testing.T) {
		_, err := p.DeleteCell(ctx, "owner-1", "doc-1", 9, 9)
		assert.ErrorIs(t, err, util.ErrNotFound)
	})
}

func TestFormatCells(t *testing.T) {
	ctx := context.Background()

	t.Run("creates six cells and six create records on an empty document", func(t *testing.T) {
		p, s := newTestPipeline(t)
		seedDocument(t, s, "doc-1", "owner-1")

		records, err := p.FormatCells(ctx, "owner-1", "doc-1", 1, 3, 1, 2, map[string]string{"bold": "true"})
		require.NoError(t, err)
		require.Len(t, records, 6)
		for _, rec := range records {
			assert.Equal(t, model.ChangeCreate, rec.Kind)
		}

		cells, err := s.Cells().ListByDocument(ctx, "doc-1")
		require.NoError(t, err)
		require.Len(t, cells, 6)
		for _, cell := range cells {
			assert.Empty(t, cell.Value)
			assert.Equal(t, "true", cell.Format["bold"])
		}
	})

	t.Run("merges into existing format and classifies format", func(t *testing.T) {
		p, s := newTestPipeline(t)
		seedDocument(t, s, "doc-1", "owner-1")

		_, _, err := p.UpdateCell(ctx, "owner-1", "doc-1", 0, 0, CellChange{
			Value:  strPtr("v"),
			Format: map[string]string{"bold": "true", "color": "red"},
		})
		require.NoError(t, err)

		records, err := p.FormatCells(ctx, "owner-1", "doc-1", 0, 0, 0, 0, map[string]string{"color": "blue"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, model.ChangeFormat, records[0].Kind)

		cell, err := s.Cells().Get(ctx, "doc-1", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, "v", cell.Value)
		assert.Equal(t, "true", cell.Format["bold"])
		assert.Equal(t, "blue", cell.Format["color"])
	})

	t.Run("invalid range", func(t *testing.T) {
		p, s := newTestPipeline(t)
		seedDocument(t, s, "doc-1", "owner-1")

		_, err := p.FormatCells(ctx, "owner-1", "doc-1", 3, 1, 0, 0, map[string]string{"bold": "true"})
		assert.ErrorIs(t, err, util.ErrInvalidInput)
	})

	t.Run("empty patch", func(t *testing.T) {
		p, s := newTestPipeline(t)
		seedDocument(t, s, "doc-1", "owner-1")

		_, err := p.FormatCells(ctx, "owner-1", "doc-1", 0, 0, 0, 0, nil)
		assert.ErrorIs(t, err, util.ErrInvalidInput)
	})

	t.Run("range crossing a restriction stops at the denied cell", func(t *testing.T) {
		p, s := newTestPipeline(t)
		seedDocument(t, s, "doc-1", "owner-1")
		seedGrant(t, s, "writer", "doc-1", model.PermissionWrite, model.NewAllowList(0))

		records, err := p.FormatCells(ctx, "writer", "doc-1", 0, 1, 0, 0, map[string]string{"bold": "true"})
		assert.ErrorIs(t, err, util.ErrForbidden)
		// Row 0 was formatted before row 1 was denied.
		assert.Len(t, records, 1)

		_, cellErr := s.Cells().Get(ctx, "doc-1", 0, 0)
		assert.NoError(t, cellErr)
		_, cellErr = s.Cells().Get(ctx, "doc-1", 1, 0)
		assert.ErrorIs(t, cellErr, util.ErrNotFound)
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPipeline(t)
	seedDocument(t, s, "doc-1", "owner-1")

	for _, v := range []string{"a", "b", "c"} {
		_, _, err := p.UpdateCell(ctx, "owner-1", "doc-1", 0, 0, CellChange{Value: strPtr(v)})
		require.NoError(t, err)
	}

	records, total, err := p.History(ctx, "doc-1", 0, 0, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].NewValue)
	assert.Equal(t, "b", records[1].NewValue)

	records, total, err = p.History(ctx, "doc-1", 0, 0, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].NewValue)

	t.Run("missing document", func(t *testing.T) {
		_, _, err := p.History(ctx, "missing", 0, 0, 10, 0)
		assert.ErrorIs(t, err, util.ErrNotFound)
	})
}

func TestSeedCells(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPipeline(t)
	seedDocument(t, s, "doc-1", "owner-1")

	seeds := []model.TemplateCell{
		{Row: 0, Col: 0, Value: "Name", Format: map[string]string{"bold": "true"}},
		{Row: 0, Col: 1, Value: "Total"},
	}
	require.NoError(t, p.SeedCells(ctx, "owner-1", "doc-1", seeds))

	cell, err := s.Cells().Get(ctx, "doc-1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Name", cell.Value)
	assert.Equal(t, map[string]string{"bold": "true"}, cell.Format)

	records, total, err := s.History().ListByCell(ctx, "doc-1", 0, 1, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, model.ChangeCreate, records[0].Kind)
	assert.Equal(t, "owner-1", records[0].ActorID)

	err = p.SeedCells(ctx, "owner-1", "doc-1", []model.TemplateCell{{Row: -1, Col: 0}})
	assert.ErrorIs(t, err, util.ErrInvalidInput)
}

func TestAppendRow(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPipeline(t)
	seedDocument(t, s, "doc-1", "owner-1")

	records, err := p.AppendRow(ctx, "webhook", "doc-1", 3, []string{"Ivanov", "2026-09-01"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.ChangeCreate, records[0].Kind)
	assert.Equal(t, "webhook", records[0].ActorID)

	cell, err := s.Cells().Get(ctx, "doc-1", 3, 1)
	require.NoError(t, err)
	assert.Equal(t, "2026-09-01", cell.Value)

	// Overwriting an occupied row records value changes, not creates.
	records, err = p.AppendRow(ctx, "webhook", "doc-1", 3, []string{"Petrov"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.ChangeValue, records[0].Kind)

	_, err = p.AppendRow(ctx, "webhook", "doc-1", -1, []string{"x"})
	assert.ErrorIs(t, err, util.ErrInvalidInput)
}
