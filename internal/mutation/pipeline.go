// Package mutation applies cell changes: access check, classification, and
// atomic persistence of the cell state together with its history record.
//
// Single-cell operations are atomic: the cell write and its change record
// persist together or not at all. FormatCells is NOT atomic across cells; a
// failure partway leaves earlier cells mutated and later ones untouched.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avasheets/internal/access"
	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/store"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

// CellChange describes one cell mutation. Nil fields are left untouched; a
// non-nil Format replaces the cell's format wholesale (range formatting
// merges instead, see FormatCells).
type CellChange struct {
	Value   *string
	Formula *string
	Format  map[string]string
}

func (c CellChange) empty() bool {
	return c.Value == nil && c.Formula == nil && c.Format == nil
}

// Pipeline validates, classifies, records, and persists cell mutations.
type Pipeline struct {
	resolver *access.Resolver
	store    store.Store
	logger   observability.Logger
	metrics  *observability.Metrics
}

// NewPipeline creates a mutation pipeline.
func NewPipeline(resolver *access.Resolver, s store.Store, logger observability.Logger) *Pipeline {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Pipeline{
		resolver: resolver,
		store:    s,
		logger:   logger,
		metrics:  observability.GetMetrics(),
	}
}

// UpdateCell applies the change to one cell on behalf of the user. It
// requires write access admitted for the cell's coordinates, classifies the
// change, and persists cell and record atomically.
func (p *Pipeline) UpdateCell(ctx context.Context, userID, docID string, row, col int, change CellChange) (*model.Cell, *model.CellChangeRecord, error) {
	if row < 0 || col < 0 {
		return nil, nil, util.NewValidationError("row and column must be non-negative")
	}
	if change.empty() {
		return nil, nil, util.NewValidationError("change must supply a value, formula, or format")
	}

	if err := p.requireCellWrite(ctx, userID, docID, row, col); err != nil {
		return nil, nil, err
	}

	existing, err := p.loadCell(ctx, docID, row, col)
	if err != nil {
		return nil, nil, err
	}

	cell := nextCellState(existing, docID, row, col, change)
	kind := classify(existing, cell, change)
	rec := newRecord(existing, cell, userID, kind)

	if err := p.store.ApplyCellChange(ctx, store.CellMutation{Cell: cell, Record: rec}); err != nil {
		return nil, nil, err
	}

	p.metrics.MutationsTotal.WithLabelValues(string(kind)).Inc()
	p.logger.Debug("cell updated",
		observability.String("documentId", docID),
		observability.Int("row", row),
		observability.Int("col", col),
		observability.String("classification", string(kind)),
		observability.String("actorId", userID))
	return cell, rec, nil
}

// DeleteCell removes the cell and records a delete-classified change
// atomically. Deleting an absent cell yields util.ErrNotFound.
func (p *Pipeline) DeleteCell(ctx context.Context, userID, docID string, row, col int) (*model.CellChangeRecord, error) {
	if err := p.requireCellWrite(ctx, userID, docID, row, col); err != nil {
		return nil, err
	}

	existing, err := p.store.Cells().Get(ctx, docID, row, col)
	if err != nil {
		return nil, err
	}

	rec := newRecord(existing, nil, userID, model.ChangeDelete)
	if err := p.store.ApplyCellChange(ctx, store.CellMutation{Delete: true, Record: rec}); err != nil {
		return nil, err
	}

	p.metrics.MutationsTotal.WithLabelValues(string(model.ChangeDelete)).Inc()
	return rec, nil
}

// FormatCells shallow-merges the patch into every cell of the inclusive
// rectangle [rowFrom,rowTo]x[colFrom,colTo], creating absent cells with an
// empty value. One record is emitted per cell: format for existing cells,
// create for new ones. The operation is not atomic across cells.
func (p *Pipeline) FormatCells(ctx context.Context, userID, docID string, rowFrom, rowTo, colFrom, colTo int, patch map[string]string) ([]*model.CellChangeRecord, error) {
	if len(patch) == 0 {
		return nil, util.NewValidationError("format patch must not be empty")
	}
	if rowFrom < 0 || colFrom < 0 || rowTo < rowFrom || colTo < colFrom {
		return nil, util.NewValidationError("invalid cell range")
	}

	perm, err := p.resolver.Require(ctx, userID, docID, model.PermissionWrite)
	if err != nil {
		return nil, err
	}

	var records []*model.CellChangeRecord
	for row := rowFrom; row <= rowTo; row++ {
		for col := colFrom; col <= colTo; col++ {
			if !perm.Rows.Admits(row) || !perm.Cols.Admits(col) {
				return records, util.NewAccessError(userID, docID,
					fmt.Sprintf("cell (%d,%d) outside granted range", row, col))
			}

			existing, err := p.loadCell(ctx, docID, row, col)
			if err != nil {
				return records, err
			}

			merged := make(map[string]string, len(patch))
			if existing != nil {
				maps.Copy(merged, existing.Format)
			}
			maps.Copy(merged, patch)

			cell := nextCellState(existing, docID, row, col, CellChange{Format: merged})
			kind := model.ChangeFormat
			if existing == nil {
				kind = model.ChangeCreate
			}
			rec := newRecord(existing, cell, userID, kind)

			if err := p.store.ApplyCellChange(ctx, store.CellMutation{Cell: cell, Record: rec}); err != nil {
				return records, err
			}
			p.metrics.MutationsTotal.WithLabelValues(string(kind)).Inc()
			records = append(records, rec)
		}
	}

	p.logger.Debug("cell range formatted",
		observability.String("documentId", docID),
		observability.Int("cells", len(records)),
		observability.String("actorId", userID))
	return records, nil
}

// SeedCells writes a template's pre-filled cells into a freshly created
// document, one create record per cell. Grants are not consulted; callers
// seed documents they just created on behalf of the creator.
func (p *Pipeline) SeedCells(ctx context.Context, actorID, docID string, seeds []model.TemplateCell) error {
	for _, seed := range seeds {
		if seed.Row < 0 || seed.Col < 0 {
			return util.NewValidationError("template cells must have non-negative coordinates")
		}
		value := seed.Value
		cell := nextCellState(nil, docID, seed.Row, seed.Col, CellChange{Value: &value, Format: seed.Format})
		rec := newRecord(nil, cell, actorID, model.ChangeCreate)
		if err := p.store.ApplyCellChange(ctx, store.CellMutation{Cell: cell, Record: rec}); err != nil {
			return err
		}
		p.metrics.MutationsTotal.WithLabelValues(string(model.ChangeCreate)).Inc()
	}
	return nil
}

// AppendRow writes values across the columns of one row on behalf of a
// system actor, recording each write. Grants are not consulted; this is the
// write path for inbound webhook payloads.
func (p *Pipeline) AppendRow(ctx context.Context, actorID, docID string, row int, values []string) ([]*model.CellChangeRecord, error) {
	if row < 0 {
		return nil, util.NewValidationError("row must be non-negative")
	}

	var records []*model.CellChangeRecord
	for col, value := range values {
		existing, err := p.loadCell(ctx, docID, row, col)
		if err != nil {
			return records, err
		}

		v := value
		change := CellChange{Value: &v}
		cell := nextCellState(existing, docID, row, col, change)
		kind := classify(existing, cell, change)
		rec := newRecord(existing, cell, actorID, kind)

		if err := p.store.ApplyCellChange(ctx, store.CellMutation{Cell: cell, Record: rec}); err != nil {
			return records, err
		}
		p.metrics.MutationsTotal.WithLabelValues(string(kind)).Inc()
		records = append(records, rec)
	}

	p.logger.Debug("row appended",
		observability.String("documentId", docID),
		observability.Int("row", row),
		observability.Int("cells", len(records)),
		observability.String("actorId", actorID))
	return records, nil
}

// History returns the cell's change records newest-first with the total
// count for the same filter. Limit and offset are clamped by the caller.
func (p *Pipeline) History(ctx context.Context, docID string, row, col, limit, offset int) ([]*model.CellChangeRecord, int, error) {
	if _, err := p.store.Documents().Get(ctx, docID); err != nil {
		return nil, 0, err
	}
	return p.store.History().ListByCell(ctx, docID, row, col, limit, offset)
}

// DocumentHistory returns change records across the whole document,
// newest-first with the total count.
func (p *Pipeline) DocumentHistory(ctx context.Context, docID string, limit, offset int) ([]*model.CellChangeRecord, int, error) {
	if _, err := p.store.Documents().Get(ctx, docID); err != nil {
		return nil, 0, err
	}
	return p.store.History().ListByDocument(ctx, docID, limit, offset)
}

// requireCellWrite checks write-level access admitted for the coordinates.
func (p *Pipeline) requireCellWrite(ctx context.Context, userID, docID string, row, col int) error {
	cellAccess, err := p.resolver.CheckCellAccess(ctx, userID, docID, row, col)
	if err != nil {
		return err
	}
	if !cellAccess.Allowed || !cellAccess.Level.AtLeast(model.PermissionWrite) {
		p.metrics.AccessDenied.WithLabelValues("updateCell").Inc()
		return util.NewAccessErrorRequired(userID, docID, string(model.PermissionWrite))
	}
	return nil
}

// loadCell returns the cell or nil when it does not exist yet.
func (p *Pipeline) loadCell(ctx context.Context, docID string, row, col int) (*model.Cell, error) {
	cell, err := p.store.Cells().Get(ctx, docID, row, col)
	if errors.Is(err, util.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cell, nil
}

// nextCellState builds the cell state after applying the change. Untouched
// fields carry over from the existing cell.
func nextCellState(existing *model.Cell, docID string, row, col int, change CellChange) *model.Cell {
	now := time.Now().UTC()
	cell := &model.Cell{
		DocumentID: docID,
		Row:        row,
		Col:        col,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing != nil {
		cell.Value = existing.Value
		cell.Formula = existing.Formula
		cell.Format = cloneFormat(existing.Format)
		cell.Locked = existing.Locked
		cell.CreatedAt = existing.CreatedAt
	}
	if change.Value != nil {
		cell.Value = *change.Value
	}
	if change.Formula != nil {
		cell.Formula = *change.Formula
	}
	if change.Format != nil {
		cell.Format = cloneFormat(change.Format)
	}
	return cell
}

// classify picks the single classification for a change. An absent cell is
// always a create. For an existing cell the changed field wins, formula over
// value over format; a call that changed nothing is classified by the
// highest-priority field it supplied.
func classify(existing, next *model.Cell, change CellChange) model.ChangeKind {
	if existing == nil {
		return model.ChangeCreate
	}
	switch {
	case change.Formula != nil && existing.Formula != next.Formula:
		return model.ChangeFormula
	case change.Value != nil && existing.Value != next.Value:
		return model.ChangeValue
	case change.Format != nil && !maps.Equal(existing.Format, next.Format):
		return model.ChangeFormat
	case change.Formula != nil:
		return model.ChangeFormula
	case change.Value != nil:
		return model.ChangeValue
	default:
		return model.ChangeFormat
	}
}

// newRecord captures the before/after state of the cell. For deletes next is
// nil; for creates existing is nil.
func newRecord(existing, next *model.Cell, actorID string, kind model.ChangeKind) *model.CellChangeRecord {
	rec := &model.CellChangeRecord{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	if existing != nil {
		rec.DocumentID = existing.DocumentID
		rec.Row = existing.Row
		rec.Col = existing.Col
		rec.OldValue = existing.Value
		rec.OldFormula = existing.Formula
		rec.OldFormat = cloneFormat(existing.Format)
	}
	if next != nil {
		rec.DocumentID = next.DocumentID
		rec.Row = next.Row
		rec.Col = next.Col
		rec.NewValue = next.Value
		rec.NewFormula = next.Formula
		rec.NewFormat = cloneFormat(next.Format)
	}
	return rec
}

func cloneFormat(format map[string]string) map[string]string {
	if format == nil {
		return nil
	}
	return maps.Clone(format)
}
