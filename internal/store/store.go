// Package store provides persistence for documents, cells, grants, change
// records, groups, users, templates, and webhook mappings. Two backends are
// available: an in-memory store and a Redis-backed store, selected by
// configuration.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/avasheets/internal/config"
	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
)

// Store errors.
var (
	// ErrInvalidConfig indicates an invalid store configuration.
	ErrInvalidConfig = errors.New("invalid store configuration")
)

// CellMutation bundles a cell upsert or delete with its history record so a
// backend can apply both as one atomic unit.
type CellMutation struct {
	// Cell is the new cell state. Ignored when Delete is set.
	Cell *model.Cell
	// Delete removes the cell at the record's coordinates.
	Delete bool
	// Record is the change record to append. Required.
	Record *model.CellChangeRecord
}

// Validate checks the mutation for structural errors.
func (m CellMutation) Validate() error {
	if m.Record == nil {
		return fmt.Errorf("cell mutation requires a change record")
	}
	if !m.Delete && m.Cell == nil {
		return fmt.Errorf("cell mutation requires a cell unless deleting")
	}
	return nil
}

// DocumentStore persists documents.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id string) (*model.Document, error)
	Update(ctx context.Context, doc *model.Document) error
	// Delete removes the document and cascades to its cells, grants, and
	// history.
	Delete(ctx context.Context, id string) error
	// ListVisible returns documents the user created, public documents,
	// and documents the user holds a grant on.
	ListVisible(ctx context.Context, userID string) ([]*model.Document, error)
}

// CellStore reads cells. Writes go through Store.ApplyCellChange so the
// history record and the cell state cannot diverge.
type CellStore interface {
	Get(ctx context.Context, docID string, row, col int) (*model.Cell, error)
	ListByDocument(ctx context.Context, docID string) ([]*model.Cell, error)
}

// GrantStore persists grants, keyed by (user, document).
type GrantStore interface {
	// Upsert inserts or updates the grant for its (user, document) key.
	// It reports whether a new grant was created.
	Upsert(ctx context.Context, grant *model.Grant) (created bool, err error)
	Get(ctx context.Context, userID, docID string) (*model.Grant, error)
	Delete(ctx context.Context, userID, docID string) error
	ListByDocument(ctx context.Context, docID string) ([]*model.Grant, error)
}

// HistoryStore reads cell change records. Records are append-only and only
// written through Store.ApplyCellChange.
type HistoryStore interface {
	// ListByCell returns records for one cell, newest first, along with
	// the total count for the same filter.
	ListByCell(ctx context.Context, docID string, row, col, limit, offset int) ([]*model.CellChangeRecord, int, error)
	// ListByDocument returns records across the whole document, newest
	// first, with the total count.
	ListByDocument(ctx context.Context, docID string, limit, offset int) ([]*model.CellChangeRecord, int, error)
}

// GroupStore persists groups and their memberships. Membership is
// many-to-many: adding a user to one group does not remove them from
// another.
type GroupStore interface {
	Create(ctx context.Context, group *model.Group) error
	Get(ctx context.Context, id string) (*model.Group, error)
	List(ctx context.Context) ([]*model.Group, error)
	Delete(ctx context.Context, id string) error
	AddMember(ctx context.Context, groupID, userID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	Members(ctx context.Context, groupID string) ([]string, error)
}

// TemplateStore persists document templates.
type TemplateStore interface {
	Create(ctx context.Context, tpl *model.Template) error
	Get(ctx context.Context, id string) (*model.Template, error)
	// ListActive returns active templates ordered by category, then name.
	ListActive(ctx context.Context) ([]*model.Template, error)
	Delete(ctx context.Context, id string) error
}

// WebhookStore persists per-document webhook mappings.
type WebhookStore interface {
	// Upsert inserts or updates the mapping for its document. It reports
	// whether a new mapping was created.
	Upsert(ctx context.Context, mapping *model.WebhookMapping) (created bool, err error)
	GetByDocument(ctx context.Context, docID string) (*model.WebhookMapping, error)
	Delete(ctx context.Context, docID string) error
	// ListActive returns every active mapping.
	ListActive(ctx context.Context) ([]*model.WebhookMapping, error)
}

// UserStore persists user accounts.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	Get(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// Store aggregates the per-entity stores and the atomic cell mutation
// operation.
type Store interface {
	Documents() DocumentStore
	Cells() CellStore
	Grants() GrantStore
	History() HistoryStore
	Groups() GroupStore
	Users() UserStore
	Templates() TemplateStore
	Webhooks() WebhookStore

	// ApplyCellChange applies the cell upsert or delete together with its
	// history record as one atomic unit: neither persists without the
	// other.
	ApplyCellChange(ctx context.Context, mut CellMutation) error

	Close() error
}

// New creates a store from configuration.
func New(cfg *config.StoreConfig, logger observability.Logger) (Store, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	switch cfg.Type {
	case "", config.StoreTypeMemory:
		return NewMemory(logger), nil
	case config.StoreTypeRedis:
		return newRedisStore(cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidConfig, cfg.Type)
	}
}
