package store

import (
	"context"
	"sync"
	"time"

	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

// coord addresses a cell within a document.
type coord struct {
	row, col int
}

// memoryStore is a mutex-guarded in-memory implementation of Store. It is
// the default backend and the test double for the service layers.
type memoryStore struct {
	logger observability.Logger

	mu        sync.RWMutex
	docs      map[string]*model.Document
	cells     map[string]map[coord]*model.Cell
	grants    map[string]map[string]*model.Grant
	history   map[string][]*model.CellChangeRecord
	groups    map[string]*model.Group
	members   map[string]map[string]struct{}
	users     map[string]*model.User
	emails    map[string]string
	templates map[string]*model.Template
	webhooks  map[string]*model.WebhookMapping
}

// NewMemory creates an in-memory store.
func NewMemory(logger observability.Logger) Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &memoryStore{
		logger:    logger,
		docs:      make(map[string]*model.Document),
		cells:     make(map[string]map[coord]*model.Cell),
		grants:    make(map[string]map[string]*model.Grant),
		history:   make(map[string][]*model.CellChangeRecord),
		groups:    make(map[string]*model.Group),
		members:   make(map[string]map[string]struct{}),
		users:     make(map[string]*model.User),
		emails:    make(map[string]string),
		templates: make(map[string]*model.Template),
		webhooks:  make(map[string]*model.WebhookMapping),
	}
}

func (s *memoryStore) Documents() DocumentStore { return (*memoryDocuments)(s) }
func (s *memoryStore) Cells() CellStore         { return (*memoryCells)(s) }
func (s *memoryStore) Grants() GrantStore       { return (*memoryGrants)(s) }
func (s *memoryStore) History() HistoryStore    { return (*memoryHistory)(s) }
func (s *memoryStore) Groups() GroupStore       { return (*memoryGroups)(s) }
func (s *memoryStore) Users() UserStore         { return (*memoryUsers)(s) }
func (s *memoryStore) Templates() TemplateStore { return (*memoryTemplates)(s) }
func (s *memoryStore) Webhooks() WebhookStore   { return (*memoryWebhooks)(s) }

// ApplyCellChange applies the cell upsert or delete and the history append
// under a single lock acquisition.
func (s *memoryStore) ApplyCellChange(_ context.Context, mut CellMutation) error {
	if err := mut.Validate(); err != nil {
		return util.NewStoreError("apply cell change", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := mut.Record
	if _, ok := s.docs[rec.DocumentID]; !ok {
		return util.ErrNotFound
	}

	if mut.Delete {
		if docCells, ok := s.cells[rec.DocumentID]; ok {
			delete(docCells, coord{rec.Row, rec.Col})
		}
	} else {
		docCells, ok := s.cells[mut.Cell.DocumentID]
		if !ok {
			docCells = make(map[coord]*model.Cell)
			s.cells[mut.Cell.DocumentID] = docCells
		}
		docCells[coord{mut.Cell.Row, mut.Cell.Col}] = cloneCell(mut.Cell)
	}

	s.history[rec.DocumentID] = append(s.history[rec.DocumentID], cloneRecord(rec))
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}

// memoryDocuments implements DocumentStore.
type memoryDocuments memoryStore

func (d *memoryDocuments) Create(_ context.Context, doc *model.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.docs[doc.ID]; exists {
		return util.NewConflictError("document", doc.ID)
	}
	d.docs[doc.ID] = cloneDocument(doc)
	return nil
}

func (d *memoryDocuments) Get(_ context.Context, id string) (*model.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	doc, ok := d.docs[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (d *memoryDocuments) Update(_ context.Context, doc *model.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.docs[doc.ID]; !ok {
		return util.ErrNotFound
	}
	d.docs[doc.ID] = cloneDocument(doc)
	return nil
}

func (d *memoryDocuments) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.docs[id]; !ok {
		return util.ErrNotFound
	}
	delete(d.docs, id)
	delete(d.cells, id)
	delete(d.grants, id)
	delete(d.history, id)
	delete(d.webhooks, id)
	return nil
}

func (d *memoryDocuments) ListVisible(_ context.Context, userID string) ([]*model.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*model.Document
	for id, doc := range d.docs {
		visible := doc.CreatorID == userID || doc.Public
		if !visible {
			if docGrants, ok := d.grants[id]; ok {
				_, visible = docGrants[userID]
			}
		}
		if visible {
			out = append(out, cloneDocument(doc))
		}
	}

	sortDocumentsByUpdated(out)
	return out, nil
}

// memoryCells implements CellStore.
type memoryCells memoryStore

func (c *memoryCells) Get(_ context.Context, docID string, row, col int) (*model.Cell, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docCells, ok := c.cells[docID]
	if !ok {
		return nil, util.ErrNotFound
	}
	cell, ok := docCells[coord{row, col}]
	if !ok {
		return nil, util.ErrNotFound
	}
	return cloneCell(cell), nil
}

func (c *memoryCells) ListByDocument(_ context.Context, docID string) ([]*model.Cell, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docCells := c.cells[docID]
	out := make([]*model.Cell, 0, len(docCells))
	for _, cell := range docCells {
		out = append(out, cloneCell(cell))
	}
	sortCells(out)
	return out, nil
}

// memoryGrants implements GrantStore.
type memoryGrants memoryStore

func (g *memoryGrants) Upsert(_ context.Context, grant *model.Grant) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	docGrants, ok := g.grants[grant.DocumentID]
	if !ok {
		docGrants = make(map[string]*model.Grant)
		g.grants[grant.DocumentID] = docGrants
	}

	stored := cloneGrant(grant)
	existing, exists := docGrants[grant.UserID]
	if exists {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	docGrants[grant.UserID] = stored
	return !exists, nil
}

func (g *memoryGrants) Get(_ context.Context, userID, docID string) (*model.Grant, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	docGrants, ok := g.grants[docID]
	if !ok {
		return nil, util.ErrNotFound
	}
	grant, ok := docGrants[userID]
	if !ok {
		return nil, util.ErrNotFound
	}
	return cloneGrant(grant), nil
}

func (g *memoryGrants) Delete(_ context.Context, userID, docID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	docGrants, ok := g.grants[docID]
	if !ok {
		return util.ErrNotFound
	}
	if _, ok := docGrants[userID]; !ok {
		return util.ErrNotFound
	}
	delete(docGrants, userID)
	return nil
}

func (g *memoryGrants) ListByDocument(_ context.Context, docID string) ([]*model.Grant, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	docGrants := g.grants[docID]
	out := make([]*model.Grant, 0, len(docGrants))
	for _, grant := range docGrants {
		out = append(out, cloneGrant(grant))
	}
	sortGrants(out)
	return out, nil
}

// memoryHistory implements HistoryStore.
type memoryHistory memoryStore

func (h *memoryHistory) ListByCell(_ context.Context, docID string, row, col, limit, offset int) ([]*model.CellChangeRecord, int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	all := h.history[docID]
	var matched []*model.CellChangeRecord
	// Records are stored oldest-first; walk backwards for newest-first.
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Row == row && all[i].Col == col {
			matched = append(matched, all[i])
		}
	}

	total := len(matched)
	if offset >= total {
		return []*model.CellChangeRecord{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	out := make([]*model.CellChangeRecord, 0, end-offset)
	for _, rec := range matched[offset:end] {
		out = append(out, cloneRecord(rec))
	}
	return out, total, nil
}

func (h *memoryHistory) ListByDocument(_ context.Context, docID string, limit, offset int) ([]*model.CellChangeRecord, int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	all := h.history[docID]
	total := len(all)
	if offset >= total {
		return []*model.CellChangeRecord{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	// Records are stored oldest-first; walk backwards for newest-first.
	out := make([]*model.CellChangeRecord, 0, end-offset)
	for i := total - 1 - offset; i >= total-end; i-- {
		out = append(out, cloneRecord(all[i]))
	}
	return out, total, nil
}

// memoryGroups implements GroupStore.
type memoryGroups memoryStore

func (g *memoryGroups) Create(_ context.Context, group *model.Group) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.groups[group.ID]; exists {
		return util.NewConflictError("group", group.ID)
	}
	cp := *group
	g.groups[group.ID] = &cp
	g.members[group.ID] = make(map[string]struct{})
	return nil
}

func (g *memoryGroups) Get(_ context.Context, id string) (*model.Group, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	group, ok := g.groups[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	cp := *group
	return &cp, nil
}

func (g *memoryGroups) List(_ context.Context) ([]*model.Group, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*model.Group, 0, len(g.groups))
	for _, group := range g.groups {
		cp := *group
		out = append(out, &cp)
	}
	sortGroups(out)
	return out, nil
}

func (g *memoryGroups) Delete(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.groups[id]; !ok {
		return util.ErrNotFound
	}
	delete(g.groups, id)
	delete(g.members, id)
	return nil
}

func (g *memoryGroups) AddMember(_ context.Context, groupID, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	members, ok := g.members[groupID]
	if !ok {
		return util.ErrNotFound
	}
	members[userID] = struct{}{}
	return nil
}

func (g *memoryGroups) RemoveMember(_ context.Context, groupID, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	members, ok := g.members[groupID]
	if !ok {
		return util.ErrNotFound
	}
	delete(members, userID)
	return nil
}

func (g *memoryGroups) Members(_ context.Context, groupID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	members, ok := g.members[groupID]
	if !ok {
		return nil, util.ErrNotFound
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sortStrings(out)
	return out, nil
}

// memoryTemplates implements TemplateStore.
type memoryTemplates memoryStore

func (t *memoryTemplates) Create(_ context.Context, tpl *model.Template) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.templates[tpl.ID]; exists {
		return util.NewConflictError("template", tpl.ID)
	}
	t.templates[tpl.ID] = cloneTemplate(tpl)
	return nil
}

func (t *memoryTemplates) Get(_ context.Context, id string) (*model.Template, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tpl, ok := t.templates[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	return cloneTemplate(tpl), nil
}

func (t *memoryTemplates) ListActive(_ context.Context) ([]*model.Template, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*model.Template, 0, len(t.templates))
	for _, tpl := range t.templates {
		if tpl.Active {
			out = append(out, cloneTemplate(tpl))
		}
	}
	sortTemplates(out)
	return out, nil
}

func (t *memoryTemplates) Delete(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.templates[id]; !ok {
		return util.ErrNotFound
	}
	delete(t.templates, id)
	return nil
}

// memoryWebhooks implements WebhookStore.
type memoryWebhooks memoryStore

func (w *memoryWebhooks) Upsert(_ context.Context, mapping *model.WebhookMapping) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.docs[mapping.DocumentID]; !ok {
		return false, util.ErrNotFound
	}

	stored := cloneMapping(mapping)
	existing, exists := w.webhooks[mapping.DocumentID]
	if exists {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	w.webhooks[mapping.DocumentID] = stored
	return !exists, nil
}

func (w *memoryWebhooks) GetByDocument(_ context.Context, docID string) (*model.WebhookMapping, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	mapping, ok := w.webhooks[docID]
	if !ok {
		return nil, util.ErrNotFound
	}
	return cloneMapping(mapping), nil
}

func (w *memoryWebhooks) Delete(_ context.Context, docID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.webhooks[docID]; !ok {
		return util.ErrNotFound
	}
	delete(w.webhooks, docID)
	return nil
}

func (w *memoryWebhooks) ListActive(_ context.Context) ([]*model.WebhookMapping, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]*model.WebhookMapping, 0, len(w.webhooks))
	for _, mapping := range w.webhooks {
		if mapping.Active {
			out = append(out, cloneMapping(mapping))
		}
	}
	sortMappings(out)
	return out, nil
}

// memoryUsers implements UserStore.
type memoryUsers memoryStore

func (u *memoryUsers) Create(_ context.Context, user *model.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, exists := u.users[user.ID]; exists {
		return util.NewConflictError("user", user.ID)
	}
	if _, exists := u.emails[user.Email]; exists {
		return util.NewConflictError("user email", user.Email)
	}
	cp := *user
	u.users[user.ID] = &cp
	u.emails[user.Email] = user.ID
	return nil
}

func (u *memoryUsers) Get(_ context.Context, id string) (*model.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.users[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (u *memoryUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	id, ok := u.emails[email]
	if !ok {
		return nil, util.ErrNotFound
	}
	cp := *u.users[id]
	return &cp, nil
}

// Clone helpers keep callers from aliasing stored maps.

func cloneDocument(doc *model.Document) *model.Document {
	cp := *doc
	if doc.Settings != nil {
		cp.Settings = make(map[string]any, len(doc.Settings))
		for k, v := range doc.Settings {
			cp.Settings[k] = v
		}
	}
	return &cp
}

func cloneCell(cell *model.Cell) *model.Cell {
	cp := *cell
	cp.Format = cloneFormat(cell.Format)
	return &cp
}

func cloneGrant(grant *model.Grant) *model.Grant {
	cp := *grant
	cp.Rows = grant.Rows.Clone()
	cp.Cols = grant.Cols.Clone()
	return &cp
}

func cloneRecord(rec *model.CellChangeRecord) *model.CellChangeRecord {
	cp := *rec
	cp.OldFormat = cloneFormat(rec.OldFormat)
	cp.NewFormat = cloneFormat(rec.NewFormat)
	return &cp
}

func cloneTemplate(tpl *model.Template) *model.Template {
	cp := *tpl
	if tpl.Cells != nil {
		cp.Cells = make([]model.TemplateCell, len(tpl.Cells))
		for i, cell := range tpl.Cells {
			cell.Format = cloneFormat(cell.Format)
			cp.Cells[i] = cell
		}
	}
	return &cp
}

func cloneMapping(mapping *model.WebhookMapping) *model.WebhookMapping {
	cp := *mapping
	if mapping.Keys != nil {
		cp.Keys = append([]string(nil), mapping.Keys...)
	}
	return &cp
}

func cloneFormat(format map[string]string) map[string]string {
	if format == nil {
		return nil
	}
	cp := make(map[string]string, len(format))
	for k, v := range format {
		cp[k] = v
	}
	return cp
}
