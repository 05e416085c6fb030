package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avasheets/internal/config"
	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

// defaultKeyPrefix namespaces all keys of this service in a shared Redis.
const defaultKeyPrefix = "avasheets"

// redisStore is a Redis-backed implementation of Store. Entities are stored
// as JSON values; cells and grants live in per-document hashes, history in
// per-cell lists (newest first).
type redisStore struct {
	logger observability.Logger
	client *redis.Client
	prefix string
}

// newRedisStore creates a Redis store from configuration and verifies the
// connection with a ping.
func newRedisStore(cfg *config.RedisConfig, logger observability.Logger) (*redisStore, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("%w: redis URL is required", ErrInvalidConfig)
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, util.NewStoreError("redis ping", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	s := &redisStore{
		logger: logger,
		client: client,
		prefix: prefix,
	}

	logger.Info("redis store initialized",
		observability.String("keyPrefix", prefix))

	return s, nil
}

func (s *redisStore) Documents() DocumentStore { return (*redisDocuments)(s) }
func (s *redisStore) Cells() CellStore         { return (*redisCells)(s) }
func (s *redisStore) Grants() GrantStore       { return (*redisGrants)(s) }
func (s *redisStore) History() HistoryStore    { return (*redisHistory)(s) }
func (s *redisStore) Groups() GroupStore       { return (*redisGroups)(s) }
func (s *redisStore) Users() UserStore         { return (*redisUsers)(s) }
func (s *redisStore) Templates() TemplateStore { return (*redisTemplates)(s) }
func (s *redisStore) Webhooks() WebhookStore   { return (*redisWebhooks)(s) }

func (s *redisStore) Close() error {
	return s.client.Close()
}

// Key builders.

func (s *redisStore) docKey(id string) string     { return s.prefix + ":doc:" + id }
func (s *redisStore) docsKey() string             { return s.prefix + ":docs" }
func (s *redisStore) cellsKey(doc string) string  { return s.prefix + ":cells:" + doc }
func (s *redisStore) grantsKey(doc string) string { return s.prefix + ":grants:" + doc }
func (s *redisStore) userDocsKey(u string) string { return s.prefix + ":usergrants:" + u }
func (s *redisStore) groupKey(id string) string   { return s.prefix + ":group:" + id }
func (s *redisStore) groupsKey() string           { return s.prefix + ":groups" }
func (s *redisStore) membersKey(id string) string { return s.prefix + ":groupmembers:" + id }
func (s *redisStore) userKey(id string) string    { return s.prefix + ":user:" + id }
func (s *redisStore) emailKey(e string) string    { return s.prefix + ":email:" + e }
func (s *redisStore) tmplKey(id string) string    { return s.prefix + ":template:" + id }
func (s *redisStore) tmplsKey() string            { return s.prefix + ":templates" }
func (s *redisStore) hookKey(doc string) string   { return s.prefix + ":webhook:" + doc }
func (s *redisStore) hooksKey() string            { return s.prefix + ":webhooks" }
func (s *redisStore) histKeysKey(doc string) string {
	return s.prefix + ":historykeys:" + doc
}
func (s *redisStore) historyKey(doc string, row, col int) string {
	return fmt.Sprintf("%s:history:%s:%d:%d", s.prefix, doc, row, col)
}

func cellField(row, col int) string { return fmt.Sprintf("%d:%d", row, col) }

// ApplyCellChange applies the cell write and history append in one MULTI/EXEC
// transaction so neither persists without the other.
func (s *redisStore) ApplyCellChange(ctx context.Context, mut CellMutation) error {
	if err := mut.Validate(); err != nil {
		return util.NewStoreError("apply cell change", err)
	}

	rec := mut.Record

	exists, err := s.client.Exists(ctx, s.docKey(rec.DocumentID)).Result()
	if err != nil {
		return util.NewStoreError("apply cell change", err)
	}
	if exists == 0 {
		return util.ErrNotFound
	}

	recData, err := json.Marshal(rec)
	if err != nil {
		return util.NewStoreError("apply cell change", err)
	}

	histKey := s.historyKey(rec.DocumentID, rec.Row, rec.Col)

	pipe := s.client.TxPipeline()
	if mut.Delete {
		pipe.HDel(ctx, s.cellsKey(rec.DocumentID), cellField(rec.Row, rec.Col))
	} else {
		cellData, err := json.Marshal(mut.Cell)
		if err != nil {
			return util.NewStoreError("apply cell change", err)
		}
		pipe.HSet(ctx, s.cellsKey(mut.Cell.DocumentID), cellField(mut.Cell.Row, mut.Cell.Col), cellData)
	}
	pipe.LPush(ctx, histKey, recData)
	pipe.SAdd(ctx, s.histKeysKey(rec.DocumentID), histKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return util.NewStoreError("apply cell change", err)
	}
	return nil
}

// redisDocuments implements DocumentStore.
type redisDocuments redisStore

func (d *redisDocuments) Create(ctx context.Context, doc *model.Document) error {
	s := (*redisStore)(d)

	data, err := json.Marshal(doc)
	if err != nil {
		return util.NewStoreError("create document", err)
	}

	ok, err := s.client.SetNX(ctx, s.docKey(doc.ID), data, 0).Result()
	if err != nil {
		return util.NewStoreError("create document", err)
	}
	if !ok {
		return util.NewConflictError("document", doc.ID)
	}
	if err := s.client.SAdd(ctx, s.docsKey(), doc.ID).Err(); err != nil {
		return util.NewStoreError("create document", err)
	}
	return nil
}

func (d *redisDocuments) Get(ctx context.Context, id string) (*model.Document, error) {
	s := (*redisStore)(d)

	data, err := s.client.Get(ctx, s.docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, util.NewStoreError("get document", err)
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, util.NewStoreError("get document", err)
	}
	return &doc, nil
}

func (d *redisDocuments) Update(ctx context.Context, doc *model.Document) error {
	s := (*redisStore)(d)

	exists, err := s.client.Exists(ctx, s.docKey(doc.ID)).Result()
	if err != nil {
		return util.NewStoreError("update document", err)
	}
	if exists == 0 {
		return util.ErrNotFound
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return util.NewStoreError("update document", err)
	}
	if err := s.client.Set(ctx, s.docKey(doc.ID), data, 0).Err(); err != nil {
		return util.NewStoreError("update document", err)
	}
	return nil
}

func (d *redisDocuments) Delete(ctx context.Context, id string) error {
	s := (*redisStore)(d)

	exists, err := s.client.Exists(ctx, s.docKey(id)).Result()
	if err != nil {
		return util.NewStoreError("delete document", err)
	}
	if exists == 0 {
		return util.ErrNotFound
	}

	// Collect grant holders and history keys first, then drop everything
	// in one transaction.
	holders, err := s.client.HKeys(ctx, s.grantsKey(id)).Result()
	if err != nil {
		return util.NewStoreError("delete document", err)
	}
	histKeys, err := s.client.SMembers(ctx, s.histKeysKey(id)).Result()
	if err != nil {
		return util.NewStoreError("delete document", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.docKey(id), s.cellsKey(id), s.grantsKey(id), s.histKeysKey(id), s.hookKey(id))
	if len(histKeys) > 0 {
		pipe.Del(ctx, histKeys...)
	}
	for _, userID := range holders {
		pipe.SRem(ctx, s.userDocsKey(userID), id)
	}
	pipe.SRem(ctx, s.docsKey(), id)
	pipe.SRem(ctx, s.hooksKey(), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return util.NewStoreError("delete document", err)
	}
	return nil
}

func (d *redisDocuments) ListVisible(ctx context.Context, userID string) ([]*model.Document, error) {
	s := (*redisStore)(d)

	ids, err := s.client.SMembers(ctx, s.docsKey()).Result()
	if err != nil {
		return nil, util.NewStoreError("list documents", err)
	}

	granted, err := s.client.SMembers(ctx, s.userDocsKey(userID)).Result()
	if err != nil {
		return nil, util.NewStoreError("list documents", err)
	}
	grantedSet := make(map[string]struct{}, len(granted))
	for _, id := range granted {
		grantedSet[id] = struct{}{}
	}

	var out []*model.Document
	for _, id := range ids {
		doc, err := d.Get(ctx, id)
		if errors.Is(err, util.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		_, hasGrant := grantedSet[id]
		if doc.CreatorID == userID || doc.Public || hasGrant {
			out = append(out, doc)
		}
	}

	sortDocumentsByUpdated(out)
	return out, nil
}

// redisCells implements CellStore.
type redisCells redisStore

func (c *redisCells) Get(ctx context.Context, docID string, row, col int) (*model.Cell, error) {
	s := (*redisStore)(c)

	data, err := s.client.HGet(ctx, s.cellsKey(docID), cellField(row, col)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, util.NewStoreError("get cell", err)
	}

	var cell model.Cell
	if err := json.Unmarshal(data, &cell); err != nil {
		return nil, util.NewStoreError("get cell", err)
	}
	return &cell, nil
}

func (c *redisCells) ListByDocument(ctx context.Context, docID string) ([]*model.Cell, error) {
	s := (*redisStore)(c)

	values, err := s.client.HVals(ctx, s.cellsKey(docID)).Result()
	if err != nil {
		return nil, util.NewStoreError("list cells", err)
	}

	out := make([]*model.Cell, 0, len(values))
	for _, v := range values {
		var cell model.Cell
		if err := json.Unmarshal([]byte(v), &cell); err != nil {
			return nil, util.NewStoreError("list cells", err)
		}
		out = append(out, &cell)
	}
	sortCells(out)
	return out, nil
}

// redisGrants implements GrantStore.
type redisGrants redisStore

func (g *redisGrants) Upsert(ctx context.Context, grant *model.Grant) (bool, error) {
	s := (*redisStore)(g)

	stored := *grant
	existing, err := g.Get(ctx, grant.UserID, grant.DocumentID)
	switch {
	case err == nil:
		stored.CreatedAt = existing.CreatedAt
	case errors.Is(err, util.ErrNotFound):
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
	default:
		return false, err
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return false, util.NewStoreError("upsert grant", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.grantsKey(grant.DocumentID), grant.UserID, data)
	pipe.SAdd(ctx, s.userDocsKey(grant.UserID), grant.DocumentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, util.NewStoreError("upsert grant", err)
	}
	return existing == nil, nil
}

func (g *redisGrants) Get(ctx context.Context, userID, docID string) (*model.Grant, error) {
	s := (*redisStore)(g)

	data, err := s.client.HGet(ctx, s.grantsKey(docID), userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, util.NewStoreError("get grant", err)
	}

	var grant model.Grant
	if err := json.Unmarshal(data, &grant); err != nil {
		return nil, util.NewStoreError("get grant", err)
	}
	return &grant, nil
}

func (g *redisGrants) Delete(ctx context.Context, userID, docID string) error {
	s := (*redisStore)(g)

	removed, err := s.client.HDel(ctx, s.grantsKey(docID), userID).Result()
	if err != nil {
		return util.NewStoreError("delete grant", err)
	}
	if removed == 0 {
		return util.ErrNotFound
	}
	if err := s.client.SRem(ctx, s.userDocsKey(userID), docID).Err(); err != nil {
		return util.NewStoreError("delete grant", err)
	}
	return nil
}

func (g *redisGrants) ListByDocument(ctx context.Context, docID string) ([]*model.Grant, error) {
	s := (*redisStore)(g)

	values, err := s.client.HVals(ctx, s.grantsKey(docID)).Result()
	if err != nil {
		return nil, util.NewStoreError("list grants", err)
	}

	out := make([]*model.Grant, 0, len(values))
	for _, v := range values {
		var grant model.Grant
		if err := json.Unmarshal([]byte(v), &grant); err != nil {
			return nil, util.NewStoreError("list grants", err)
		}
		out = append(out, &grant)
	}
	sortGrants(out)
	return out, nil
}

// redisHistory implements HistoryStore.
type redisHistory redisStore

func (h *redisHistory) ListByCell(ctx context.Context, docID string, row, col, limit, offset int) ([]*model.CellChangeRecord, int, error) {
	s := (*redisStore)(h)

	key := s.historyKey(docID, row, col)

	total, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return nil, 0, util.NewStoreError("cell history", err)
	}

	if int64(offset) >= total {
		return []*model.CellChangeRecord{}, int(total), nil
	}

	end := int64(-1)
	if limit > 0 {
		end = int64(offset+limit) - 1
	}

	// The list is LPUSHed, so index 0 is already the newest record.
	values, err := s.client.LRange(ctx, key, int64(offset), end).Result()
	if err != nil {
		return nil, 0, util.NewStoreError("cell history", err)
	}

	out := make([]*model.CellChangeRecord, 0, len(values))
	for _, v := range values {
		var rec model.CellChangeRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, 0, util.NewStoreError("cell history", err)
		}
		out = append(out, &rec)
	}
	return out, int(total), nil
}

// ListByDocument merges the per-cell history lists. Each list is short and
// the number of touched cells is bounded by the document size, so the merge
// happens in memory.
func (h *redisHistory) ListByDocument(ctx context.Context, docID string, limit, offset int) ([]*model.CellChangeRecord, int, error) {
	s := (*redisStore)(h)

	keys, err := s.client.SMembers(ctx, s.histKeysKey(docID)).Result()
	if err != nil {
		return nil, 0, util.NewStoreError("document history", err)
	}

	var all []*model.CellChangeRecord
	for _, key := range keys {
		values, err := s.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return nil, 0, util.NewStoreError("document history", err)
		}
		for _, v := range values {
			var rec model.CellChangeRecord
			if err := json.Unmarshal([]byte(v), &rec); err != nil {
				return nil, 0, util.NewStoreError("document history", err)
			}
			all = append(all, &rec)
		}
	}
	sortRecordsNewestFirst(all)

	total := len(all)
	if offset >= total {
		return []*model.CellChangeRecord{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// redisGroups implements GroupStore.
type redisGroups redisStore

func (g *redisGroups) Create(ctx context.Context, group *model.Group) error {
	s := (*redisStore)(g)

	data, err := json.Marshal(group)
	if err != nil {
		return util.NewStoreError("create group", err)
	}

	ok, err := s.client.SetNX(ctx, s.groupKey(group.ID), data, 0).Result()
	if err != nil {
		return util.NewStoreError("create group", err)
	}
	if !ok {
		return util.NewConflictError("group", group.ID)
	}
	if err := s.client.SAdd(ctx, s.groupsKey(), group.ID).Err(); err != nil {
		return util.NewStoreError("create group", err)
	}
	return nil
}

func (g *redisGroups) Get(ctx context.Context, id string) (*model.Group, error) {
	s := (*redisStore)(g)

	data, err := s.client.Get(ctx, s.groupKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, util.NewStoreError("get group", err)
	}

	var group model.Group
	if err := json.Unmarshal(data, &group); err != nil {
		return nil, util.NewStoreError("get group", err)
	}
	return &group, nil
}

func (g *redisGroups) List(ctx context.Context) ([]*model.Group, error) {
	s := (*redisStore)(g)

	ids, err := s.client.SMembers(ctx, s.groupsKey()).Result()
	if err != nil {
		return nil, util.NewStoreError("list groups", err)
	}

	out := make([]*model.Group, 0, len(ids))
	for _, id := range ids {
		group, err := g.Get(ctx, id)
		if errors.Is(err, util.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, group)
	}
	sortGroups(out)
	return out, nil
}

func (g *redisGroups) Delete(ctx context.Context, id string) error {
	s := (*redisStore)(g)

	exists, err := s.client.Exists(ctx, s.groupKey(id)).Result()
	if err != nil {
		return util.NewStoreError("delete group", err)
	}
	if exists == 0 {
		return util.ErrNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.groupKey(id), s.membersKey(id))
	pipe.SRem(ctx, s.groupsKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return util.NewStoreError("delete group", err)
	}
	return nil
}

func (g *redisGroups) AddMember(ctx context.Context, groupID, userID string) error {
	s := (*redisStore)(g)

	exists, err := s.client.Exists(ctx, s.groupKey(groupID)).Result()
	if err != nil {
		return util.NewStoreError("add group member", err)
	}
	if exists == 0 {
		return util.ErrNotFound
	}
	if err := s.client.SAdd(ctx, s.membersKey(groupID), userID).Err(); err != nil {
		return util.NewStoreError("add group member", err)
	}
	return nil
}

func (g *redisGroups) RemoveMember(ctx context.Context, groupID, userID string) error {
	s := (*redisStore)(g)

	exists, err := s.client.Exists(ctx, s.groupKey(groupID)).Result()
	if err != nil {
		return util.NewStoreError("remove group member", err)
	}
	if exists == 0 {
		return util.ErrNotFound
	}
	if err := s.client.SRem(ctx, s.membersKey(groupID), userID).Err(); err != nil {
		return util.NewStoreError("remove group member", err)
	}
	return nil
}

func (g *redisGroups) Members(ctx context.Context, groupID string) ([]string, error) {
	s := (*redisStore)(g)

	exists, err := s.client.Exists(ctx, s.groupKey(groupID)).Result()
	if err != nil {
		return nil, util.NewStoreError("group members", err)
	}
	if exists == 0 {
		return nil, util.ErrNotFound
	}

	members, err := s.client.SMembers(ctx, s.membersKey(groupID)).Result()
	if err != nil {
		return nil, util.NewStoreError("group members", err)
	}
	sortStrings(members)
	return members, nil
}

// redisTemplates implements TemplateStore.
type redisTemplates redisStore

func (t *redisTemplates) Create(ctx context.Context, tpl *model.Template) error {
	s := (*redisStore)(t)

	data, err := json.Marshal(tpl)
	if err != nil {
		return util.NewStoreError("create template", err)
	}

	ok, err := s.client.SetNX(ctx, s.tmplKey(tpl.ID), data, 0).Result()
	if err != nil {
		return util.NewStoreError("create template", err)
	}
	if !ok {
		return util.NewConflictError("template", tpl.ID)
	}
	if err := s.client.SAdd(ctx, s.tmplsKey(), tpl.ID).Err(); err != nil {
		return util.NewStoreError("create template", err)
	}
	return nil
}

func (t *redisTemplates) Get(ctx context.Context, id string) (*model.Template, error) {
	s := (*redisStore)(t)

	data, err := s.client.Get(ctx, s.tmplKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, util.NewStoreError("get template", err)
	}

	var tpl model.Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, util.NewStoreError("get template", err)
	}
	return &tpl, nil
}

func (t *redisTemplates) ListActive(ctx context.Context) ([]*model.Template, error) {
	s := (*redisStore)(t)

	ids, err := s.client.SMembers(ctx, s.tmplsKey()).Result()
	if err != nil {
		return nil, util.NewStoreError("list templates", err)
	}

	out := make([]*model.Template, 0, len(ids))
	for _, id := range ids {
		tpl, err := t.Get(ctx, id)
		if errors.Is(err, util.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if tpl.Active {
			out = append(out, tpl)
		}
	}
	sortTemplates(out)
	return out, nil
}

func (t *redisTemplates) Delete(ctx context.Context, id string) error {
	s := (*redisStore)(t)

	removed, err := s.client.Del(ctx, s.tmplKey(id)).Result()
	if err != nil {
		return util.NewStoreError("delete template", err)
	}
	if removed == 0 {
		return util.ErrNotFound
	}
	if err := s.client.SRem(ctx, s.tmplsKey(), id).Err(); err != nil {
		return util.NewStoreError("delete template", err)
	}
	return nil
}

// redisWebhooks implements WebhookStore.
type redisWebhooks redisStore

func (w *redisWebhooks) Upsert(ctx context.Context, mapping *model.WebhookMapping) (bool, error) {
	s := (*redisStore)(w)

	exists, err := s.client.Exists(ctx, s.docKey(mapping.DocumentID)).Result()
	if err != nil {
		return false, util.NewStoreError("upsert webhook mapping", err)
	}
	if exists == 0 {
		return false, util.ErrNotFound
	}

	stored := *mapping
	existing, err := w.GetByDocument(ctx, mapping.DocumentID)
	switch {
	case err == nil:
		stored.CreatedAt = existing.CreatedAt
	case errors.Is(err, util.ErrNotFound):
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
	default:
		return false, err
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return false, util.NewStoreError("upsert webhook mapping", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.hookKey(mapping.DocumentID), data, 0)
	pipe.SAdd(ctx, s.hooksKey(), mapping.DocumentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, util.NewStoreError("upsert webhook mapping", err)
	}
	return existing == nil, nil
}

func (w *redisWebhooks) GetByDocument(ctx context.Context, docID string) (*model.WebhookMapping, error) {
	s := (*redisStore)(w)

	data, err := s.client.Get(ctx, s.hookKey(docID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, util.NewStoreError("get webhook mapping", err)
	}

	var mapping model.WebhookMapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, util.NewStoreError("get webhook mapping", err)
	}
	return &mapping, nil
}

func (w *redisWebhooks) Delete(ctx context.Context, docID string) error {
	s := (*redisStore)(w)

	removed, err := s.client.Del(ctx, s.hookKey(docID)).Result()
	if err != nil {
		return util.NewStoreError("delete webhook mapping", err)
	}
	if removed == 0 {
		return util.ErrNotFound
	}
	if err := s.client.SRem(ctx, s.hooksKey(), docID).Err(); err != nil {
		return util.NewStoreError("delete webhook mapping", err)
	}
	return nil
}

func (w *redisWebhooks) ListActive(ctx context.Context) ([]*model.WebhookMapping, error) {
	s := (*redisStore)(w)

	ids, err := s.client.SMembers(ctx, s.hooksKey()).Result()
	if err != nil {
		return nil, util.NewStoreError("list webhook mappings", err)
	}

	out := make([]*model.WebhookMapping, 0, len(ids))
	for _, id := range ids {
		mapping, err := w.GetByDocument(ctx, id)
		if errors.Is(err, util.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if mapping.Active {
			out = append(out, mapping)
		}
	}
	sortMappings(out)
	return out, nil
}

// redisUsers implements UserStore.
type redisUsers redisStore

func (u *redisUsers) Create(ctx context.Context, user *model.User) error {
	s := (*redisStore)(u)

	data, err := json.Marshal(user)
	if err != nil {
		return util.NewStoreError("create user", err)
	}

	ok, err := s.client.SetNX(ctx, s.userKey(user.ID), data, 0).Result()
	if err != nil {
		return util.NewStoreError("create user", err)
	}
	if !ok {
		return util.NewConflictError("user", user.ID)
	}

	ok, err = s.client.SetNX(ctx, s.emailKey(user.Email), user.ID, 0).Result()
	if err != nil {
		return util.NewStoreError("create user", err)
	}
	if !ok {
		_ = s.client.Del(ctx, s.userKey(user.ID)).Err()
		return util.NewConflictError("user email", user.Email)
	}
	return nil
}

func (u *redisUsers) Get(ctx context.Context, id string) (*model.User, error) {
	s := (*redisStore)(u)

	data, err := s.client.Get(ctx, s.userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, util.NewStoreError("get user", err)
	}

	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, util.NewStoreError("get user", err)
	}
	return &user, nil
}

func (u *redisUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s := (*redisStore)(u)

	id, err := s.client.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, util.NewStoreError("get user by email", err)
	}
	return u.Get(ctx, id)
}
