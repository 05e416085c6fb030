package access

import (
	"context"
	"time"

	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/store"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

// Bridge performs bulk grant administration: granting a whole group access to
// a document and copying a document's grants onto another document.
//
// Bulk operations are not transactional across grants. A failure partway
// through leaves the grants written so far in place; the returned count says
// how many were applied.
type Bridge struct {
	docs   store.DocumentStore
	grants store.GrantStore
	groups store.GroupStore
	logger observability.Logger
}

// NewBridge creates a bridge over the given store.
func NewBridge(s store.Store, logger observability.Logger) *Bridge {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Bridge{
		docs:   s.Documents(),
		grants: s.Grants(),
		groups: s.Groups(),
		logger: logger,
	}
}

// SetGroupSheetAccess upserts a grant with the given level and restrictions
// for every member of the group, and returns how many grants were applied.
// Members who already hold a grant on the document have it replaced.
func (b *Bridge) SetGroupSheetAccess(ctx context.Context, groupID, docID string, level model.PermissionLevel, rows, cols *model.RestrictionSet) (int, error) {
	if !level.Valid() {
		return 0, util.NewValidationError("permission level must be read, write, or admin")
	}
	if _, err := b.docs.Get(ctx, docID); err != nil {
		return 0, err
	}

	members, err := b.groups.Members(ctx, groupID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	applied := 0
	for _, userID := range members {
		grant := &model.Grant{
			UserID:     userID,
			DocumentID: docID,
			Level:      level,
			Rows:       rows.Clone(),
			Cols:       cols.Clone(),
			UpdatedAt:  now,
		}
		if _, err := b.grants.Upsert(ctx, grant); err != nil {
			b.logger.Error("group access grant failed",
				observability.String("groupId", groupID),
				observability.String("documentId", docID),
				observability.String("userId", userID),
				observability.Error(err))
			return applied, err
		}
		applied++
	}

	b.logger.Info("group access applied",
		observability.String("groupId", groupID),
		observability.String("documentId", docID),
		observability.String("level", string(level)),
		observability.Int("members", applied))
	return applied, nil
}

// CopySheetAccess copies every grant of the source document onto the
// destination document, preserving levels and restrictions, and returns how
// many grants were copied. Existing destination grants for the same users
// are replaced; a user appearing on both documents counts once.
func (b *Bridge) CopySheetAccess(ctx context.Context, srcDocID, dstDocID string) (int, error) {
	if srcDocID == dstDocID {
		return 0, util.NewValidationError("source and destination documents must differ")
	}
	if _, err := b.docs.Get(ctx, srcDocID); err != nil {
		return 0, err
	}
	if _, err := b.docs.Get(ctx, dstDocID); err != nil {
		return 0, err
	}

	grants, err := b.grants.ListByDocument(ctx, srcDocID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	copied := 0
	for _, src := range grants {
		grant := &model.Grant{
			UserID:     src.UserID,
			DocumentID: dstDocID,
			Level:      src.Level,
			Rows:       src.Rows.Clone(),
			Cols:       src.Cols.Clone(),
			UpdatedAt:  now,
		}
		if _, err := b.grants.Upsert(ctx, grant); err != nil {
			b.logger.Error("access copy failed",
				observability.String("srcDocumentId", srcDocID),
				observability.String("dstDocumentId", dstDocID),
				observability.String("userId", src.UserID),
				observability.Error(err))
			return copied, err
		}
		copied++
	}

	b.logger.Info("access copied",
		observability.String("srcDocumentId", srcDocID),
		observability.String("dstDocumentId", dstDocID),
		observability.Int("grants", copied))
	return copied, nil
}
