package store

import (
	"sort"

	"github.com/vyrodovalexey/avasheets/internal/model"
)

// Listing order is deterministic across backends: documents newest-updated
// first, cells in row-major order, everything else by natural key.

func sortDocumentsByUpdated(docs []*model.Document) {
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
}

func sortCells(cells []*model.Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
}

func sortGrants(grants []*model.Grant) {
	sort.Slice(grants, func(i, j int) bool { return grants[i].UserID < grants[j].UserID })
}

func sortGroups(groups []*model.Group) {
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
}

func sortTemplates(tpls []*model.Template) {
	sort.Slice(tpls, func(i, j int) bool {
		if tpls[i].Category != tpls[j].Category {
			return tpls[i].Category < tpls[j].Category
		}
		return tpls[i].Name < tpls[j].Name
	})
}

func sortMappings(mappings []*model.WebhookMapping) {
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].DocumentID < mappings[j].DocumentID
	})
}

func sortStrings(vals []string) {
	sort.Strings(vals)
}

func sortRecordsNewestFirst(recs []*model.CellChangeRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID > recs[j].ID
	})
}
