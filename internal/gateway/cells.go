package gateway

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/mutation"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

type updateCellRequest struct {
	Value   *string           `json:"value"`
	Formula *string           `json:"formula"`
	Format  map[string]string `json:"format"`
}

type formatCellsRequest struct {
	RowFrom int               `json:"rowFrom"`
	RowTo   int               `json:"rowTo"`
	ColFrom int               `json:"colFrom"`
	ColTo   int               `json:"colTo"`
	Format  map[string]string `json:"format" binding:"required"`
}

func cellCoords(c *gin.Context) (int, int, error) {
	row, err := strconv.Atoi(c.Param("row"))
	if err != nil {
		return 0, 0, util.NewValidationError("row must be an integer")
	}
	col, err := strconv.Atoi(c.Param("col"))
	if err != nil {
		return 0, 0, util.NewValidationError("col must be an integer")
	}
	if row < 0 || col < 0 {
		return 0, 0, util.NewValidationError("row and col must be non-negative")
	}
	return row, col, nil
}

// listCells returns the document's occupied cells, filtered down to the ones
// the caller's restrictions admit.
func (g *Gateway) listCells(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	res, err := g.resolver.Resolve(c.Request.Context(), user.ID, docID)
	if err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}

	cells, err := g.store.Cells().ListByDocument(c.Request.Context(), docID)
	if err != nil {
		g.writeError(c, err)
		return
	}

	visible := make([]*model.Cell, 0, len(cells))
	for _, cell := range cells {
		if res.Rows.Admits(cell.Row) && res.Cols.Admits(cell.Col) {
			visible = append(visible, cell)
		}
	}
	c.JSON(http.StatusOK, gin.H{"cells": visible})
}

func (g *Gateway) getCell(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	row, col, err := cellCoords(c)
	if err != nil {
		g.writeError(c, err)
		return
	}

	res, err := g.resolver.CheckCellAccess(c.Request.Context(), user.ID, docID, row, col)
	if err != nil {
		g.writeError(c, err)
		return
	}
	if !res.Allowed {
		g.denyAndWrite(c, user, docID, util.NewAccessError(user.ID, docID, "cell is outside the granted range"))
		return
	}

	cell, err := g.store.Cells().Get(c.Request.Context(), docID, row, col)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cell)
}

func (g *Gateway) putCell(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	row, col, err := cellCoords(c)
	if err != nil {
		g.writeError(c, err)
		return
	}

	var req updateCellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.writeError(c, util.NewValidationError(err.Error()))
		return
	}

	cell, record, err := g.pipeline.UpdateCell(c.Request.Context(), user.ID, docID, row, col, mutation.CellChange{
		Value:   req.Value,
		Formula: req.Formula,
		Format:  req.Format,
	})
	if err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cell": cell, "record": record})
}

func (g *Gateway) deleteCell(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	row, col, err := cellCoords(c)
	if err != nil {
		g.writeError(c, err)
		return
	}

	record, err := g.pipeline.DeleteCell(c.Request.Context(), user.ID, docID, row, col)
	if err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": record})
}

func (g *Gateway) cellHistory(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	row, col, err := cellCoords(c)
	if err != nil {
		g.writeError(c, err)
		return
	}

	res, err := g.resolver.CheckCellAccess(c.Request.Context(), user.ID, docID, row, col)
	if err != nil {
		g.writeError(c, err)
		return
	}
	if !res.Allowed {
		g.denyAndWrite(c, user, docID, util.NewAccessError(user.ID, docID, "cell is outside the granted range"))
		return
	}

	limit, offset, err := g.historyPage(c)
	if err != nil {
		g.writeError(c, err)
		return
	}

	records, total, err := g.pipeline.History(c.Request.Context(), docID, row, col, limit, offset)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// documentHistory returns change records across the whole document. It
// requires read access without restriction filtering: per-cell restrictions
// scope edits, not the audit trail of documents the user can open.
func (g *Gateway) documentHistory(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	if _, err := g.resolver.Resolve(c.Request.Context(), user.ID, docID); err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}

	limit, offset, err := g.historyPage(c)
	if err != nil {
		g.writeError(c, err)
		return
	}

	records, total, err := g.pipeline.DocumentHistory(c.Request.Context(), docID, limit, offset)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// historyPage reads limit/offset query parameters, clamping limit to the
// configured maximum.
func (g *Gateway) historyPage(c *gin.Context) (int, int, error) {
	limit := g.cfg.History.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, 0, util.NewValidationError("limit must be a positive integer")
		}
		limit = parsed
	}
	if limit > g.cfg.History.MaxLimit {
		limit = g.cfg.History.MaxLimit
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, util.NewValidationError("offset must be a non-negative integer")
		}
		offset = parsed
	}
	return limit, offset, nil
}

func (g *Gateway) formatCells(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	var req formatCellsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.writeError(c, util.NewValidationError(err.Error()))
		return
	}

	records, err := g.pipeline.FormatCells(c.Request.Context(), user.ID, docID,
		req.RowFrom, req.RowTo, req.ColFrom, req.ColTo, req.Format)
	if err != nil {
		// Range formatting is not atomic: report what was applied
		// before the failure alongside the error.
		status, code := classifyError(err)
		c.AbortWithStatusJSON(status, gin.H{
			"error":   errorResponse{Code: code, Message: err.Error()},
			"records": records,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
