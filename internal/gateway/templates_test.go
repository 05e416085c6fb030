package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avasheets/internal/model"
)

func TestTemplateEndpoints(t *testing.T) {
	g, st := newTestGateway(t)
	ctx := context.Background()

	// Only the admin role may manage templates.
	rec := doRequest(t, g, http.MethodPost, "/api/v1/templates", tokenBob, gin.H{
		"name": "budget", "category": "finance",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, g, http.MethodPost, "/api/v1/templates", tokenAlice, gin.H{
		"name":     "monthly budget",
		"category": "finance",
		"rows":     20,
		"cols":     6,
		"cells": []gin.H{
			{"row": 0, "col": 0, "value": "Month", "format": gin.H{"bold": "true"}},
			{"row": 0, "col": 1, "value": "Amount"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var tpl model.Template
	decodeBody(t, rec, &tpl)
	assert.True(t, tpl.Active)
	require.Len(t, tpl.Cells, 2)

	rec = doRequest(t, g, http.MethodPost, "/api/v1/templates", tokenAlice, gin.H{
		"name": "checkin report", "category": "booking",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Listing groups active templates by category.
	rec = doRequest(t, g, http.MethodGet, "/api/v1/templates", tokenBob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Templates map[string][]model.Template `json:"templates"`
		Total     int                         `json:"total"`
	}
	decodeBody(t, rec, &listing)
	assert.Equal(t, 2, listing.Total)
	require.Len(t, listing.Templates["finance"], 1)
	require.Len(t, listing.Templates["booking"], 1)

	rec = doRequest(t, g, http.MethodGet, "/api/v1/templates/"+tpl.ID, tokenBob, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Any authenticated user can instantiate a template.
	rec = doRequest(t, g, http.MethodPost, "/api/v1/templates/"+tpl.ID+"/documents", tokenBob, gin.H{
		"name": "my budget",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var instantiated struct {
		Document    model.Document `json:"document"`
		SeededCells int            `json:"seededCells"`
	}
	decodeBody(t, rec, &instantiated)
	assert.Equal(t, "bob", instantiated.Document.CreatorID)
	assert.Equal(t, 20, instantiated.Document.Rows)
	assert.Equal(t, 6, instantiated.Document.Cols)
	assert.Equal(t, 2, instantiated.SeededCells)

	cell, err := st.Cells().Get(ctx, instantiated.Document.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Month", cell.Value)
	assert.Equal(t, map[string]string{"bold": "true"}, cell.Format)

	records, total, err := st.History().ListByCell(ctx, instantiated.Document.ID, 0, 0, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, model.ChangeCreate, records[0].Kind)
	assert.Equal(t, "bob", records[0].ActorID)

	rec = doRequest(t, g, http.MethodDelete, "/api/v1/templates/"+tpl.ID, tokenBob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, g, http.MethodDelete, "/api/v1/templates/"+tpl.ID, tokenAlice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, g, http.MethodGet, "/api/v1/templates/"+tpl.ID, tokenBob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplateValidation(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := doRequest(t, g, http.MethodPost, "/api/v1/templates", tokenAlice, gin.H{
		"category": "finance",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Cells outside the template dimensions are rejected.
	rec = doRequest(t, g, http.MethodPost, "/api/v1/templates", tokenAlice, gin.H{
		"name": "tiny", "category": "misc", "rows": 2, "cols": 2,
		"cells": []gin.H{{"row": 5, "col": 0, "value": "x"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, g, http.MethodPost, "/api/v1/templates/missing/documents", tokenAlice, gin.H{
		"name": "from nowhere",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
