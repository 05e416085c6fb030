package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/avasheets/internal/audit"
	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

type createTemplateRequest struct {
	Name        string               `json:"name" binding:"required"`
	Description string               `json:"description"`
	Category    string               `json:"category" binding:"required"`
	Rows        int                  `json:"rows"`
	Cols        int                  `json:"cols"`
	Cells       []model.TemplateCell `json:"cells"`
}

type instantiateTemplateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

// listTemplates returns active templates grouped by category.
func (g *Gateway) listTemplates(c *gin.Context) {
	tpls, err := g.store.Templates().ListActive(c.Request.Context())
	if err != nil {
		g.writeError(c, err)
		return
	}

	grouped := make(map[string][]*model.Template)
	for _, tpl := range tpls {
		grouped[tpl.Category] = append(grouped[tpl.Category], tpl)
	}
	c.JSON(http.StatusOK, gin.H{"templates": grouped, "total": len(tpls)})
}

func (g *Gateway) getTemplate(c *gin.Context) {
	tpl, err := g.store.Templates().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (g *Gateway) createTemplate(c *gin.Context) {
	user, ok := g.requireAdminRole(c, "template")
	if !ok {
		return
	}

	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.writeError(c, util.NewValidationError(err.Error()))
		return
	}
	if req.Rows < 0 || req.Cols < 0 {
		g.writeError(c, util.NewValidationError("rows and cols must be non-negative"))
		return
	}
	if req.Rows == 0 {
		req.Rows = defaultRows
	}
	if req.Cols == 0 {
		req.Cols = defaultCols
	}
	for _, cell := range req.Cells {
		if cell.Row < 0 || cell.Col < 0 || cell.Row >= req.Rows || cell.Col >= req.Cols {
			g.writeError(c, util.NewValidationError("template cells must lie within the template dimensions"))
			return
		}
	}

	now := time.Now().UTC()
	tpl := &model.Template{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Cells:       req.Cells,
		Rows:        req.Rows,
		Cols:        req.Cols,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.store.Templates().Create(c.Request.Context(), tpl); err != nil {
		g.writeError(c, err)
		return
	}

	g.audit.LogAdministrative(c.Request.Context(), audit.ActionTemplateCreate, audit.OutcomeSuccess,
		&audit.Subject{UserID: user.ID, Email: user.Email},
		&audit.Resource{Type: "template"})
	g.logger.Info("template created",
		observability.String("templateId", tpl.ID),
		observability.String("category", tpl.Category),
		observability.String("actor", user.ID))
	c.JSON(http.StatusCreated, tpl)
}

func (g *Gateway) deleteTemplate(c *gin.Context) {
	user, ok := g.requireAdminRole(c, "template")
	if !ok {
		return
	}

	if err := g.store.Templates().Delete(c.Request.Context(), c.Param("id")); err != nil {
		g.writeError(c, err)
		return
	}

	g.audit.LogAdministrative(c.Request.Context(), audit.ActionTemplateDelete, audit.OutcomeSuccess,
		&audit.Subject{UserID: user.ID, Email: user.Email},
		&audit.Resource{Type: "template"})
	c.Status(http.StatusNoContent)
}

// createFromTemplate instantiates a template into a new document owned by
// the caller, seeded with the template's pre-filled cells.
func (g *Gateway) createFromTemplate(c *gin.Context) {
	user := currentUser(c)

	tpl, err := g.store.Templates().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.writeError(c, err)
		return
	}

	var req instantiateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.writeError(c, util.NewValidationError(err.Error()))
		return
	}
	description := req.Description
	if description == "" {
		description = tpl.Description
	}

	now := time.Now().UTC()
	doc := &model.Document{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: description,
		CreatorID:   user.ID,
		Public:      req.Public,
		Rows:        tpl.Rows,
		Cols:        tpl.Cols,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.store.Documents().Create(c.Request.Context(), doc); err != nil {
		g.writeError(c, err)
		return
	}

	if err := g.pipeline.SeedCells(c.Request.Context(), user.ID, doc.ID, tpl.Cells); err != nil {
		g.writeError(c, err)
		return
	}

	g.audit.LogAdministrative(c.Request.Context(), audit.ActionDocumentCreate, audit.OutcomeSuccess,
		&audit.Subject{UserID: user.ID, Email: user.Email},
		&audit.Resource{Type: "document", DocumentID: doc.ID})
	g.logger.Info("document created from template",
		observability.String("documentId", doc.ID),
		observability.String("templateId", tpl.ID),
		observability.String("actor", user.ID))
	c.JSON(http.StatusCreated, gin.H{"document": doc, "seededCells": len(tpl.Cells)})
}
