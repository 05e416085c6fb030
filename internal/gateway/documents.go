package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/avasheets/internal/access"
	"github.com/vyrodovalexey/avasheets/internal/audit"
	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

// Default dimensions for documents created without explicit size.
const (
	defaultRows = 100
	defaultCols = 26
)

type createDocumentRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`
}

type updateDocumentRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Public      *bool   `json:"public"`
}

type resizeRequest struct {
	Kind  string `json:"kind" binding:"required"`
	Index int    `json:"index"`
	Size  int    `json:"size" binding:"required"`
}

// listDocuments returns documents visible to the caller: their own, public
// ones, and ones they hold a grant on.
func (g *Gateway) listDocuments(c *gin.Context) {
	user := currentUser(c)

	docs, err := g.store.Documents().ListVisible(c.Request.Context(), user.ID)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (g *Gateway) createDocument(c *gin.Context) {
	user := currentUser(c)

	var req createDocumentRequest
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

	now := time.Now().UTC()
	doc := &model.Document{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		CreatorID:   user.ID,
		Public:      req.Public,
		Rows:        req.Rows,
		Cols:        req.Cols,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.store.Documents().Create(c.Request.Context(), doc); err != nil {
		g.writeError(c, err)
		return
	}

	g.audit.LogAdministrative(c.Request.Context(), audit.ActionDocumentCreate, audit.OutcomeSuccess,
		&audit.Subject{UserID: user.ID, Email: user.Email},
		&audit.Resource{Type: "document", DocumentID: doc.ID})
	c.JSON(http.StatusCreated, doc)
}

// getDocument returns the document to grant holders, the creator, and, for
// public documents, any authenticated user.
func (g *Gateway) getDocument(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	doc, err := g.store.Documents().Get(c.Request.Context(), docID)
	if err != nil {
		g.writeError(c, err)
		return
	}

	if !doc.Public {
		if _, err := g.resolver.Resolve(c.Request.Context(), user.ID, docID); err != nil {
			g.denyAndWrite(c, user, docID, err)
			return
		}
	}
	c.JSON(http.StatusOK, doc)
}

func (g *Gateway) updateDocument(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	var req updateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.writeError(c, util.NewValidationError(err.Error()))
		return
	}

	if _, err := g.resolver.Require(c.Request.Context(), user.ID, docID, model.PermissionWrite); err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}

	doc, err := g.store.Documents().Get(c.Request.Context(), docID)
	if err != nil {
		g.writeError(c, err)
		return
	}
	if req.Name != nil {
		if *req.Name == "" {
			g.writeError(c, util.NewValidationError("name must not be empty"))
			return
		}
		doc.Name = *req.Name
	}
	if req.Description != nil {
		doc.Description = *req.Description
	}
	if req.Public != nil {
		doc.Public = *req.Public
	}
	doc.UpdatedAt = time.Now().UTC()

	if err := g.store.Documents().Update(c.Request.Context(), doc); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// deleteDocument is owner-only and cascades to cells, grants, and history.
func (g *Gateway) deleteDocument(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	if _, err := g.resolver.Require(c.Request.Context(), user.ID, docID, model.PermissionOwner); err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}

	if err := g.store.Documents().Delete(c.Request.Context(), docID); err != nil {
		g.writeError(c, err)
		return
	}

	g.audit.LogAdministrative(c.Request.Context(), audit.ActionDocumentDelete, audit.OutcomeSuccess,
		&audit.Subject{UserID: user.ID, Email: user.Email},
		&audit.Resource{Type: "document", DocumentID: docID})
	c.Status(http.StatusNoContent)
}

func (g *Gateway) addRow(c *gin.Context) {
	g.growDocument(c, func(doc *model.Document) { doc.Rows++ })
}

func (g *Gateway) addColumn(c *gin.Context) {
	g.growDocument(c, func(doc *model.Document) { doc.Cols++ })
}

// growDocument bumps a document dimension, admin and above.
func (g *Gateway) growDocument(c *gin.Context, grow func(*model.Document)) {
	user := currentUser(c)
	docID := c.Param("id")

	if _, err := g.resolver.Require(c.Request.Context(), user.ID, docID, model.PermissionAdmin); err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}

	doc, err := g.store.Documents().Get(c.Request.Context(), docID)
	if err != nil {
		g.writeError(c, err)
		return
	}
	grow(doc)
	doc.UpdatedAt = time.Now().UTC()

	if err := g.store.Documents().Update(c.Request.Context(), doc); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// resize stores a row or column display size in the document settings.
// Resizing mutates the document, so it requires write access.
func (g *Gateway) resize(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	var req resizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.writeError(c, util.NewValidationError(err.Error()))
		return
	}
	if req.Kind != "row" && req.Kind != "col" {
		g.writeError(c, util.NewValidationError("kind must be row or col"))
		return
	}
	if req.Index < 0 || req.Size <= 0 {
		g.writeError(c, util.NewValidationError("index must be non-negative and size positive"))
		return
	}

	if _, err := g.resolver.Require(c.Request.Context(), user.ID, docID, model.PermissionWrite); err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}

	doc, err := g.store.Documents().Get(c.Request.Context(), docID)
	if err != nil {
		g.writeError(c, err)
		return
	}
	if doc.Settings == nil {
		doc.Settings = make(map[string]any)
	}
	doc.Settings[fmt.Sprintf("%sSize:%d", req.Kind, req.Index)] = req.Size
	doc.UpdatedAt = time.Now().UTC()

	if err := g.store.Documents().Update(c.Request.Context(), doc); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// denyAndWrite audits authorization denials before rendering the error.
func (g *Gateway) denyAndWrite(c *gin.Context, user *model.User, docID string, err error) {
	if errors.Is(err, util.ErrForbidden) || errors.Is(err, access.ErrNoAccess) {
		g.audit.LogAuthorization(c.Request.Context(), audit.OutcomeDenied,
			&audit.Subject{UserID: user.ID, Email: user.Email},
			&audit.Resource{Type: "document", DocumentID: docID})
	}
	g.writeError(c, err)
}
