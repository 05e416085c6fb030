package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avasheets/internal/audit"
	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

type putGrantRequest struct {
	Level model.PermissionLevel `json:"level" binding:"required"`
	Rows  *model.RestrictionSet `json:"rows"`
	Cols  *model.RestrictionSet `json:"cols"`
}

type groupAccessRequest struct {
	GroupID string                `json:"groupId" binding:"required"`
	Level   model.PermissionLevel `json:"level" binding:"required"`
	Rows    *model.RestrictionSet `json:"rows"`
	Cols    *model.RestrictionSet `json:"cols"`
}

type copyAccessRequest struct {
	TargetDocumentID string `json:"targetDocumentId" binding:"required"`
}

// listGrants returns all grants on a document, admin and above.
func (g *Gateway) listGrants(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	if _, err := g.resolver.Require(c.Request.Context(), user.ID, docID, model.PermissionAdmin); err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}

	grants, err := g.store.Grants().ListByDocument(c.Request.Context(), docID)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grants": grants})
}

func (g *Gateway) putGrant(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")
	targetID := c.Param("userId")

	var req putGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.writeError(c, util.NewValidationError(err.Error()))
		return
	}
	if !req.Level.Valid() {
		g.writeError(c, util.NewValidationError("level must be read, write, or admin"))
		return
	}

	if _, err := g.resolver.Require(c.Request.Context(), user.ID, docID, model.PermissionAdmin); err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}

	doc, err := g.store.Documents().Get(c.Request.Context(), docID)
	if err != nil {
		g.writeError(c, err)
		return
	}
	if doc.CreatorID == targetID {
		g.writeError(c, util.NewValidationError("the document creator already holds owner access"))
		return
	}
	if _, err := g.store.Users().Get(c.Request.Context(), targetID); err != nil {
		g.writeError(c, err)
		return
	}

	grant := &model.Grant{
		UserID:     targetID,
		DocumentID: docID,
		Level:      req.Level,
		Rows:       req.Rows,
		Cols:       req.Cols,
		UpdatedAt:  time.Now().UTC(),
	}
	created, err := g.store.Grants().Upsert(c.Request.Context(), grant)
	if err != nil {
		g.writeError(c, err)
		return
	}

	g.audit.LogAdministrative(c.Request.Context(), audit.ActionGrantUpsert, audit.OutcomeSuccess,
		&audit.Subject{UserID: user.ID, Email: user.Email},
		&audit.Resource{Type: "grant", DocumentID: docID, TargetUser: targetID})

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, grant)
}

func (g *Gateway) deleteGrant(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")
	targetID := c.Param("userId")

	if _, err := g.resolver.Require(c.Request.Context(), user.ID, docID, model.PermissionAdmin); err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}

	if err := g.store.Grants().Delete(c.Request.Context(), targetID, docID); err != nil {
		g.writeError(c, err)
		return
	}

	g.audit.LogAdministrative(c.Request.Context(), audit.ActionGrantDelete, audit.OutcomeSuccess,
		&audit.Subject{UserID: user.ID, Email: user.Email},
		&audit.Resource{Type: "grant", DocumentID: docID, TargetUser: targetID})
	c.Status(http.StatusNoContent)
}

// applyGroupAccess grants every member of a group the same access to the
// document. The operation is not atomic: the response reports how many
// members were granted before any failure.
func (g *Gateway) applyGroupAccess(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	var req groupAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.writeError(c, util.NewValidationError(err.Error()))
		return
	}

	if _, err := g.resolver.Require(c.Request.Context(), user.ID, docID, model.PermissionAdmin); err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}

	applied, err := g.bridge.SetGroupSheetAccess(c.Request.Context(), req.GroupID, docID, req.Level, req.Rows, req.Cols)
	if err != nil {
		status, code := classifyError(err)
		c.AbortWithStatusJSON(status, gin.H{
			"error":   errorResponse{Code: code, Message: err.Error()},
			"applied": applied,
		})
		return
	}

	g.audit.LogAdministrative(c.Request.Context(), audit.ActionGroupAccessApply, audit.OutcomeSuccess,
		&audit.Subject{UserID: user.ID, Email: user.Email},
		&audit.Resource{Type: "grant", DocumentID: docID, GroupID: req.GroupID})
	c.JSON(http.StatusOK, gin.H{"applied": applied})
}

// copyAccess replicates every grant from this document onto the target.
// Requires admin on both documents.
func (g *Gateway) copyAccess(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	var req copyAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.writeError(c, util.NewValidationError(err.Error()))
		return
	}

	if _, err := g.resolver.Require(c.Request.Context(), user.ID, docID, model.PermissionAdmin); err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}
	if _, err := g.resolver.Require(c.Request.Context(), user.ID, req.TargetDocumentID, model.PermissionAdmin); err != nil {
		g.denyAndWrite(c, user, req.TargetDocumentID, err)
		return
	}

	copied, err := g.bridge.CopySheetAccess(c.Request.Context(), docID, req.TargetDocumentID)
	if err != nil {
		status, code := classifyError(err)
		c.AbortWithStatusJSON(status, gin.H{
			"error":  errorResponse{Code: code, Message: err.Error()},
			"copied": copied,
		})
		return
	}

	g.audit.LogAdministrative(c.Request.Context(), audit.ActionAccessCopy, audit.OutcomeSuccess,
		&audit.Subject{UserID: user.ID, Email: user.Email},
		&audit.Resource{Type: "grant", DocumentID: docID, TargetUser: req.TargetDocumentID})
	c.JSON(http.StatusOK, gin.H{"copied": copied})
}
