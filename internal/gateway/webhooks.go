package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avasheets/internal/audit"
	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

// webhookActorID is recorded as the actor of cell changes written by the
// inbound webhook, which runs without a user.
const webhookActorID = "webhook"

type putWebhookRequest struct {
	Keys   []string `json:"keys" binding:"required"`
	Active *bool    `json:"active"`
}

// webhookPayload is the inbound shape: a routing key and the cell values to
// append as one row.
type webhookPayload struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// getWebhookMapping returns the document's webhook mapping, admin and above.
func (g *Gateway) getWebhookMapping(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	if _, err := g.resolver.Require(c.Request.Context(), user.ID, docID, model.PermissionAdmin); err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}

	mapping, err := g.store.Webhooks().GetByDocument(c.Request.Context(), docID)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapping)
}

func (g *Gateway) putWebhookMapping(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	var req putWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.writeError(c, util.NewValidationError(err.Error()))
		return
	}
	if len(req.Keys) == 0 {
		g.writeError(c, util.NewValidationError("keys must not be empty"))
		return
	}
	for _, key := range req.Keys {
		if key == "" {
			g.writeError(c, util.NewValidationError("keys must not contain empty entries"))
			return
		}
	}

	if _, err := g.resolver.Require(c.Request.Context(), user.ID, docID, model.PermissionAdmin); err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}

	mapping := &model.WebhookMapping{
		DocumentID: docID,
		Keys:       req.Keys,
		Active:     req.Active == nil || *req.Active,
		UpdatedAt:  time.Now().UTC(),
	}
	created, err := g.store.Webhooks().Upsert(c.Request.Context(), mapping)
	if err != nil {
		g.writeError(c, err)
		return
	}

	g.audit.LogAdministrative(c.Request.Context(), audit.ActionWebhookUpsert, audit.OutcomeSuccess,
		&audit.Subject{UserID: user.ID, Email: user.Email},
		&audit.Resource{Type: "webhook", DocumentID: docID})

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, mapping)
}

func (g *Gateway) deleteWebhookMapping(c *gin.Context) {
	user := currentUser(c)
	docID := c.Param("id")

	if _, err := g.resolver.Require(c.Request.Context(), user.ID, docID, model.PermissionAdmin); err != nil {
		g.denyAndWrite(c, user, docID, err)
		return
	}

	if err := g.store.Webhooks().Delete(c.Request.Context(), docID); err != nil {
		g.writeError(c, err)
		return
	}

	g.audit.LogAdministrative(c.Request.Context(), audit.ActionWebhookDelete, audit.OutcomeSuccess,
		&audit.Subject{UserID: user.ID, Email: user.Email},
		&audit.Resource{Type: "webhook", DocumentID: docID})
	c.Status(http.StatusNoContent)
}

// processWebhook ingests an external payload and appends it as a row to
// every document whose active mapping lists the payload's key. Senders retry
// on non-2xx, so every outcome answers 200; "processed" reports whether
// anything was written.
func (g *Gateway) processWebhook(c *gin.Context) {
	if !g.cfg.Webhook.Enabled {
		c.JSON(http.StatusOK, gin.H{"accepted": true, "processed": false,
			"reason": "webhooks are disabled"})
		return
	}
	if c.Param("hookId") != g.cfg.Webhook.Secret {
		g.logger.Warn("webhook with unknown id ignored",
			observability.String("remoteIp", c.ClientIP()))
		c.JSON(http.StatusOK, gin.H{"accepted": true, "processed": false,
			"reason": "unknown webhook id"})
		return
	}

	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Key == "" || len(payload.Values) == 0 {
		c.JSON(http.StatusOK, gin.H{"accepted": true, "processed": false,
			"reason": "payload does not match the expected shape"})
		return
	}

	mappings, err := g.store.Webhooks().ListActive(c.Request.Context())
	if err != nil {
		g.logger.Error("webhook mapping lookup failed", observability.Error(err))
		c.JSON(http.StatusOK, gin.H{"accepted": true, "processed": false,
			"reason": "processing failed"})
		return
	}

	processed := 0
	for _, mapping := range mappings {
		if !mapping.Matches(payload.Key) {
			continue
		}
		row, err := g.nextFreeRow(c, mapping.DocumentID)
		if err == nil {
			_, err = g.pipeline.AppendRow(c.Request.Context(), webhookActorID, mapping.DocumentID, row, payload.Values)
		}
		if err != nil {
			g.logger.Error("webhook append failed",
				observability.String("documentId", mapping.DocumentID),
				observability.Error(err))
			continue
		}
		processed++
	}

	g.logger.Info("webhook processed",
		observability.String("key", payload.Key),
		observability.Int("documents", processed))
	c.JSON(http.StatusOK, gin.H{"accepted": true, "processed": processed > 0,
		"documents": processed})
}

// nextFreeRow returns the first row below every populated cell.
func (g *Gateway) nextFreeRow(c *gin.Context, docID string) (int, error) {
	cells, err := g.store.Cells().ListByDocument(c.Request.Context(), docID)
	if err != nil {
		return 0, err
	}
	next := 0
	for _, cell := range cells {
		if cell.Row >= next {
			next = cell.Row + 1
		}
	}
	return next, nil
}
