// Package gateway is the transport surface of the sheet service: the REST
// API and the realtime websocket channel, with authentication, logging,
// metrics, and audit wired in front of the domain components.
package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/avasheets/internal/access"
	"github.com/vyrodovalexey/avasheets/internal/audit"
	"github.com/vyrodovalexey/avasheets/internal/auth"
	"github.com/vyrodovalexey/avasheets/internal/collab"
	"github.com/vyrodovalexey/avasheets/internal/config"
	"github.com/vyrodovalexey/avasheets/internal/mutation"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/store"
)

// ginModeOnce guards gin.SetMode against concurrent server construction.
var ginModeOnce sync.Once

// Gateway wires the domain components behind HTTP and websocket endpoints.
type Gateway struct {
	cfg      *config.ServiceConfig
	logger   observability.Logger
	metrics  *observability.Metrics
	store    store.Store
	resolver *access.Resolver
	bridge   *access.Bridge
	pipeline *mutation.Pipeline
	hub      *collab.Hub
	authn    *auth.Authenticator
	audit    audit.Logger

	engine *gin.Engine
	server *http.Server
}

// Options are the collaborators a Gateway is built from.
type Options struct {
	Config      *config.ServiceConfig
	Logger      observability.Logger
	Store       store.Store
	Verifier    auth.Verifier
	AuditLogger audit.Logger
}

// New assembles a gateway and registers its routes.
func New(opts Options) (*Gateway, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	auditLogger := opts.AuditLogger
	if auditLogger == nil {
		auditLogger = audit.NewNoopLogger()
	}

	resolver := access.NewResolver(opts.Store, logger)
	pipeline := mutation.NewPipeline(resolver, opts.Store, logger)

	g := &Gateway{
		cfg:      cfg,
		logger:   logger,
		metrics:  observability.GetMetrics(),
		store:    opts.Store,
		resolver: resolver,
		bridge:   access.NewBridge(opts.Store, logger),
		pipeline: pipeline,
		hub:      collab.NewHub(resolver, pipeline, logger),
		authn:    auth.NewAuthenticator(opts.Verifier, opts.Store.Users(), logger),
		audit:    auditLogger,
	}

	ginModeOnce.Do(func() { gin.SetMode(gin.ReleaseMode) })
	g.engine = gin.New()
	g.registerRoutes()

	g.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      g.engine,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  cfg.Server.IdleTimeout.Duration(),
	}

	return g, nil
}

// Engine exposes the underlying engine for tests.
func (g *Gateway) Engine() *gin.Engine {
	return g.engine
}

// registerRoutes installs middleware and binds every endpoint.
func (g *Gateway) registerRoutes() {
	g.engine.Use(g.requestID(), g.recovery(), g.logging(), g.httpMetrics())

	if g.cfg.Server.MaxRequestBody > 0 {
		limit := g.cfg.Server.MaxRequestBody
		g.engine.Use(func(c *gin.Context) {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
			c.Next()
		})
	}

	g.engine.GET("/healthz", g.handleHealth)
	g.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := g.engine.Group("/api/v1", g.authenticate())

	docs := api.Group("/documents")
	docs.GET("", g.listDocuments)
	docs.POST("", g.createDocument)
	docs.GET("/:id", g.getDocument)
	docs.PUT("/:id", g.updateDocument)
	docs.DELETE("/:id", g.deleteDocument)
	docs.POST("/:id/rows", g.addRow)
	docs.POST("/:id/columns", g.addColumn)
	docs.PUT("/:id/resize", g.resize)

	docs.GET("/:id/cells", g.listCells)
	docs.GET("/:id/cells/:row/:col", g.getCell)
	docs.PUT("/:id/cells/:row/:col", g.putCell)
	docs.DELETE("/:id/cells/:row/:col", g.deleteCell)
	docs.GET("/:id/cells/:row/:col/history", g.cellHistory)
	docs.GET("/:id/history", g.documentHistory)
	docs.PUT("/:id/format", g.formatCells)

	docs.GET("/:id/grants", g.listGrants)
	docs.PUT("/:id/grants/:userId", g.putGrant)
	docs.DELETE("/:id/grants/:userId", g.deleteGrant)
	docs.POST("/:id/group-access", g.applyGroupAccess)
	docs.POST("/:id/copy-access", g.copyAccess)

	docs.GET("/:id/webhook", g.getWebhookMapping)
	docs.PUT("/:id/webhook", g.putWebhookMapping)
	docs.DELETE("/:id/webhook", g.deleteWebhookMapping)

	templates := api.Group("/templates")
	templates.GET("", g.listTemplates)
	templates.POST("", g.createTemplate)
	templates.GET("/:id", g.getTemplate)
	templates.DELETE("/:id", g.deleteTemplate)
	templates.POST("/:id/documents", g.createFromTemplate)

	groups := api.Group("/groups")
	groups.GET("", g.listGroups)
	groups.POST("", g.createGroup)
	groups.DELETE("/:id", g.deleteGroup)
	groups.PUT("/:id/members/:userId", g.addGroupMember)
	groups.DELETE("/:id/members/:userId", g.removeGroupMember)

	// Inbound webhook intake carries its secret in the path instead of a
	// bearer token.
	g.engine.POST("/hooks/:hookId", g.processWebhook)

	g.engine.GET("/ws", g.authenticate(), g.handleWebsocket)
}

// handleHealth reports liveness.
func (g *Gateway) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (g *Gateway) Start() error {
	g.logger.Info("gateway listening",
		observability.String("addr", g.server.Addr))
	if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}
