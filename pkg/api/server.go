package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/overseer-ai/overseer/pkg/agent"
	"github.com/overseer-ai/overseer/pkg/config"
	"github.com/overseer-ai/overseer/pkg/database"
	"github.com/overseer-ai/overseer/pkg/hitl"
	"github.com/overseer-ai/overseer/pkg/llm"
	"github.com/overseer-ai/overseer/pkg/orchestrator"
	"github.com/overseer-ai/overseer/pkg/queue"
	"github.com/overseer-ai/overseer/pkg/services"
	"github.com/overseer-ai/overseer/pkg/workflow"
)

// Server is the HTTP API over the execution platform.
type Server struct {
	cfg        *config.Config
	db         *database.Client
	registry   *agent.Registry
	dispatcher *orchestrator.Dispatcher
	taskQueue  *queue.Queue
	gate       *hitl.Gate
	engine     *workflow.Engine
	sessions   *services.SessionService
	profiles   *services.ProfileService
	llm        *llm.Client
	auth       *AuthManager
	logger     *slog.Logger

	httpServer *http.Server
}

// NewServer wires the API over the shared components.
func NewServer(
	cfg *config.Config,
	db *database.Client,
	registry *agent.Registry,
	dispatcher *orchestrator.Dispatcher,
	taskQueue *queue.Queue,
	gate *hitl.Gate,
	engine *workflow.Engine,
	sessions *services.SessionService,
	profiles *services.ProfileService,
	llmClient *llm.Client,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		db:         db,
		registry:   registry,
		dispatcher: dispatcher,
		taskQueue:  taskQueue,
		gate:       gate,
		engine:     engine,
		sessions:   sessions,
		profiles:   profiles,
		llm:        llmClient,
		auth:       NewAuthManager(cfg.Server),
		logger:     logger.With("component", "api"),
	}
}

// Auth exposes the auth manager, mainly for tests and user provisioning.
func (s *Server) Auth() *AuthManager { return s.auth }

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), securityHeaders(), requestLogger(s.logger))

	router.GET("/health", s.handleHealth)
	router.GET("/ready", s.handleReady)
	router.POST("/api/login", s.handleLogin)

	authed := router.Group("/api", s.requireAuth())
	{
		authed.GET("/status", s.requirePermission("status"), s.handleStatus)
		authed.POST("/dispatch", s.requirePermission("dispatch"), s.handleDispatch)
		authed.GET("/history", s.requirePermission("history"), s.handleHistory)
		authed.GET("/agents", s.requirePermission("agents"), s.handleAgents)

		authed.GET("/profiles", s.requirePermission("profiles"), s.handleProfiles)
		authed.GET("/profiles/fleet", s.requirePermission("profiles"), s.handleFleet)

		approvals := authed.Group("/approvals", s.requirePermission("approvals"))
		{
			approvals.GET("/pending", s.handlePendingApprovals)
			approvals.POST("/expire", s.handleExpireApprovals)
			approvals.GET("/:id", s.handleGetApproval)
			approvals.POST("/:id/approve", s.handleApprove)
			approvals.POST("/:id/reject", s.handleReject)
		}

		authed.POST("/queue/submit", s.requirePermission("dispatch"), s.handleQueueSubmit)
		authed.GET("/queue/tasks/:id", s.requirePermission("status"), s.handleTaskStatus)
		authed.POST("/queue/tasks/:id/cancel", s.requirePermission("dispatch"), s.handleTaskCancel)
		authed.GET("/queue/stats", s.requirePermission("status"), s.handleQueueStats)
		authed.GET("/queue/pending", s.requirePermission("status"), s.handleQueuePending)

		authed.GET("/workflows", s.requirePermission("workflows"), s.handleWorkflows)
		authed.POST("/workflows/:id/execute", s.requirePermission("workflows"), s.handleWorkflowExecute)
	}
	return router
}

// Start begins serving on addr. Blocks until the listener stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
