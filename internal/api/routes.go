package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/haszKEJL/Projekt-PAI/internal/api/handlers"
	"github.com/haszKEJL/Projekt-PAI/internal/api/middleware"
	"github.com/haszKEJL/Projekt-PAI/internal/services"
	"github.com/haszKEJL/Projekt-PAI/internal/store"
	"github.com/haszKEJL/Projekt-PAI/pkg/metrics"
	"go.uber.org/zap"
)

type Router struct {
	engine           *gin.Engine
	logger           *zap.Logger
	metrics          *metrics.MetricsCollector
	authHandler      *handlers.AuthHandler
	signatureHandler *handlers.SignatureHandler
	recordsHandler   *handlers.RecordsHandler
	authMiddleware   *middleware.AuthMiddleware
	reqMiddleware    *middleware.RequestMiddleware
}

func NewRouter(
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
	authService *services.AuthService,
	signingService *services.SigningService,
	recordStore *store.RecordStore,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	reqMiddleware := middleware.NewRequestMiddleware(logger)
	authMiddleware := middleware.NewAuthMiddleware(authService)

	engine.Use(reqMiddleware.ProcessRequest())
	engine.Use(reqMiddleware.RecoverPanic())
	engine.Use(reqMiddleware.TokenAttemptMiddleware())

	return &Router{
		engine:           engine,
		logger:           logger,
		metrics:          metricsCollector,
		authHandler:      handlers.NewAuthHandler(authService, logger),
		signatureHandler: handlers.NewSignatureHandler(signingService, logger),
		recordsHandler:   handlers.NewRecordsHandler(recordStore, signingService, logger),
		authMiddleware:   authMiddleware,
		reqMiddleware:    reqMiddleware,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "pdf-signature-system"})
	})

	r.engine.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"counters":  r.metrics.GetCounters(),
			"latencies": r.metrics.GetLatencies(),
			"sizes":     r.metrics.GetSizes(),
		})
	})

	r.engine.POST("/api/auth/token", r.authHandler.IssueToken)

	// Verification is deliberately open: anyone holding a document and a
	// key may check it.
	r.engine.POST("/api/signature/verify", r.signatureHandler.Verify)

	signing := r.engine.Group("/api/signature")
	signing.Use(r.authMiddleware.RequireAuth())
	{
		signing.POST("/prepare", r.signatureHandler.Prepare)
		signing.POST("/commit", r.signatureHandler.Commit)
		signing.GET("/records/:id/download", r.recordsHandler.Download)
	}

	admin := r.engine.Group("/api/signature/records")
	admin.Use(r.authMiddleware.RequireAuth(), r.authMiddleware.RequireAdmin())
	{
		admin.GET("", r.recordsHandler.List)
		admin.GET("/:id", r.recordsHandler.Get)
		admin.DELETE("/:id", r.recordsHandler.Delete)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// Close releases background resources held by the middleware.
func (r *Router) Close() {
	r.reqMiddleware.Close()
}

func (r *Router) Run(addr string) error {
	r.logger.Info("Starting HTTP server", zap.String("address", addr))
	return r.engine.Run(addr)
}
