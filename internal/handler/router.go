package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/middleware"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/service"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/logger"
	corsmiddleware "github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/middleware/cors"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/middleware/requestmeta"
)

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool

	Tokens     middleware.TokenValidator
	Metrics    *service.MetricsService
	Logger     *zap.Logger
	References *ReferenceHandler
	Health     *MetricsHandler
}

// NewRouter builds the gin engine with the full middleware chain.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestmeta.Middleware())
	r.Use(logger.GinMiddleware(cfg.Logger))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(cfg.Metrics))

	if cfg.Health != nil {
		r.GET("/health", cfg.Health.Health)
		r.GET("/ready", cfg.Health.Ready)
		r.GET("/metrics", cfg.Health.Prometheus)
	}
	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(cfg.Tokens))

	voter := api.Group("/references", middleware.RequireRoles(models.RoleVoter))
	voter.POST("", cfg.References.Submit)
	voter.GET("", cfg.References.ListMine)

	admin := api.Group("/admin/references", middleware.RequireAdmin())
	admin.GET("", cfg.References.AdminList)
	admin.GET("/export", cfg.References.Export)
	admin.GET("/:id", cfg.References.AdminGet)
	admin.PATCH("/:id/status", cfg.References.ChangeStatus)
	admin.GET("/:id/audit", cfg.References.AuditTrail)

	return r
}
