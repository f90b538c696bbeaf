package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qs3c/petvip_server/config"
	"github.com/qs3c/petvip_server/internal/api/handler"
	"github.com/qs3c/petvip_server/internal/api/middleware"
	"github.com/qs3c/petvip_server/internal/pkg/metrics"
	"github.com/qs3c/petvip_server/internal/pkg/response"
)

type Router struct {
	vipHandler       *handler.VipHandler
	websocketHandler *handler.WebSocketHandler
	rateLimiter      *middleware.UserRateLimiter
	cfg              *config.Config
}

func NewRouter(
	vipHandler *handler.VipHandler,
	websocketHandler *handler.WebSocketHandler,
	rateLimiter *middleware.UserRateLimiter,
	cfg *config.Config,
) *Router {
	return &Router{
		vipHandler:       vipHandler,
		websocketHandler: websocketHandler,
		rateLimiter:      rateLimiter,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics.InitMetrics()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Metrics())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/health", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 套餐
		api.GET("/vip/plans", r.vipHandler.ListPlans)

		// 需要认证的接口
		vip := api.Group("/vip")
		vip.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			vip.POST("/qr", r.vipHandler.RequestQR)
			vip.POST("/reconcile", middleware.RateLimit(r.rateLimiter), r.vipHandler.Reconcile)
			vip.GET("/status", r.vipHandler.GetStatus)
			vip.GET("/history", r.vipHandler.ListHistory)
		}
	}

	return engine
}
