package server

import (
	"net/http"

	"radiochat/internal/auth"
	"radiochat/internal/chat"
	"radiochat/internal/config"
	"radiochat/internal/metrics"
	"radiochat/internal/mw"
	"radiochat/internal/service"
	"radiochat/internal/store"
	"radiochat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
// limiter 为 nil 时不做 HTTP 限速。
func SetupRouter(cfg config.Config, gdb *gorm.DB, chatSvc *chat.Service, limiter *mw.RL) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.CORSOrigins))

	h := NewHandler(
		service.NewUserService(gdb, cfg),
		service.NewMessageService(store.New(gdb)),
		chatSvc,
	)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	if limiter != nil {
		api.Use(limiter.Middleware())
	}

	api.POST("/auth/register", h.Register)
	api.POST("/auth/challenge", h.Challenge)
	api.POST("/auth/verify", h.Verify)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg.JWTSecret, gdb))
	authed.GET("/rooms", h.ListRooms)
	authed.GET("/rooms/:id/messages", h.ListMessages)

	r.GET("/ws", ws.Serve(chatSvc, ws.Options{
		JWTSecret:         cfg.JWTSecret,
		ReadLimit:         cfg.WSReadLimitBytes,
		MessagesPerSecond: cfg.WSMessagesPerSecond,
		Burst:             cfg.WSBurst,
		AllowedOrigins:    cfg.CORSOrigins,
	}))
	return r
}
