package mw

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS 返回跨域中间件。配置了 origins 时只允许这些来源；
// 未配置时 dev 环境允许所有来源，其余环境不发送任何 CORS 头（只允许同源）。
func CORS(env string, origins []string) gin.HandlerFunc {
	config := cors.DefaultConfig()
	switch {
	case len(origins) > 0:
		config.AllowOrigins = origins
	case env == "dev":
		config.AllowOriginFunc = func(string) bool { return true }
	default:
		return func(c *gin.Context) { c.Next() }
	}
	config.AllowCredentials = true
	config.AllowHeaders = []string{"Authorization", "Content-Type", "Origin", "Accept"}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.MaxAge = 24 * time.Hour
	return cors.New(config)
}
