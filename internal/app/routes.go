package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/drawspace/core/internal/modules/activity"
	"github.com/drawspace/core/internal/modules/gateway/gateway"
	"github.com/drawspace/core/internal/pkg/response"
)

var processStart = time.Now()

func (a *App) registerRoutes() {
	r := a.router

	r.NoRoute(func(c *gin.Context) {
		response.NotFoundMsg(c, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"ok": 0, "code": http.StatusMethodNotAllowed, "message": "method not allowed"})
	})

	appInfo := gin.H{
		"name":    "drawspace-core",
		"version": "1.0.0",
	}

	// socket.io lives at the root, next to the versioned API.
	root := r.Group("")
	gateway.RegisterRoutes(root, a.hub)

	api := r.Group("/api/v1")
	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"timestamp": time.Since(processStart).Milliseconds()})
	})

	activity.NewHandler(a.tr, a.cfg.Presence, a.logger).RegisterRoutes(api)
}
