package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/quartz"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/drawspace/core/internal/config"
	"github.com/drawspace/core/internal/middleware"
	"github.com/drawspace/core/internal/modules/gateway/gateway"
	pkgjwt "github.com/drawspace/core/internal/pkg/jwt"
	pkgredis "github.com/drawspace/core/internal/pkg/redis"
	"github.com/drawspace/core/internal/transport"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	tr     transport.Transport
	rc     *pkgredis.Client
	hub    *gateway.Hub
	logger *zap.Logger
	cancel context.CancelFunc
}

// New initializes the application: config → transport → routes. With no
// redis configured presence runs on the in-memory transport, which is
// enough for a single instance.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	if cfg.JWTSecret != "" {
		pkgjwt.SetSecret(cfg.JWTSecret)
	}

	var (
		tr transport.Transport
		rc *pkgredis.Client
	)
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.RedisURL == "" {
		tr = transport.NewMemory()
	} else {
		var err error
		rc, err = pkgredis.Connect(cfg.RedisURL)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("redis: %w", err)
		}
		redisTr := transport.NewRedis(rc, logger)
		go redisTr.RunSweeper(ctx, quartz.NewReal(), cfg.Presence.SweepInterval(), cfg.Presence.OfflineTimeout())
		tr = redisTr
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		corsConfig.AllowOriginFunc = func(origin string) bool {
			return originAllowed(patterns, origin)
		}
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	router.Use(cors.New(corsConfig))

	hub := gateway.NewHub(tr, rc, cfg.Presence, logger)
	go hub.Run(ctx)

	app := &App{cfg: cfg, router: router, tr: tr, rc: rc, hub: hub, logger: logger, cancel: cancel}
	app.registerRoutes()

	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown cleans up background goroutines and the redis connection.
func (a *App) Shutdown() {
	a.cancel()
	if a.rc != nil {
		if err := a.rc.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
}
