// Package main runs the classroom polling server: HTTP command API,
// websocket push channel, and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classpulse/backend/config"
	"github.com/classpulse/backend/internal/auth"
	"github.com/classpulse/backend/internal/command"
	"github.com/classpulse/backend/internal/game"
	"github.com/classpulse/backend/internal/lessons"
	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/realtime"
	"github.com/classpulse/backend/internal/report"
	"github.com/classpulse/backend/pkg/redis"
	"github.com/classpulse/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	// Optional Redis bridge for multi-instance event fan-out. The engine
	// itself stays single-process and in-memory either way.
	var bridge realtime.Bridge
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		bridge = realtime.NewRedisBridge(rdb.Client, logger)
	}

	// The hub's pull path needs the session registry, which needs the hub
	// for its push path; the closure breaks the cycle.
	var sessions *game.Registry
	hub := realtime.NewHub(logger, bridge, func(code string) (any, bool) {
		s, err := sessions.Get(code)
		if err != nil {
			return nil, false
		}
		q, waiting, open, err := s.CurrentQuestion()
		if err != nil {
			return nil, false
		}
		if waiting {
			return gin.H{"question": game.Waiting, "isOpen": false}, true
		}
		return gin.H{"question": q, "isOpen": open}, true
	})

	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authReg := auth.NewRegistry(cfg.Admin.Username, cfg.Admin.Password, tokens, logger)
	codes := game.NewCodeGenerator(game.DefaultCodeAlphabet, cfg.Session.CodeLength)
	sessions = game.NewRegistry(authReg, codes, hub, logger)
	lessonStore := lessons.NewStore()

	// Revoking a token tears down everything it owns.
	authReg.OnLogout(func(token string) {
		sessions.DestroyAllOwnedBy(token)
		lessonStore.Delete(token)
	})

	dispatcher := command.NewDispatcher(authReg, sessions, lessonStore, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.POST("/api/game", dispatcher.Handle)
	router.GET("/ws", realtime.ServeWs(hub, sessions, logger))
	router.GET("/api/sessions/:code/report.csv", report.Handler(authReg, sessions, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
