package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/api/handlers"
	apimw "github.com/Ksmashhero06/smart-data-integration-portal/internal/api/middleware"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/api/routes"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/config"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/db"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/kms"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/metrics"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/queue"
	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/ledger"
	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl := logger.Must(cfg.App.Env, cfg.App.LogLevel)
	defer func() { _ = zl.Sync() }()

	// 1. Init data files
	database, err := db.Open(cfg.Data, zl)
	if err != nil {
		zl.Fatal("failed to open data dir", zap.String("dir", cfg.Data.Dir), zap.Error(err))
	}

	// 2. Init KMS (optional: certificates stay plain base64 without it)
	var kmsService *kms.Encryptor
	if cfg.KMS.Key != "" {
		kmsService, err = kms.New(cfg.KMS.Key)
		if err != nil {
			zl.Fatal("failed to init kms", zap.Error(err))
		}
	} else {
		zl.Warn("PORTAL_KMS_KEY not set, certificates are stored unencrypted")
	}

	// 3. Init Queue client (optional: background rebuilds)
	var enqueuer queue.Enqueuer
	if cfg.Redis.Addr != "" {
		queueClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer queueClient.Close()
		enqueuer = queueClient
	} else {
		zl.Info("redis not configured, background chain rebuilds disabled")
	}

	jwtSecret := cfg.JWT.Secret
	if jwtSecret == "" {
		jwtSecret = ephemeralSecret()
		zl.Warn("PORTAL_JWT_SECRET not set, using an ephemeral secret; tokens will not survive a restart")
	}

	// 4. Live chain, metrics and handlers
	chain := ledger.New()
	m := metrics.New()
	h := handlers.NewHandlers(handlers.Deps{
		Chain:           chain,
		DB:              database,
		KMS:             kmsService,
		Queue:           enqueuer,
		Metrics:         m,
		Hub:             handlers.NewHub(zl),
		Log:             zl,
		JWTSecret:       jwtSecret,
		JWTTTL:          cfg.JWT.Expiration,
		RebuildDebounce: cfg.Worker.RebuildDebounce,
	})

	// 5. Init Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	limiter := apimw.NewClientLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	defer limiter.Close()

	// Global middleware
	e.Use(apimw.RequestID())
	e.Use(apimw.AccessLog(zl))
	e.Use(echomw.Recover())
	e.Use(apimw.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderAccept},
		MaxAge:       3600,
	}))
	e.Use(echomw.BodyLimit("12M"))
	e.Use(echomw.GzipWithConfig(echomw.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Path(), "/events")
		},
	}))
	e.Use(limiter.Middleware())

	// 6. Register Routes
	routes.Register(e, h, jwtSecret, m)

	// 7. Health check
	e.GET("/health", healthHandler(cfg, chain, &net.Dialer{}))

	// 8. Start Server
	go func() {
		addr := ":" + strconv.Itoa(cfg.App.Port)
		zl.Info("api listening", zap.String("addr", addr), zap.String("version", cfg.App.Version))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("server stopped", zap.Error(err))
		}
	}()

	// 9. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down server")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(ctxShutdown); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
}

func ephemeralSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}
