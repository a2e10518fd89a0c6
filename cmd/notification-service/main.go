package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatgrid-backend/internal/domain"
	"chatgrid-backend/internal/eventlog"
	notificationHandler "chatgrid-backend/internal/handler/http/notification"
	pushHandler "chatgrid-backend/internal/handler/http/push"
	wsHandler "chatgrid-backend/internal/handler/ws"
	"chatgrid-backend/internal/middleware"
	"chatgrid-backend/internal/realtime"
	"chatgrid-backend/internal/repository/cockroach"
	redisRepo "chatgrid-backend/internal/repository/redis"
	notificationService "chatgrid-backend/internal/service/notification"
	"chatgrid-backend/pkg/constants"
	"chatgrid-backend/pkg/database"
	"chatgrid-backend/pkg/env"
	"chatgrid-backend/pkg/jwt"
	"chatgrid-backend/pkg/logger"
	"chatgrid-backend/pkg/metrics"
	"chatgrid-backend/pkg/push"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Initialize logger
	if err := logger.Init(&logger.Config{
		Service: "notification-service",
		Level:   env.GetString("LOG_LEVEL", "info"),
		Format:  env.GetString("LOG_FORMAT", "json"),
		Output:  "stdout",
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 2. Setup JWT Manager
	jwtSecret := env.GetStringFromFile("JWT_SECRET", "")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		logger.Fatal("JWT_SECRET must be at least 32 characters")
	}

	jwtManager := jwt.NewJWTManager(jwtSecret, constants.AccessTokenExpiry, constants.RefreshTokenExpiry)

	// 3. Connect to CockroachDB
	db, err := database.NewCockroachDBFromEnv(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer db.Close()
	logger.Info("✅ Connected to CockroachDB")

	// 4. Connect to Redis
	redisDB, err := database.NewRedisDB(&database.RedisConfig{
		Host:     env.GetString("REDIS_HOST", "localhost"),
		Port:     env.GetInt("REDIS_PORT", 6379),
		Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	logger.Info("✅ Connected to Redis")

	// 5. Mobile push (provider chosen by PUSH_PROVIDER, mock by default)
	pushProvider, err := push.NewProvider()
	if err != nil {
		logger.Fatal("Failed to initialize push provider", zap.Error(err))
	}
	pushTokenRepo := redisRepo.NewPushTokenRepository(redisDB.Client)
	pushSvc := push.NewService(pushProvider, pushTokenRepo)

	// 6. Metrics
	appMetrics := metrics.NewMetrics("notification-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 7. Delivery session hub and the notification service. Presence is
	// shared through Redis so delivery sees sessions on every instance;
	// pushes ride the per-user Pub/Sub channels and each instance's hub
	// forwards them to the sessions it holds. The hub needs the service
	// for catch-up on authenticate, so it is wired last.
	presenceRepo := redisRepo.NewPresenceRepository(redisDB.Client)
	realtimePub := realtime.NewPublisher(redisDB.Client)
	hub := wsHandler.NewHub(jwtManager, presenceRepo, appMetrics)

	notificationRepo := cockroach.NewNotificationRepository(db.Pool)
	notificationSvc := notificationService.NewService(notificationRepo, realtimePub, presenceRepo, pushSvc, appMetrics)
	hub.SetNotifications(notificationSvc)

	// 8. Event log consumer feeding the fan-out pipeline
	topics := []string{
		domain.TopicCalls,
		domain.TopicMessages,
		domain.TopicChannels,
		domain.TopicFriendRequests,
	}
	consumerName := env.GetString("HOSTNAME", fmt.Sprintf("notification-%d", os.Getpid()))
	consumer := eventlog.NewConsumer(redisDB.Client, "notification-service", consumerName, topics, notificationSvc.Ingest, appMetrics)
	if err := consumer.Start(ctx); err != nil {
		logger.Fatal("Failed to start event log consumer", zap.Error(err))
	}
	logger.Info("✅ Event log consumer started", zap.Strings("topics", topics))

	// 9. Forward cross-service realtime pushes to connected sessions
	go hub.Run(ctx, realtime.NewSubscriber(redisDB.Client))

	// 10. Setup Gin router
	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "notification-service",
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	notificationHdlr := notificationHandler.NewHandler(notificationSvc)
	pushHdlr := pushHandler.NewHandler(pushSvc)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.GET("/notifications", notificationHdlr.List)
		v1.GET("/notifications/poll", notificationHdlr.Poll)
		v1.GET("/notifications/unread/count", notificationHdlr.UnreadCount)
		v1.POST("/notifications/read", notificationHdlr.MarkAsRead)
		v1.DELETE("/notifications", notificationHdlr.Delete)

		v1.POST("/push/tokens", pushHdlr.RegisterToken)
		v1.DELETE("/push/tokens", pushHdlr.UnregisterToken)
		v1.DELETE("/push/tokens/all", pushHdlr.UnregisterAllTokens)
	}

	// WebSocket endpoint authenticates in-band, so it sits outside the
	// auth middleware group
	router.GET("/v1/ws/notifications", hub.ServeWS)

	// 11. Start server with graceful shutdown
	port := env.GetString("PORT", "8085")
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: router,
	}

	go func() {
		logger.Info("🚀 Notification Service starting", zap.String("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop ingesting before dropping sessions so in-flight events either
	// finish or stay pending for the next instance.
	consumer.Stop()
	cancel()
	hub.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
