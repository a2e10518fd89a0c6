package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatgrid-backend/internal/eventlog"
	callHandler "chatgrid-backend/internal/handler/http/call"
	"chatgrid-backend/internal/middleware"
	"chatgrid-backend/internal/realtime"
	"chatgrid-backend/internal/repository/cockroach"
	callService "chatgrid-backend/internal/service/call"
	"chatgrid-backend/pkg/constants"
	"chatgrid-backend/pkg/database"
	"chatgrid-backend/pkg/env"
	"chatgrid-backend/pkg/jwt"
	"chatgrid-backend/pkg/logger"
	"chatgrid-backend/pkg/metrics"
)

func main() {
	ctx := context.Background()

	// 1. Initialize logger
	if err := logger.Init(&logger.Config{
		Service: "call-service",
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

	// 3. Connect to CockroachDB with exponential backoff retry
	dbConfig := &database.CockroachConfig{
		Host:     env.GetString("DB_HOST", "localhost"),
		Port:     env.GetInt("DB_PORT", 26257),
		User:     env.GetString("DB_USER", "root"),
		Password: env.GetStringFromFile("DB_PASSWORD", ""),
		Database: env.GetString("DB_NAME", "chatgrid"),
		SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
	}

	db, err := connectCockroach(ctx, dbConfig)
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

	// 5. Wire repositories and the call service
	callRepo := cockroach.NewCallRepository(db.Pool)
	producer := eventlog.NewProducer(redisDB.Client)
	rtPublisher := realtime.NewPublisher(redisDB.Client)

	appMetrics := metrics.NewMetrics("call-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	callSvc := callService.NewService(callRepo, producer, rtPublisher, appMetrics)
	callHdlr := callHandler.NewHandler(callSvc)

	// 6. Setup Gin router
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
			"service": "call-service",
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	// Call routes (all require authentication)
	v1 := router.Group("/v1/calls")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.POST("", callHdlr.InitiateCall)
		v1.GET("/history", callHdlr.GetHistory)
		v1.GET("/active", callHdlr.GetActiveCall)
		v1.GET("/:id", callHdlr.GetCall)
		v1.POST("/:id/ring", callHdlr.RingCall)
		v1.POST("/:id/accept", callHdlr.AcceptCall)
		v1.POST("/:id/reject", callHdlr.RejectCall)
		v1.POST("/:id/cancel", callHdlr.CancelCall)
		v1.POST("/:id/end", callHdlr.EndCall)
		v1.POST("/:id/ice-candidates", callHdlr.UpdateICECandidates)
	}

	// 7. Start server with graceful shutdown
	port := env.GetString("PORT", "8084")
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: router,
	}

	go func() {
		logger.Info("🚀 Call Service starting", zap.String("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// connectCockroach retries the initial connection with exponential backoff
// so the service survives the database coming up after it in compose.
func connectCockroach(ctx context.Context, cfg *database.CockroachConfig) (*database.CockroachDB, error) {
	const maxRetries = 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	db, err := database.NewCockroachDB(ctx, cfg)
	if err == nil {
		return db, nil
	}

	for attempt := 2; attempt <= maxRetries; attempt++ {
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxDelay {
			delay = maxDelay
		}
		logger.Warn("CockroachDB connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		time.Sleep(delay)

		db, err = database.NewCockroachDB(ctx, cfg)
		if err == nil {
			return db, nil
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", maxRetries, err)
}
