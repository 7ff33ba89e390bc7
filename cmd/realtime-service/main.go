package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"chatcall-backend/internal/config"
	"chatcall-backend/internal/database"
	callHandler "chatcall-backend/internal/handler/http/call"
	chatHandler "chatcall-backend/internal/handler/http/chat"
	presenceHandler "chatcall-backend/internal/handler/http/presence"
	pushHandler "chatcall-backend/internal/handler/http/push"
	storageHandler "chatcall-backend/internal/handler/http/storage"
	wsHandler "chatcall-backend/internal/handler/ws"
	"chatcall-backend/internal/middleware"
	"chatcall-backend/internal/presence"
	"chatcall-backend/internal/repository/cassandra"
	"chatcall-backend/internal/repository/cockroach"
	redisRepo "chatcall-backend/internal/repository/redis"
	callService "chatcall-backend/internal/service/call"
	chatService "chatcall-backend/internal/service/chat"
	meetingService "chatcall-backend/internal/service/meeting"
	notificationService "chatcall-backend/internal/service/notification"
	"chatcall-backend/internal/service/signaling"
	storageService "chatcall-backend/internal/service/storage"
	pkgDatabase "chatcall-backend/pkg/database"
	"chatcall-backend/pkg/events"
	"chatcall-backend/pkg/jwt"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/metrics"
	"chatcall-backend/pkg/push"
	"chatcall-backend/pkg/tracing"
)

func main() {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
		Service:  cfg.Server.ServiceName,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Tracing
	shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		ServiceName: cfg.Server.ServiceName,
		Environment: cfg.Server.Environment,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName, nil)

	// 3. CockroachDB for calls, chats, meetings and attachments
	db, err := connectWithRetry(ctx, "CockroachDB", func() (*database.DB, error) {
		return database.NewDB(ctx, &database.CockroachConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: int32(cfg.Database.MaxConns),
			MinConns: int32(cfg.Database.MinConns),
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := pkgDatabase.MigrateCockroach(ctx, db.Pool); err != nil {
			logger.Fatal("Failed to migrate CockroachDB", zap.Error(err))
		}
	}

	// 4. Cassandra for messages
	cassandraDB, err := connectWithRetry(ctx, "Cassandra", func() (*database.CassandraDB, error) {
		return database.NewCassandraDB(&database.CassandraConfig{
			Hosts:       cfg.Cassandra.Hosts,
			Keyspace:    cfg.Cassandra.Keyspace,
			Username:    cfg.Cassandra.Username,
			Password:    cfg.Cassandra.Password,
			Timeout:     cfg.Cassandra.Timeout,
			Consistency: cfg.Cassandra.Consistency,
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to Cassandra", zap.Error(err))
	}
	defer cassandraDB.Close()

	if cfg.Cassandra.Migrate {
		if err := pkgDatabase.MigrateCassandra(ctx, cassandraDB.Session); err != nil {
			logger.Fatal("Failed to migrate Cassandra", zap.Error(err))
		}
	}

	// 5. Redis with degraded mode support
	redisClient := database.NewRedisClient(&database.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	})
	defer redisClient.Close()
	if err := redisClient.HealthCheck(ctx); err != nil {
		logger.Warn("Redis unavailable at startup, running degraded", zap.Error(err))
	}
	redisClient.StartHealthCheck(ctx, cfg.Redis.HealthCheckInterval)

	// 6. Repositories
	callRepo := cockroach.NewCallRepository(db.Pool, appMetrics)
	chatRepo := cockroach.NewChatRepository(db.Pool, appMetrics)
	meetingRepo := cockroach.NewMeetingRepository(db.Pool, appMetrics)
	attachmentRepo := cockroach.NewAttachmentRepository(db.Pool, appMetrics)
	messageRepo := cassandra.NewMessageRepository(cassandraDB.Session, appMetrics)
	presenceRepo := redisRepo.NewPresenceRepository(redisClient)
	pushTokenRepo := redisRepo.NewPushTokenRepository(redisClient)
	revocationRepo := redisRepo.NewRevocationRepository(redisClient)

	// 7. Domain events and push
	publisher := events.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	defer publisher.Close()
	logger.Info("Domain event publisher ready", zap.String("mode", events.Mode(publisher)))
	emitter := events.NewEmitter(publisher, cfg.Server.ServiceName)

	pushSvc := push.NewService(pushTokenRepo, push.NewProviders(ctx, pushConfig(cfg)))
	notifier := notificationService.NewService(pushSvc, cfg.Realtime.RingTimeout)

	// 8. Realtime core
	registry := presence.NewMemoryRegistry(presenceRepo)
	router := signaling.NewRouter(callRepo, registry)
	callSvc := callService.NewService(callRepo, registry, router, notifier,
		callService.WithRingTimeout(cfg.Realtime.RingTimeout),
		callService.WithEmitter(emitter),
	)
	chatSvc := chatService.NewService(chatRepo, messageRepo, registry, emitter)
	meetingSvc := meetingService.NewService(meetingRepo, registry, emitter)

	// 9. Attachments
	minioClient, err := storageService.NewMinioClient(&storageService.MinioConfig{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		UseSSL:    cfg.MinIO.UseSSL,
		Region:    cfg.MinIO.Region,
	})
	if err != nil {
		logger.Fatal("Failed to create MinIO client", zap.Error(err))
	}
	storageSvc, err := storageService.NewService(ctx, minioClient, cfg.MinIO.Bucket, cfg.MinIO.PublicURL, attachmentRepo)
	if err != nil {
		logger.Fatal("Failed to initialize attachment storage", zap.Error(err))
	}

	// 10. WebSocket hub
	originPolicy := middleware.NewOriginPolicy(cfg.Realtime.AllowedOrigins)
	hub := wsHandler.NewHub(registry, wsHandler.HubConfig{
		MaxConnections: cfg.Realtime.MaxConnections,
		CheckOrigin:    originPolicy.CheckOrigin,
		Heartbeat:      presenceRepo,
	})
	wsHandler.NewHandler(hub, registry, callSvc, router, chatSvc, meetingSvc)

	hubCtx, cancelHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	// 11. HTTP handlers
	callHdlr := callHandler.NewHandler(callSvc)
	chatHdlr := chatHandler.NewHandler(chatSvc)
	storageHdlr := storageHandler.NewHandler(storageSvc)
	pushHdlr := pushHandler.NewHandler(pushSvc)
	presenceHdlr := presenceHandler.NewHandler(presenceRepo, registry)

	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	engine.Use(middleware.Recovery())
	engine.Use(otelgin.Middleware(cfg.Server.ServiceName))
	engine.Use(middleware.RequestLogger())
	engine.Use(middleware.CORSMiddleware(originPolicy))
	engine.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	engine.GET("/health", middleware.HealthCheck(cfg.Server.ServiceName))
	engine.GET("/ready", middleware.Readiness(2*time.Second, map[string]middleware.Pinger{
		"cockroachdb": db,
		"cassandra":   cassandraDB,
		"redis":       redisClient,
	}))
	engine.GET("/metrics", middleware.MetricsHandler(appMetrics))

	wsAuth := middleware.OptionalAuthMiddleware(jwtManager, revocationRepo)
	if cfg.Realtime.RequireAuth {
		wsAuth = middleware.AuthMiddleware(jwtManager, revocationRepo)
	}
	engine.GET("/ws", wsAuth, hub.ServeWS)

	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationRepo))
	v1.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	if cfg.RateLimit.Enabled {
		v1.Use(middleware.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window).Middleware())
	}
	{
		v1.GET("/calls", callHdlr.ListCalls)
		v1.GET("/calls/:id", callHdlr.GetCall)
		v1.POST("/calls/:id/archive", callHdlr.ArchiveCall)

		v1.GET("/chats", chatHdlr.ListChats)
		v1.POST("/chats", chatHdlr.CreateChat)
		v1.GET("/chats/:id/messages", chatHdlr.GetMessages)
		v1.POST("/messages", chatHdlr.SendMessage)
		v1.PATCH("/messages/:id", chatHdlr.UpdateMessage)
		v1.POST("/messages/:id/seen", chatHdlr.MarkSeen)

		v1.POST("/files", storageHdlr.UploadFile)
		v1.GET("/files/*key", storageHdlr.GetFile)
		v1.DELETE("/files/*key", storageHdlr.DeleteFile)

		v1.POST("/push/tokens", pushHdlr.RegisterToken)
		v1.DELETE("/push/tokens", pushHdlr.UnregisterToken)
		v1.POST("/push/send", pushHdlr.SendNotification)

		v1.GET("/presence", presenceHdlr.ListOnline)
		v1.GET("/presence/:userId", presenceHdlr.GetStatus)
	}

	// 12. Start server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Realtime service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 13. Graceful shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Hijacked WebSocket connections are not covered by server.Shutdown
	cancelHub()
	hub.Wait()
	callSvc.Shutdown()

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Failed to flush traces", zap.Error(err))
	}

	logger.Info("Server exited")
}

// connectWithRetry retries connect with exponential backoff until it succeeds,
// the attempts run out or ctx is cancelled
func connectWithRetry[T any](ctx context.Context, name string, connect func() (T, error)) (T, error) {
	const maxAttempts = 5
	delay := time.Second

	var conn T
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err = connect()
		if err == nil {
			return conn, nil
		}
		if attempt == maxAttempts {
			break
		}

		logger.Warn("Connection attempt failed, retrying",
			zap.String("store", name),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return conn, ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
	return conn, fmt.Errorf("%s unreachable after %d attempts: %w", name, maxAttempts, err)
}

func pushConfig(cfg *config.Config) *push.Config {
	pc := &push.Config{Type: push.ProviderType(cfg.Push.Provider)}
	if cfg.Push.FCMCredentialsPath != "" || cfg.Push.FCMProjectID != "" {
		pc.FCM = &push.FCMConfig{
			CredentialsPath: cfg.Push.FCMCredentialsPath,
			ProjectID:       cfg.Push.FCMProjectID,
		}
	}
	if cfg.Push.APNsBundleID != "" {
		pc.APNs = &push.APNsConfig{
			KeyPath:             cfg.Push.APNsKeyPath,
			KeyID:               cfg.Push.APNsKeyID,
			TeamID:              cfg.Push.APNsTeamID,
			CertificatePath:     cfg.Push.APNsCertificatePath,
			CertificatePassword: cfg.Push.APNsCertificatePassword,
			BundleID:            cfg.Push.APNsBundleID,
			Production:          cfg.Push.APNsProduction,
		}
	}
	return pc
}
