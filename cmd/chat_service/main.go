package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "team_portal_service/cmd/chat_service/docs" // 引入生成的 Swagger 文档
	"team_portal_service/internal/chat/app"
	"team_portal_service/internal/chat/repository"
	"team_portal_service/internal/chat/router"
	"team_portal_service/pkg/config"
	"team_portal_service/pkg/database"
	"team_portal_service/pkg/logger"
	testtool "team_portal_service/pkg/test_tool"
	"team_portal_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	cfg.ApplyDefaults()

	// chat_service healthcheck: container probe against the grpc health endpoint
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(healthcheck(cfg))
	}

	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	defer logger.Log.Sync()
	// local 預設開 debug log
	logger.Log.SetDebugMode(config.IsLocal())

	if cfg.JWTSecret == "" {
		logger.Log.Fatal("jwt_secret is required")
	}

	testtool.StartPprof("")

	// 1. PostgreSQL: gorm 存訊息, pgx 讀 team_members
	dsn := database.PostgresDSN(cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database)
	pgConn := database.Connection{
		ConnectStr:    dsn,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	}
	gormDB, err := database.NewPGConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL (gorm) after retries",
			zap.String("host", cfg.PostgreSQL.Host), zap.Error(err))
	}
	if err := repository.AutoMigrate(gormDB); err != nil {
		logger.Log.Fatal("auto migrate chat tables failed", zap.Error(err))
	}

	pool, err := database.NewDatabaseConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL (pgx) after retries",
			zap.String("host", cfg.PostgreSQL.Host), zap.Error(err))
	}
	defer pool.Close()

	// 2. Redis: member profile cache
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.Addr, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	defer redisClient.Close()

	members := repository.NewCachedMemberRepository(
		repository.NewMemberRepository(pool),
		repository.NewMemberCache(redisClient),
		cfg.MemberCacheTTL,
	)

	// 3. MinIO: chat attachment
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:      fmt.Sprintf("%s:%d", cfg.MinIO.Host, cfg.MinIO.Port),
		User:          cfg.MinIO.User,
		Password:      cfg.MinIO.Password,
		BucketName:    cfg.MinIO.BucketName,
		UseSSL:        cfg.MinIO.UseSSL,
		PublicURL:     cfg.MinIO.PublicURL,
		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("connect minio failed", zap.Error(err))
	}

	// 4. metrics + realtime hub
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := app.NewMetrics(reg)

	hub := app.NewHub(cfg.Realtime.SendBuffer, metrics)
	notifiers := []app.Notifier{hub}

	// 5. Kafka: activity sink, brokers 為空時不啟用
	if len(cfg.Kafka.Brokers) > 0 {
		writer, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("connect kafka failed", zap.Strings("brokers", cfg.Kafka.Brokers), zap.Error(err))
		}
		defer writer.Close()
		notifiers = append(notifiers, repository.NewActivityRepository(writer))
	}

	// 6. UseCases
	tokens := token.NewManager(cfg.JWTSecret, config.EnvConfig.ChatService, 24*time.Hour)
	presence := app.NewPresenceRegistry()
	messages := app.NewMessageUseCase(
		repository.NewMessageRepository(gormDB),
		members,
		repository.NewBlobRepository(minioClient),
		app.MessageOptions{
			PersistTimeout: cfg.PersistTimeout,
			MaxUploadBytes: cfg.Upload.MaxBytes,
			AllowedTypes:   cfg.Upload.AllowedTypes,
			Metrics:        metrics,
		},
		notifiers...,
	)
	sessions := app.NewSessionManager(hub, presence, messages, app.SessionOptions{
		EventsPerSecond: cfg.Realtime.EventsPerSecond,
		EventBurst:      cfg.Realtime.EventBurst,
	}, metrics)

	// 7. gRPC health
	var healthSrv *database.HealthServer
	if cfg.GRPCPort != "" {
		healthSrv, err = database.NewHealthServer(":"+cfg.GRPCPort, config.EnvConfig.ChatService)
		if err != nil {
			logger.Log.Fatal("start grpc health server failed", zap.Error(err))
		}
		go func() {
			if err := healthSrv.Serve(); err != nil {
				logger.Log.Error("grpc health server stopped", zap.Error(err))
			}
		}()
	}

	// 8. 啟動 Fiber
	r := fiber.New(fiber.Config{BodyLimit: int(cfg.Upload.MaxBytes) + 1024*1024})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Log.Fatal("Failed to open access log file", zap.Error(err))
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	router.RegisterRoutes(r, router.Handlers{
		Chat:      app.NewChatHandler(messages, app.NewAuthUseCase(members, tokens), presence),
		Websocket: app.NewChatWebsocketHandler(sessions, app.RealtimeOptions{PingInterval: cfg.Realtime.PingInterval, WriteWait: cfg.Realtime.WriteWaitDuration}),
		Tokens:    tokens,
		Gatherer:  reg,
	})

	go func() {
		port := ":" + cfg.Port
		logger.Log.Info("Chat Service listening", zap.String("port", port))
		if err := r.Listen(port); err != nil {
			logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Log.Info("shutting down chat service")
	if healthSrv != nil {
		healthSrv.Shutdown()
	}
	if err := r.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Log.Error("fiber shutdown", zap.Error(err))
	}
}

func healthcheck(cfg config.Chat) int {
	if cfg.GRPCPort == "" {
		fmt.Fprintln(os.Stderr, "grpc_port not configured")
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.CheckHealth(ctx, "127.0.0.1:"+cfg.GRPCPort, config.EnvConfig.ChatService, 3*time.Second); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
