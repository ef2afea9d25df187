package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/beatbus/room-sync/internal/auth"
	"github.com/beatbus/room-sync/internal/config"
	"github.com/beatbus/room-sync/internal/room"
	"github.com/beatbus/room-sync/internal/spotify"
	"github.com/beatbus/room-sync/internal/tasks"
	"github.com/beatbus/room-sync/internal/worker"
	"github.com/beatbus/room-sync/internal/ws"
	"github.com/beatbus/room-sync/pkg/database"
	"github.com/beatbus/room-sync/pkg/events"
	"github.com/beatbus/room-sync/pkg/jwt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetLevel(logrus.DebugLevel)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()

	var bus events.Bus
	if len(cfg.KafkaBrokers) > 0 {
		bus = events.NewKafkaClient(cfg.KafkaBrokers, cfg.KafkaTopic, "room-sync-"+cfg.InstanceID)
	} else {
		logrus.Warn("KAFKA_BROKERS is not set, events stay inside this instance")
		bus = events.NewLocalBus()
	}

	signer, err := jwt.NewSigner(cfg.JWTSecret, "room-sync")
	if err != nil {
		logrus.Fatalf("Failed to create token signer: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	scheduler := tasks.NewClient(redisOpt)
	defer scheduler.Close()

	opts := room.Options{
		DefaultLifetime: cfg.DefaultLifetime,
		MaxLifetime:     cfg.MaxLifetime,
		DefaultMaxUsers: cfg.DefaultMaxUsers,
		AutoSkipRatio:   cfg.AutoSkipRatio,
		Scheduler:       scheduler,
	}
	if cfg.SpotifyClientID != "" {
		opts.Catalog = spotify.NewClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	}
	roomService := room.NewService(db, redisClient, bus, signer, opts)

	workers := worker.NewServer(
		redisOpt,
		worker.NewExpiryHandler(roomService),
		worker.NewPlaylistHandler(cfg.SMSGatewayURL, cfg.SMSGatewayKey),
	)
	if err := workers.Start(); err != nil {
		logrus.Fatalf("Failed to start worker server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(bus)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Error("Event hub stopped")
		}
	}()

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"instance": cfg.InstanceID,
		})
	})

	v1 := router.Group("/api/v1")
	auth.NewHandler(db, signer, cfg.TokenExpiry, cfg.Production()).RegisterRoutes(v1)
	room.NewHandler(roomService, signer).RegisterRoutes(v1)
	ws.NewHandler(roomService, hub, signer, cfg.AllowedOrigins).RegisterRoutes(v1)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		logrus.Infof("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP server shutdown failed")
	}
	workers.Shutdown()
	<-hubDone
	if err := bus.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close event bus")
	}
}

func openDatabase(cfg *config.Config) (*database.DB, error) {
	if cfg.DatabaseDriver == "mysql" {
		return database.NewMySQLDB(database.MySQLConfig{
			Host:     cfg.MySQLHost,
			Port:     cfg.MySQLPort,
			User:     cfg.MySQLUser,
			Password: cfg.MySQLPassword,
			Database: cfg.MySQLDatabase,
		})
	}
	logrus.Infof("Using SQLite database at %s", cfg.SQLitePath)
	return database.NewSQLiteDB(cfg.SQLitePath)
}
