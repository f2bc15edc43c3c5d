package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/retroden/netplay-service/internal/cache"
	"github.com/retroden/netplay-service/internal/config"
	"github.com/retroden/netplay-service/internal/domain"
	"github.com/retroden/netplay-service/internal/handler"
	"github.com/retroden/netplay-service/internal/joincode"
	"github.com/retroden/netplay-service/internal/repository"
	"github.com/retroden/netplay-service/internal/service"
	"github.com/retroden/netplay-service/internal/signaling"
	"github.com/retroden/netplay-service/pkg/database"
	"github.com/retroden/netplay-service/pkg/jwt"
	pkglog "github.com/retroden/netplay-service/pkg/log"
	"github.com/retroden/netplay-service/pkg/middleware"
	"github.com/retroden/netplay-service/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "netplay-service",
	})
	logger := pkglog.L()

	// Connect to database using GORM
	dbConfig := &database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	db, err := database.New(dbConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate
	if err := database.AutoMigrate(db, &domain.SessionModel{}, &domain.ParticipantModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	// Initialize repository
	sessionRepo := repository.NewGormSessionRepository(db)

	// Initialize Redis cache
	var sessionCache cache.SessionCache
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisSessionCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisCache.Close()
		sessionCache = redisCache
		logger.Info().Msg("redis cache connected")
	}

	// Initialize event publisher
	ps, err := pubsub.NewRedisPubSub(pubsub.RedisConfig{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis pubsub")
	}
	defer ps.Close()
	logger.Info().Msg("redis pubsub connected")

	// Initialize signaling relay client
	var signalClient service.SignalingClient
	if cfg.Signaling.Enabled {
		signalClient = signaling.NewClient(
			cfg.Signaling.BaseURL,
			cfg.Signaling.Token,
			time.Duration(cfg.Signaling.TimeoutSeconds)*time.Second,
		)
		logger.Info().Str("base_url", cfg.Signaling.BaseURL).Msg("signaling relay enabled")
	}

	// Initialize service
	codes := joincode.New(cfg.Netplay.CodeLength, joincode.DefaultAlphabet)
	netplayService := service.NewNetplayService(
		sessionRepo,
		codes,
		sessionCache,
		ps,
		signalClient,
		service.Options{
			DefaultTTL:      time.Duration(cfg.Netplay.DefaultTTLMinutes) * time.Minute,
			MinTTL:          time.Duration(cfg.Netplay.MinTTLMinutes) * time.Minute,
			MaxTTL:          time.Duration(cfg.Netplay.MaxTTLMinutes) * time.Minute,
			MaxParticipants: cfg.Netplay.MaxParticipants,
			MaxPerHost:      cfg.Netplay.MaxSessionsPerHost,
			CodeAttempts:    cfg.Netplay.CodeAttempts,
			CacheTTL:        time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		},
	)

	// Start expiry sweeper
	sweeper := service.NewSweeper(netplayService, time.Duration(cfg.Netplay.SweepIntervalSecond)*time.Second)
	sweeper.Start()

	// Initialize auth middleware
	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("auth.jwt_secret is required")
	}
	authMiddleware := middleware.NewAuthMiddleware(jwt.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer))

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(netplayService, authMiddleware)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Register routes
	httpHandler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("addr", addr).
			Str("driver", cfg.Database.Driver).
			Int("max_participants", cfg.Netplay.MaxParticipants).
			Msg("netplay-service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		sweeper.Stop()
		<-sweeper.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("netplay-service stopped")
}
