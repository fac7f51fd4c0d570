package main

import (
	"context"   // context package is needed for Redis operations and shutdown
	"errors"    // errors package is needed to detect server close
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Signal handling
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"pixelforge/internal/api"        // HTTP layer
	"pixelforge/internal/config"     // Configuration
	"pixelforge/internal/db"         // Database
	"pixelforge/internal/generation" // Generation flow
	"pixelforge/internal/ledger"     // Wallet ledger
	"pixelforge/internal/metrics"    // Prometheus metrics
	"pixelforge/internal/ratelimit"  // Sliding window limiter
	"pixelforge/internal/users"      // User provisioning
	"pixelforge/internal/utils"      // Redis cache

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	log := logrus.StandardLogger()
	if cfg.IsProd {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err) // Refuse to serve with an empty JWT secret
	}

	// Connect to the database
	gdb, err := db.Open(cfg)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(gdb); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
	}

	// Setup Redis client, optional for local development
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		// Test Redis connection
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		log.Warn("REDIS_ADDR not set; caching disabled and rate limits kept in memory")
	}
	cache := utils.NewCache(redisClient, cfg.CacheTTL)

	// Rate limiter shared by every replica when Redis is available
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if redisClient != nil {
		store = ratelimit.NewRedisStore(redisClient, "")
	}
	limiter, err := ratelimit.New(store, cfg.RateLimitMax, cfg.RateLimitWindow)
	if err != nil {
		log.Fatalf("invalid rate limit settings: %v", err)
	}

	// Services
	collector := metrics.New()
	wallet := ledger.New(gdb,
		ledger.WithTimeout(cfg.LedgerTimeout),
		ledger.WithLogger(log),
		ledger.OnCommit(api.CacheInvalidation(cache, log)),
		ledger.OnCommit(collector.RecordLedgerEntry),
	)
	flow := generation.NewFlow(gdb, wallet, generation.NewPlaceholderGenerator(cfg.ImageBaseURL), log)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := api.NewRouter(api.Deps{
		Config:  cfg,
		Log:     log,
		Users:   users.NewService(gdb, log),
		Ledger:  wallet,
		Flow:    flow,
		Cache:   cache,
		Limiter: limiter,
		Metrics: collector,
	})

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		log.Fatalf("failed to set trusted proxies: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithFields(logrus.Fields{
			"port":        cfg.AppPort,
			"driver":      cfg.DBDriver,
			"version":     cfg.AppVersion,
			"redis":       redisClient != nil,
			"rate_limit":  cfg.RateLimitMax,
			"rate_window": cfg.RateLimitWindow.String(),
			"cors":        cfg.CORSOrigins,
		}).Info("PixelForge API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
