package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kkkkikiki/campaign/internal/cache"
	"github.com/kkkkikiki/campaign/internal/config"
	"github.com/kkkkikiki/campaign/internal/database"
	"github.com/kkkkikiki/campaign/internal/engine"
	"github.com/kkkkikiki/campaign/internal/rpc"
	"github.com/kkkkikiki/campaign/internal/service"
	"github.com/kkkkikiki/campaign/internal/store"
	"github.com/kkkkikiki/campaign/internal/telemetry"
)

func main() {
	ctx := context.Background()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.App.Verbose() {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}
	log.Printf("Starting campaign engine in %s mode (log level %s)", cfg.App.Environment, cfg.App.LogLevel)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Otel)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("Error flushing traces: %v", err)
		}
	}()

	// Initialize database connections
	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database connections: %v", err)
		}
	}()

	listingCache := newListingCache(ctx, cfg.Redis)
	defer func() {
		if closer, ok := listingCache.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				log.Printf("Error closing cache: %v", err)
			}
		}
	}()

	eng := engine.New(store.New(db.SQL), engine.WithCache(listingCache, cfg.Redis.TTL))

	var limiter *service.RateLimiter
	if cfg.Rate.Enabled {
		limiter = service.NewRateLimiter(cfg.Rate.PerSec, cfg.Rate.Burst,
			rpc.UseCampaignProcedure, rpc.RedeemTokenProcedure)
		defer limiter.Stop()
		log.Printf("Rate limit: %.2f requests/s per user, burst %d", cfg.Rate.PerSec, cfg.Rate.Burst)
	}

	router := service.NewRouter(service.NewCampaignServer(eng), service.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Limiter:        limiter,
		DB:             db,
		LogRequests:    cfg.App.Verbose(),
	})

	// Create server with configuration optimized for high concurrency
	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(router, &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting campaign engine on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		return
	}

	log.Println("Server exited gracefully")
}

// newListingCache returns a Redis cache when an address is configured and
// Redis answers, and an in-process cache otherwise.
func newListingCache(ctx context.Context, cfg config.RedisConfig) cache.Cache {
	if cfg.Addr == "" {
		log.Println("REDIS_ADDR not set, using in-memory listing cache")
		return cache.NewInMemoryCache()
	}

	redisCache, err := cache.NewRedisCache(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		log.Printf("Redis unavailable at %s, using in-memory listing cache: %v", cfg.Addr, err)
		return cache.NewInMemoryCache()
	}
	log.Printf("Using Redis listing cache at %s", cfg.Addr)
	return redisCache
}
