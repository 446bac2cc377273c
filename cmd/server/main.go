package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	gkecho "github.com/gatekey-io/gatekey/api/echo"
	"github.com/gatekey-io/gatekey/cache"
	rediscache "github.com/gatekey-io/gatekey/cache/redis"
	"github.com/gatekey-io/gatekey/config"
	"github.com/gatekey-io/gatekey/domain"
	"github.com/gatekey-io/gatekey/inmem"
	"github.com/gatekey-io/gatekey/internal/iamproof"
	"github.com/gatekey-io/gatekey/internal/metrics"
	gklog "github.com/gatekey-io/gatekey/log"
	"github.com/gatekey-io/gatekey/mongodb"
	"github.com/gatekey-io/gatekey/services"
	"github.com/gatekey-io/gatekey/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	gklog.Setup(cfg.LogLevel, cfg.LogPretty)

	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("storage_backend", cfg.StorageBackend).
		Str("cache_backend", cfg.CacheBackend).
		Str("log_level", cfg.LogLevel).
		Msg("Starting gatekey server")

	var tracerProvider *sdktrace.TracerProvider
	if cfg.TracingEnabled {
		tp, tpErr := tracing.InitTracerProvider(cfg.OtelServiceName)
		if tpErr != nil {
			log.Fatal().Err(tpErr).Msg("Failed to initialize TracerProvider")
		}
		tracerProvider = tp
	}

	ctx := context.Background()

	var (
		methodRepo domain.MethodRepository
		tokenRepo  domain.TokenRepository
	)
	switch cfg.StorageBackend {
	case "mongodb":
		if initErr := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); initErr != nil {
			log.Fatal().Err(initErr).Msg("Failed to initialize MongoDB connection")
		}
		db := mongodb.GetDB()

		methodRepo, err = mongodb.NewMethodRepositoryMongo(ctx, db)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize MethodRepository")
		}
		tokenRepo, err = mongodb.NewTokenRepositoryMongo(ctx, db)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize TokenRepository")
		}
	case "memory":
		log.Warn().Msg("Using in-memory storage, configurations will not survive a restart")
		methodRepo = inmem.NewMethodStore()
		tokenRepo = inmem.NewTokenStore()
	default:
		log.Fatal().Str("backend", cfg.StorageBackend).Msg("Unknown STORAGE_BACKEND")
	}

	var (
		tokenCache  cache.TokenStore
		redisClient *redis.Client
	)
	switch cfg.CacheBackend {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			log.Fatal().Err(pingErr).Str("addr", cfg.RedisAddr).Msg("Failed to ping Redis")
		}
		tokenCache = rediscache.NewTokenStore(redisClient, cfg.CachePrefix)
	case "memory":
		tokenCache = cache.NewMemoryTokenStore(time.Minute)
	default:
		log.Fatal().Str("backend", cfg.CacheBackend).Msg("Unknown CACHE_BACKEND")
	}

	signer := services.NewTokenSigner()
	signer.AddKeySigner(cfg.JWTSecretKey)

	// The proof verifier port ships with the development implementation;
	// production deployments plug a cloud-platform verifier in here.
	proofs := iamproof.NewInsecureVerifier()

	configService := services.NewConfigService(methodRepo, tokenRepo)
	issuer := services.NewTokenIssuer(methodRepo, tokenRepo, tokenCache, signer, proofs, cfg.TokenIssuer)

	metrics.InitCustomMetrics(prometheus.DefaultRegisterer)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	gkecho.NewAuthMethodAPI(configService, issuer).RegisterRoutes(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		if cfg.StorageBackend == "mongodb" {
			if pingErr := mongodb.Ping(c.Request().Context()); pingErr != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "mongo": pingErr.Error()})
			}
		}
		if redisClient != nil {
			if pingErr := redisClient.Ping(c.Request().Context()).Err(); pingErr != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "redis": pingErr.Error()})
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if cfg.SweepIntervalMinutes > 0 {
		go runSweeper(sweepCtx, tokenRepo, tokenCache, time.Duration(cfg.SweepIntervalMinutes)*time.Minute)
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if srvErr := e.Start(":" + cfg.HTTPPort); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
			log.Fatal().Err(srvErr).Msg("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down server")

	stopSweep()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
	}

	if closeErr := tokenCache.Close(); closeErr != nil {
		log.Error().Err(closeErr).Msg("Token cache shutdown error")
	}
	if redisClient != nil {
		if closeErr := redisClient.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Redis client shutdown error")
		}
	}

	if tracerProvider != nil {
		if tpErr := tracerProvider.Shutdown(shutdownCtx); tpErr != nil {
			log.Error().Err(tpErr).Msg("TracerProvider shutdown error")
		}
	}

	if cfg.StorageBackend == "mongodb" {
		mongodb.CloseMongoDB(shutdownCtx)
	}

	log.Info().Msg("Server gracefully stopped.")
}

// runSweeper periodically removes expired ledger tokens and stale cache
// entries. Liveness checks never depend on it; it only reclaims space.
func runSweeper(ctx context.Context, tokens domain.TokenRepository, tokenCache cache.TokenStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := tokens.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				log.Error().Err(err).Msg("Expired-token sweep failed")
				continue
			}
			if removed > 0 {
				log.Info().Int64("removed", removed).Msg("Swept expired tokens")
			}
			if err := tokenCache.DeleteExpired(ctx); err != nil {
				log.Warn().Err(err).Msg("Cache sweep failed")
			}
		}
	}
}
