package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nearest-store-service/internal/adapters/cache"
	"nearest-store-service/internal/adapters/catalog"
	"nearest-store-service/internal/adapters/directory"
	"nearest-store-service/internal/adapters/geocode"
	"nearest-store-service/internal/adapters/geoip"
	"nearest-store-service/internal/adapters/repositories"
	"nearest-store-service/internal/api"
	"nearest-store-service/internal/api/handlers"
	"nearest-store-service/internal/config"
	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/platform/db"
	"nearest-store-service/internal/platform/obs"
	"nearest-store-service/internal/ports"
	"nearest-store-service/internal/services"
	"nearest-store-service/internal/services/session"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// main is the application composition root.
// It wires concrete adapters (Overpass, Nominatim, Postgres, Redis, GeoIP)
// behind ports and starts the HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not configured yet.
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log, err := obs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	static, err := catalog.NewEmbedded()
	if err != nil {
		return err
	}

	var (
		storeCatalog ports.StoreCatalog = static
		addressCache ports.AddressCache
		sqlCache     *cache.SQLAddressCache
	)

	// Postgres is optional: without it the embedded catalog serves the fallback.
	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		if err := prepareDatabase(ctx, sqlDB, cfg.SeedPath, log); err != nil {
			return err
		}
		storeCatalog = repositories.NewSQLStoreCatalog(sqlDB, log)
		sqlCache = cache.NewSQLAddressCache(sqlDB, cfg.AddressCacheTTL, log)
		addressCache = sqlCache
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unavailable, address cache falls back", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			addressCache = cache.NewRedisAddressCache(rdb, cfg.AddressCacheTTL)
		}
	}

	var geocoder ports.ReverseGeocoder = geocode.NewNominatimClient(geocode.Options{
		BaseURL:   cfg.NominatimURL,
		UserAgent: cfg.UserAgent,
		RPS:       cfg.NominatimRPS,
		Burst:     cfg.NominatimBurst,
		Log:       log,
	})
	if addressCache != nil {
		geocoder = geocode.NewCachingGeocoder(geocoder, addressCache, log)
	}

	dir := directory.NewOverpassClient(directory.Options{
		Endpoint:   cfg.OverpassURL,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.SearchTimeout,
		MaxResults: cfg.SearchMaxResults,
		Excluded:   cfg.ExcludedNames,
		Log:        log,
	})

	enricher := services.NewEnricher(geocoder, cfg.EnrichTimeout, log)
	locator := services.NewLocator(dir, storeCatalog, static, enricher, services.LocateOptions{
		RadiusMeters: cfg.SearchRadiusM,
		NameFilter:   cfg.BrandName,
		EnrichLimit:  cfg.EnrichLimit,
		Rank: services.RankOptions{
			MaxRadiusKm:        cfg.MaxRadiusKm,
			TopN:               cfg.TopN,
			SpeedFactor:        cfg.SpeedKmh,
			FixedOffsetMinutes: cfg.ETAOffsetMin,
		},
	}, log)

	provider := services.NewPositionProvider(
		domain.Position{Lat: cfg.DefaultLat, Lon: cfg.DefaultLon},
		cfg.LocateTimeout,
		log,
	)

	sessions := session.NewManager(session.Options{
		Locator:   locator,
		Addresses: enricher,
		Provider:  provider,
		IdleTTL:   cfg.SessionIdleTTL,
		Log:       log,
	})
	defer sessions.CloseAll()

	var ipLocator handlers.IPLocator
	if cfg.GeoIPDBPath != "" {
		gl, err := geoip.Open(cfg.GeoIPDBPath)
		if err != nil {
			log.Warn("geoip disabled", zap.Error(err))
		} else {
			defer gl.Close()
			ipLocator = gl
		}
	}

	scheduler, err := newScheduler(ctx, sessions, sqlCache, log)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	router := api.NewRouter(api.Deps{
		Sessions:  sessions,
		GeoIP:     ipLocator,
		Districts: services.DefaultDistricts,
		Log:       log,
	})

	// WriteTimeout stays zero: the map websocket is long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func prepareDatabase(ctx context.Context, sqlDB *sql.DB, seedPath string, log *zap.Logger) error {
	if err := repositories.InitSchema(ctx, sqlDB); err != nil {
		return err
	}
	n, err := repositories.SeedStores(ctx, sqlDB, seedPath)
	if err != nil {
		return err
	}
	log.Info("store catalog seeded", zap.Int("stores", n))
	return nil
}

func newScheduler(ctx context.Context, sessions *session.Manager, sqlCache *cache.SQLAddressCache, log *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	if _, err := c.AddFunc("@every 1m", func() {
		sessions.SweepIdle(time.Now())
	}); err != nil {
		return nil, err
	}

	if sqlCache != nil {
		if _, err := c.AddFunc("@hourly", func() {
			n, err := sqlCache.Prune(ctx)
			if err != nil {
				log.Warn("address cache prune failed", zap.Error(err))
				return
			}
			log.Info("address cache pruned", zap.Int64("removed", n))
		}); err != nil {
			return nil, err
		}
	}

	return c, nil
}
