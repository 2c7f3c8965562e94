package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	clerk "github.com/clerk/clerk-sdk-go/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"goldenbookAPI/handlers"
	"goldenbookAPI/internal/affinity"
	"goldenbookAPI/internal/catalog"
	"goldenbookAPI/internal/config"
	"goldenbookAPI/internal/geo"
	"goldenbookAPI/middleware"
	"goldenbookAPI/services"
)

// backends is everything main opens and must close on the way out.
type backends struct {
	source catalog.Source
	store  affinity.Store
	health func(ctx context.Context) error

	firebaseApp *firebase.App
	firestore   *firestore.Client
	dbPool      *pgxpool.Pool
}

func (b *backends) Close() {
	if b.firestore != nil {
		log.Println("Closing Firestore client...")
		b.firestore.Close()
	}
	if b.dbPool != nil {
		log.Println("Closing database connection pool...")
		b.dbPool.Close()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}
	setupLogging(cfg.Log)

	services.InitMetrics()
	middleware.InitPrometheus()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()

	verifier, err := newVerifier(ctx, cfg, b)
	if err != nil {
		log.Fatal(err)
	}

	guard, closeGuard, err := newGuard(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeGuard()

	geocoder := geo.NewGeoapifyClient(cfg.Geo.BaseURL, cfg.Geo.APIKey, cfg.Geo.Timeout)
	defer geocoder.Close()
	if cfg.Geo.APIKey == "" {
		log.Warn("GEO_API_KEY is not set, reverse geocoding will fail")
	}

	// Initialize services
	catalogService := services.NewCatalogService(b.source)
	discoveryService := services.NewDiscoveryService(catalogService, services.SearchSettings{
		SuggestionLimit: cfg.Search.SuggestionLimit,
		BlurDelay:       cfg.Search.BlurDelay,
	})
	toggler := affinity.NewToggler(b.store, guard, affinity.WithPhaseHook(services.ObserveTogglePhase))
	affinityService := services.NewAffinityService(toggler, catalogService, discoveryService)
	geoService := services.NewGeoService(geocoder)

	rateLimiter := middleware.NewIPRateLimiter(5, 30)

	router := handlers.NewRouter(handlers.RouterConfig{
		Catalog:     handlers.NewCatalogHandler(catalogService),
		Discovery:   handlers.NewDiscoveryHandler(discoveryService),
		Search:      handlers.NewSearchHandler(discoveryService),
		Affinity:    handlers.NewAffinityHandler(affinityService),
		Geo:         handlers.NewGeoHandler(geoService),
		Verifier:    verifier,
		RateLimiter: rateLimiter,
		MetricsUser: cfg.Metrics.User,
		MetricsPass: cfg.Metrics.Pass,
		Health:      b.health,
	})

	server := http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Starting server on port %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return ignoreCanceled(discoveryService.RunJanitor(gctx, cfg.Session.JanitorInterval, cfg.Session.IdleTTL))
	})

	g.Go(func() error {
		return ignoreCanceled(toggler.RunJanitor(gctx, cfg.Session.JanitorInterval, cfg.Affinity.CacheTTL))
	})

	g.Go(func() error {
		return ignoreCanceled(rateLimiter.Cleanup(gctx, 3*time.Minute))
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		discoveryService.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error(err)
	}

	log.Println("Server shutdown complete")
}

func setupLogging(cfg config.LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}

	if cfg.Catalog.Backend == config.BackendFirestore || cfg.Auth.Provider == config.ProviderFirebase {
		app, err := newFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		b.firebaseApp = app
	}

	switch cfg.Catalog.Backend {
	case config.BackendFirestore:
		client, err := b.firebaseApp.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("error getting firestore client: %w", err)
		}
		b.firestore = client
		b.source = catalog.NewFirestoreSource(client)
		b.store = affinity.NewFirestoreStore(client)
		b.health = func(ctx context.Context) error {
			_, err := client.Collection("locations").Limit(1).Documents(ctx).GetAll()
			return err
		}
		log.Println("Catalog: using Firestore")

	case config.BackendPostgres:
		pool, err := newPool(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		b.dbPool = pool

		source := catalog.NewPostgresSource(pool)
		if err := source.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		store := affinity.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		b.source = source
		b.store = store
		b.health = pool.Ping
		log.Println("Catalog: using Postgres")

	case config.BackendMemory:
		var source *catalog.MemorySource
		if cfg.Catalog.SeedFile != "" {
			loaded, err := catalog.LoadMemorySource(cfg.Catalog.SeedFile)
			if err != nil {
				return nil, err
			}
			source = loaded
		} else {
			log.Warn("Catalog: memory backend without a seed file, the catalog is empty")
			source = catalog.NewMemorySource(nil, nil, nil)
		}
		b.source = source
		b.store = affinity.NewMemoryStore(source)
		log.Println("Catalog: using in-memory seed")
	}

	return b, nil
}

// newFirebaseApp prefers base64 encoded credentials from config and falls
// back to the service account file.
func newFirebaseApp(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	var opt option.ClientOption

	if cfg.CredentialsJSON != "" {
		decoded, err := base64.StdEncoding.DecodeString(cfg.CredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		log.Println("Firebase: initializing from FIREBASE_CREDENTIALS_JSON")
	} else {
		if _, err := os.Stat(cfg.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("local firebase file not found: %s, and FIREBASE_CREDENTIALS_JSON is not set", cfg.CredentialsFile)
		}
		opt = option.WithCredentialsFile(cfg.CredentialsFile)
		log.Printf("Firebase: initializing from local file: %s", cfg.CredentialsFile)
	}

	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbConfig, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	return app, nil
}

func newPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to Postgres")
	return pool, nil
}

func newVerifier(ctx context.Context, cfg *config.Config, b *backends) (middleware.TokenVerifier, error) {
	switch cfg.Auth.Provider {
	case config.ProviderClerk:
		clerk.SetKey(cfg.Auth.ClerkSecretKey)
		log.Println("Clerk initialized successfully")
		return middleware.ClerkVerifier{}, nil
	default:
		client, err := b.firebaseApp.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("error getting firebase auth client: %w", err)
		}
		log.Println("Firebase Auth initialized successfully")
		return middleware.NewFirebaseVerifier(client), nil
	}
}

func newGuard(ctx context.Context, cfg *config.Config) (affinity.Guard, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Println("Affinity: using in-process toggle guard")
		return affinity.NewMemoryGuard(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Redis.Addr, err)
	}

	log.Printf("Affinity: using Redis toggle guard at %s", cfg.Redis.Addr)
	return affinity.NewRedisGuard(client, cfg.Affinity.GuardTTL), func() { client.Close() }, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
