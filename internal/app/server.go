package app

import (
	"context"
	"net/http"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ridehail/internal/config"
	"ridehail/internal/handler"
	"ridehail/internal/middleware"
	"ridehail/internal/redis"
	"ridehail/internal/repository/postgres"
	"ridehail/internal/service"
)

// Server is the wired HTTP service and everything it owns.
type Server struct {
	HTTP  *http.Server
	Audit *AuditStack

	cfg     *config.Config
	nrApp   *newrelic.Application
	closers []func()
}

// NewServer connects the configured backends and wires the service graph.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log := zap.L()
	s := &Server{cfg: cfg}

	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err := newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Warn("new relic disabled", zap.Error(err))
		} else {
			s.nrApp = nrApp
			s.closers = append(s.closers, func() { nrApp.Shutdown(5 * time.Second) })
			log.Info("new relic enabled", zap.String("app", cfg.NewRelic.AppName))
		}
	}

	var stores service.Stores
	switch cfg.Store.Driver {
	case config.StoreMemory:
		stores = MemoryStores()
		log.Info("using in-memory store")
	default:
		db, err := NewDatabase(ctx, cfg.Database, s.nrApp)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			s.Close()
			return nil, err
		}
		stores = PostgresStores(db)
		log.Info("connected to postgres", zap.String("host", cfg.Database.Host))
	}

	var (
		locations redis.LocationStoreInterface
		locks     redis.LockStoreInterface
		cache     redis.CandidateCacheInterface
		responses redis.ResponseCacheInterface
	)
	if cfg.Redis.Addr != "" {
		client, err := NewRedisClient(ctx, cfg.Redis, s.nrApp)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		cacheStore := redis.NewCacheStore(client, cfg.Matching.CandidateTTL)
		locations = redis.NewLocationStore(client)
		locks = redis.NewLockStore(client)
		cache = cacheStore
		responses = cacheStore
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	auditStack, err := NewAuditStack(ctx, cfg.Audit, log)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Audit = auditStack
	s.closers = append(s.closers, auditStack.Close)

	fares := service.NewFareCalculator(cfg.Pricing.BaseFare, cfg.Pricing.PerKmRate)
	directory := service.NewDriverDirectory(stores.Drivers, locations, cache, auditStack.Recorder)
	matcher := service.NewDriverMatcher(directory, stores.Assigner, locks, cfg.Matching.LockTTL)
	rides := service.NewRideService(stores, matcher, directory, fares, auditStack.Recorder)
	accounts := service.NewAccountService(stores.Users, stores.Drivers, directory, auditStack.Recorder)
	reports := service.NewReportService(stores.Reports, auditStack.Lister)

	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty; tokens are signed with an empty key")
	}

	deps := RouterDeps{
		RideHandler:   handler.NewRideHandler(rides, fares),
		DriverHandler: handler.NewDriverHandler(directory, accounts),
		UserHandler:   handler.NewUserHandler(accounts),
		AdminHandler:  handler.NewAdminHandler(reports),
		Authenticator: middleware.NewAuthenticator(cfg.Auth.JWTSecret),
		ResponseCache: responses,
		NewRelicApp:   s.nrApp,
		Logger:        log,
	}
	if cfg.RateLimit.RPS > 0 {
		deps.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	s.HTTP = &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s, nil
}

// Run serves HTTP and flushes audit batches until ctx is cancelled, then
// shuts both down.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", s.HTTP.Addr))
		if err := s.HTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "app: serve http")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return eris.Wrap(s.HTTP.Shutdown(shutdownCtx), "app: shutdown http")
	})

	if s.Audit != nil && s.Audit.Postgres != nil {
		g.Go(func() error {
			return s.Audit.Postgres.Run(gctx, s.cfg.Audit.FlushInterval)
		})
	}

	return g.Wait()
}

// Close releases every backend in reverse order of acquisition.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
