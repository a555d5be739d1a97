package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"storehook/internal/config"
	"storehook/internal/constants"
	"storehook/internal/deduplication"
	"storehook/internal/envelope"
	"storehook/internal/ingress"
	"storehook/internal/keyset"
	"storehook/internal/logger"
	"storehook/internal/platform/appstore"
	"storehook/internal/platform/googleplay"
	"storehook/internal/publisher"
	"storehook/internal/webhook"
	"storehook/pkg/bootstrap"
	"storehook/pkg/circuitbreaker"
	"storehook/pkg/health"
	"storehook/pkg/logging"
	"storehook/pkg/metrics"
	"storehook/pkg/middleware"
	"storehook/pkg/ratelimit"
	"storehook/pkg/tracing"
)

// Mode selects the delivery source the app runs.
type Mode string

const (
	ModeServe   Mode = "serve"
	ModeConsume Mode = "consume"
)

type App struct {
	*bootstrap.Base
	mode           Mode
	dbConnector    *bootstrap.DatabaseConnector
	redis          redis.UniversalClient
	resolvers      []*keyset.Resolver
	dispatcher     *webhook.Dispatcher
	pipeline       *ingress.Pipeline
	tracerProvider *tracing.TracerProvider
	router         *gin.Engine
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger, mode Mode) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		mode:        mode,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterWebhookMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	a.dispatcher, a.resolvers = buildDispatcher(a.Config, a.Logger)

	if err := a.initRedis(ctx); err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	if err := a.InitProducer(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initPipeline(); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	switch a.mode {
	case ModeConsume:
		if err := a.InitConsumer(constants.ServiceName); err != nil {
			return fmt.Errorf("failed to initialize consumer: %w", err)
		}
	default:
		metrics.RegisterIngressMetrics()
		a.initRouter(ctx)
		a.initServer()
	}

	return nil
}

// buildDispatcher wires the enabled platform handlers in dispatch order:
// App Store first, since its envelope check is the cheaper rejection.
func buildDispatcher(cfg *config.Config, log logger.Logger) (*webhook.Dispatcher, []*keyset.Resolver) {
	var (
		handlers  []webhook.Handler
		resolvers []*keyset.Resolver
	)

	if as := cfg.Platforms.AppStore; as.Enabled {
		var resolver *keyset.Resolver
		if as.VerifySignature {
			fetcher := keyset.NewHTTPFetcher(
				keyset.HTTPFetcherConfig{
					Platform: constants.PlatformAppStore,
					URL:      as.JWKSURL,
					Timeout:  as.FetchTimeout,
				},
				&http.Client{},
				circuitbreaker.FromSettings("keyset-"+constants.PlatformAppStore, cfg.CircuitBreaker),
				log,
			)
			resolver = keyset.NewResolver(constants.PlatformAppStore, fetcher, log)
			resolvers = append(resolvers, resolver)
		}

		verifier := envelope.NewVerifier(envelope.VerifierConfig{
			Platform:   constants.PlatformAppStore,
			Algorithms: as.Algorithms,
			Disabled:   !as.VerifySignature,
			Issuer:     as.Issuer,
		}, resolverOrNil(resolver), log)
		handlers = append(handlers, appstore.NewHandler(verifier, log))
	}

	if gp := cfg.Platforms.GooglePlay; gp.Enabled {
		handlers = append(handlers, googleplay.NewHandler(googleplay.Config{UnwrapPubSub: gp.UnwrapPubSub}, log))
	}

	return webhook.NewDispatcher(log, handlers...), resolvers
}

func resolverOrNil(r *keyset.Resolver) envelope.KeyResolver {
	if r == nil {
		return nil
	}
	return r
}

func (a *App) initRedis(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb
	return nil
}

func (a *App) initPipeline() error {
	var dedup ingress.Deduplicator
	if a.redis != nil {
		repo := deduplication.NewCircuitBreakerRepository(deduplication.NewRepository(a.redis), a.Config.CircuitBreaker)
		dedup = deduplication.NewService(repo, a.Config.Deduplication, a.Logger)
	}

	pub, err := publisher.New(a.Producer, a.Config.Broker.Kafka.OutputTopic, a.Config.Publishing, a.Logger)
	if err != nil {
		return err
	}

	a.pipeline = ingress.NewPipeline(a.dispatcher, dedup, pub, a.Logger)
	return nil
}

func (a *App) initRouter(ctx context.Context) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	webhooks := router.Group("")
	if a.Config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.Config.RateLimit.RPS,
			Burst:           a.Config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.RateLimit.MaxAge) * time.Second,
		}
		webhooks.Use(ratelimit.RateLimitMiddleware(ctx, rateLimitConfig))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	ingress.NewHandler(a.pipeline, a.Config.Server.MaxBodyBytes, a.Logger).RegisterRoutes(webhooks)

	healthRegistry := a.healthRegistry()
	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
}

// healthRegistry reports redis as a hard dependency and an empty key set
// as degraded: the first signed delivery fetches it.
func (a *App) healthRegistry() *health.CheckerRegistry {
	registry := health.NewCheckerRegistry()
	if a.redis != nil {
		registry.Register(health.NewRedisChecker(a.redis))
	}
	for _, r := range a.resolvers {
		resolver := r
		registry.Register(health.CheckFunc{
			CheckName: "keyset_" + resolver.Platform(),
			Fn: func(ctx context.Context) error {
				if resolver.Snapshot().Size == 0 {
					return health.Degraded("no signing keys cached for %s", resolver.Platform())
				}
				return nil
			},
		})
	}
	return registry
}

func (a *App) initServer() {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	a.warmKeySets(gCtx)

	switch a.mode {
	case ModeConsume:
		inputTopic := a.Config.Broker.Kafka.InputTopic
		if inputTopic == "" {
			inputTopic = constants.DefaultInputTopic
		}
		g.Go(func() error {
			return a.Consumer.Consume(gCtx, inputTopic, ingress.ConsumeHandler(a.pipeline))
		})

	default:
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// warmKeySets fetches key sets in the background so the first signed
// delivery does not pay for the fetch. Failure is not fatal: a miss
// fetches again.
func (a *App) warmKeySets(ctx context.Context) {
	for _, r := range a.resolvers {
		resolver := r
		go func() {
			warmCtx := logging.WithPlatform(ctx, resolver.Platform())
			if err := resolver.Warm(warmCtx); err != nil {
				a.Logger.WarnwCtx(warmCtx, "Key set warm-up failed", "error", err)
				return
			}
			a.Logger.InfowCtx(warmCtx, "Key set loaded", "keys", resolver.Snapshot().Size)
		}()
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down webhook service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
