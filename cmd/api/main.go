package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"mediagen/internal/credits"
	"mediagen/internal/domain"
	"mediagen/internal/gallery"
	"mediagen/internal/generation"
	httpapi "mediagen/internal/http"
	"mediagen/internal/http/handlers"
	"mediagen/internal/infra"
	"mediagen/internal/infra/credentials"
	"mediagen/internal/infra/geoip"
	"mediagen/internal/middleware"
	"mediagen/internal/notify"
	"mediagen/internal/poller"
	"mediagen/internal/providers"
	"mediagen/internal/providers/dashscope"
	"mediagen/internal/providers/synthetic"
	"mediagen/internal/session"
	"mediagen/internal/storage"
)

const (
	jwtIssuer    = "mediagen"
	redisPrefix  = "mediagen:"
	staticPrefix = "/static"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: redis connection failed")
		}
		defer rdb.Close()
	}

	// Credits
	var creditService domain.CreditService
	switch cfg.CreditBackend {
	case "redis":
		creditService = credits.NewRedisService(rdb, redisPrefix+"credits:")
	case "memory":
		logger.Warn().Msg("api: using in-memory credit balances")
		creditService = credits.NewMemoryService(nil)
	default:
		creditService = credits.NewPGService(runner)
	}
	ledger := credits.NewLedger(creditService, logger)
	prices := credits.DefaultPriceTable()

	// Providers
	submitter, err := buildSubmitter(ctx, cfg, runner, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: provider setup failed")
	}

	// Storage
	blobs, diskDir, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: storage setup failed")
	}
	var blobPrefix string
	if diskDir != "" {
		blobPrefix = staticPrefix
	}
	repo := gallery.NewPGStore(runner)
	persister := gallery.NewPersister(repo, gallery.PersisterOptions{
		Blobs:     blobs,
		Retention: cfg.GalleryRetention,
		Logger:    logger,
	})

	// Notices
	hub := notify.NewHub(logger)
	sinks := notify.Multi{notify.LogSink{Logger: logger}}
	var forwarder handlers.Forwarder
	if cfg.NotifyRedis {
		redisSink := notify.NewRedisSink(rdb, redisPrefix+"notices:", logger)
		sinks = append(sinks, redisSink)
		forwarder = redisSink
	} else {
		sinks = append(sinks, hub)
	}
	if cfg.AMQPURL != "" {
		amqpSink, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: amqp setup failed")
		}
		defer amqpSink.Close()
		sinks = append(sinks, amqpSink)
	}

	estimator := generation.Estimator{}
	deps := generation.Deps{
		Ledger:    ledger,
		Pricing:   prices,
		Submitter: submitter,
		Persister: persister,
		Sink:      sinks,
		Poll: poller.Options{
			Interval:             cfg.PollInterval,
			Timeout:              cfg.PollTimeout,
			MaxTransientFailures: cfg.PollMaxTransientErrors,
		},
		Estimator: estimator,
		Logger:    logger,
		OnChange: func(userID string, job domain.GenerationJob) {
			hub.Publish(userID, notify.Event{Type: notify.EventSnapshot, Data: estimator.View(job, time.Now())})
		},
	}
	sessions := session.NewRegistry(ctx, deps, cfg.SessionIdleTTL, logger)

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	}
	var country middleware.CountryLookup
	if resolver != nil {
		defer resolver.Close()
		country = resolver.CountryCode
	}

	app := &handlers.App{
		Sessions: sessions,
		Gallery:  gallery.NewService(repo, blobs, logger),
		Credits:  ledger,
		Prices:   prices,
		Hub:      hub,
		Auth:     middleware.ContextAuth{},
		Logger:   logger,
		Notices:  forwarder,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		JWTIssuer:       jwtIssuer,
		DefaultLocale:   cfg.DefaultLocale,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.AllowedOrigins,
		BlobPrefix:      blobPrefix,
		Country:         country,
		Denied:          app.Denied,
	})
	server := infra.NewHTTPServer(ctx, cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTPIdleTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server")
		}
		sessions.Close()
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}

func buildSubmitter(ctx context.Context, cfg *infra.Config, runner infra.SQLExecutor, logger *infra.Logger) (*generation.Submitter, error) {
	if cfg.SyntheticProvider {
		logger.Warn().Msg("api: synthetic provider enabled, no remote calls will be made")
		syn := synthetic.New(synthetic.Options{BaseURL: cfg.StorageBaseURL})
		return generation.NewSubmitter(map[domain.Kind]providers.Provider{
			domain.KindImage:      syn,
			domain.KindVideo:      syn,
			domain.KindTranscript: syn,
		}), nil
	}
	apiKey, err := credentials.NewStore(runner).Resolve(ctx, credentials.ProviderDashScope, cfg.DashScopeAPIKey)
	if err != nil {
		return nil, err
	}
	client, err := dashscope.NewClient(dashscope.Options{
		APIKey:            apiKey,
		BaseURL:           cfg.DashScopeBaseURL,
		ImageModel:        cfg.ImageModel,
		VideoModel:        cfg.VideoModel,
		TextModel:         cfg.TextModel,
		Logger:            logger,
		RequestTimeout:    cfg.ProviderTimeout,
		RequestsPerSecond: cfg.DashScopeRPS,
	})
	if err != nil {
		return nil, err
	}
	return generation.NewSubmitter(map[domain.Kind]providers.Provider{
		domain.KindImage:      client,
		domain.KindVideo:      client,
		domain.KindTranscript: client,
	}), nil
}
