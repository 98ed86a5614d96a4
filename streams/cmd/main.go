package main

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/imtaco/stream-coordinator/internal/config"
	"github.com/imtaco/stream-coordinator/internal/httputil"
	"github.com/imtaco/stream-coordinator/internal/jwt"
	"github.com/imtaco/stream-coordinator/internal/livekit"
	"github.com/imtaco/stream-coordinator/internal/log"
	"github.com/imtaco/stream-coordinator/internal/otel"
	"github.com/imtaco/stream-coordinator/internal/redis"
	"github.com/imtaco/stream-coordinator/internal/retry"
	"github.com/imtaco/stream-coordinator/internal/workflow"
	"github.com/imtaco/stream-coordinator/streams/fanout"
	"github.com/imtaco/stream-coordinator/streams/lifecycle"
	"github.com/imtaco/stream-coordinator/streams/reconcile"
	"github.com/imtaco/stream-coordinator/streams/service"
	"github.com/imtaco/stream-coordinator/streams/stats"
	"github.com/imtaco/stream-coordinator/streams/store"
	"github.com/imtaco/stream-coordinator/streams/transport"
)

type Config struct {
	App       config.App       `mapstructure:"app"`
	HTTP      httputil.Config  `mapstructure:"http"`
	Redis     redis.Config     `mapstructure:"redis"`
	Otel      otel.Config      `mapstructure:"otel"`
	Retry     retry.Config     `mapstructure:"retry"`
	LiveKit   livekit.Config   `mapstructure:"livekit"`
	Stream    store.Config     `mapstructure:"stream"`
	Lifecycle lifecycle.Config `mapstructure:"lifecycle"`
	Reconcile reconcile.Config `mapstructure:"reconcile"`
	Fanout    fanout.Config    `mapstructure:"fanout"`
	Observer  transport.Config `mapstructure:"observer"`
	Stats     stats.Config     `mapstructure:"stats"`
}

func loadConfig() (*Config, error) {
	return config.Load(&Config{}, func(v *viper.Viper) {
		config.Setup(v, "app")
		httputil.Setup(v, "http")
		redis.Setup(v, "redis")
		otel.Setup(v, "otel")
		retry.Setup(v, "retry")
		livekit.Setup(v, "livekit")
		store.Setup(v, "stream")
		lifecycle.Setup(v, "lifecycle")
		reconcile.Setup(v, "reconcile")
		fanout.Setup(v, "fanout")
		transport.Setup(v, "observer")
		stats.Setup(v, "stats")
	})
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration", err)
	}

	logger, err := log.NewLogger(cfg.App.LogConfigFile)
	if err != nil {
		log.Fatal("Failed to create logger", err)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.App.InstanceID != "" {
		logger.Logger = logger.With(log.String("instance", cfg.App.InstanceID))
	}

	// global background context
	ctx := context.Background()

	otelShutdown, err := otel.Init(ctx, &cfg.Otel, logger.Module("Otel"))
	if err != nil {
		logger.Fatal("Failed to initialize OTEL provider", log.Error(err))
	}

	logger.Info("Starting stream coordinator",
		log.String("addr", cfg.HTTP.Addr),
		log.String("redis", cfg.Redis.Addr),
		log.String("livekit", cfg.LiveKit.Host))

	redisClient := redis.NewClient(&cfg.Redis)
	if err := retry.New(logger.Module("Retry"), cfg.Retry).Do(ctx, func() error {
		return redis.Ping(ctx, redisClient)
	}); err != nil {
		logger.Fatal("Redis unreachable", log.Error(err))
	}

	clock := clockwork.NewRealClock()
	auth := jwt.NewAuth(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.TokenTTL)
	rooms := livekit.NewRoomService(&cfg.LiveKit, auth, logger.Module("LiveKit"))

	streamStore := store.New(redisClient, &cfg.Stream, logger.Module("Store"))

	aggregator, err := stats.New(streamStore, prometheus.DefaultRegisterer, &cfg.Stats, logger.Module("Stats"))
	if err != nil {
		logger.Fatal("Failed to create stats aggregator", log.Error(err))
	}

	lc, err := lifecycle.New(streamStore, aggregator, &cfg.Lifecycle, clock, logger.Module("Lifecycle"))
	if err != nil {
		logger.Fatal("Failed to create lifecycle", log.Error(err))
	}

	broadcaster := fanout.New(streamStore, fanout.NewRegistry(), &cfg.Fanout, logger.Module("Fanout"))
	if err := broadcaster.Start(ctx); err != nil {
		logger.Fatal("Failed to start broadcaster", log.Error(err))
	}

	cfg.Reconcile.PurgeTTL = cfg.Lifecycle.PurgeTTL
	reconciler := reconcile.New(streamStore, lc, rooms, aggregator, &cfg.Reconcile, clock, logger.Module("Reconcile"))
	if err := reconciler.Start(ctx); err != nil {
		logger.Fatal("Failed to start reconciler", log.Error(err))
	}

	streamService := service.NewStreamService(streamStore, lc, rooms, auth, logger.Module("StreamSvc"))

	router := transport.NewRouter(
		streamService,
		broadcaster,
		livekit.NewWebhookReceiver(auth),
		prometheus.DefaultGatherer,
		&cfg.Observer,
		logger.Module("Router"),
	)
	server := httputil.NewServer(&cfg.HTTP, router.Handler())
	server.RegisterOnShutdown(router.Close)

	go func() {
		logger.Info("Starting HTTP server", log.String("addr", cfg.HTTP.Addr))
		if err := server.Listen(); err != nil {
			logger.Fatal("Failed to start HTTP server", log.Error(err))
		}
	}()

	if _, err := aggregator.Refresh(ctx); err != nil {
		logger.Warn("Initial stats refresh failed", log.Error(err))
	}
	logger.Info("Stream coordinator started")

	cleanup := func(ctx context.Context) {
		if err := reconciler.Stop(); err != nil {
			logger.Error("Failed to stop reconciler", log.Error(err))
		}
		// observer streams end through router.Close
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown HTTP server", log.Error(err))
		}
		if err := broadcaster.Stop(); err != nil {
			logger.Error("Failed to stop broadcaster", log.Error(err))
		}
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close redis client", log.Error(err))
		}
		if err := otelShutdown(ctx); err != nil {
			logger.Error("Failed to shutdown OTEL", log.Error(err))
		}
	}
	workflow.WaitGracefulShutdown(ctx, logger.Module("CleanUp"), cleanup, cfg.App.ShutdownTimeout)
}
