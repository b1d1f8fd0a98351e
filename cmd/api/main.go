package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ln-donations/internal/config"
	"ln-donations/internal/donor"
	"ln-donations/internal/donor/memory"
	"ln-donations/internal/donor/postgres"
	"ln-donations/internal/handlers"
	"ln-donations/internal/merchants"
	"ln-donations/internal/processor"
	"ln-donations/internal/ratelimit"
	"ln-donations/internal/receipt"
	ws "ln-donations/internal/websocket"
)

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// openDonorStore connects to postgres, or keeps donor records in memory
// when no DSN is configured.
func openDonorStore(ctx context.Context, cfg config.Config, log *logrus.Entry) (donor.Store, func(), error) {
	if cfg.DSN == "" {
		log.Warn("DSN not set, donor records are kept in memory")
		return memory.New(), func() {}, nil
	}

	db, err := sqlx.Connect("pgx", cfg.DSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot connect to database")
	}

	store := postgres.New(db.DB)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	log.Info("connected to postgres")
	return store, func() { db.Close() }, nil
}

// newLimiter shares counters through redis when REDIS_URL is set and reachable.
// Otherwise counters are process-local and swept in the background.
func newLimiter(ctx context.Context, cfg config.Config, log *logrus.Entry) (ratelimit.Limiter, error) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "invalid REDIS_URL")
		}

		limiter := ratelimit.NewRedis(redis.NewClient(opts))
		err = limiter.Ping(ctx)
		if err == nil {
			log.Info("rate limits shared through redis")
			return limiter, nil
		}
		log.WithError(err).Warn("cannot reach redis, using process-local rate limits")
	}

	limiter := ratelimit.NewLocal()
	go limiter.Run(ctx)
	return limiter, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("cannot load config")
	}

	logger := newLogger(cfg)
	log := logrus.NewEntry(logger).WithField("service", "ln-donations")
	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	donors, closeStore, err := openDonorStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("cannot open donor store")
	}
	defer closeStore()

	limiter, err := newLimiter(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("cannot create rate limiter")
	}

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	if _, err := config.Processor(); err != nil {
		log.WithError(err).Warn("payment processor not configured yet, donations will fail until it is")
	}
	if _, err := config.Mail(); err != nil {
		log.WithError(err).Warn("mail transport not configured yet, receipts will fail until it is")
	}

	proc := processor.NewClient(config.Processor, log)
	mailer := receipt.NewMailer(config.Mail, log)

	router := newRouter(routerDeps{
		log:         log,
		corsOrigins: cfg.CORSOrigins,
		jwtSecret:   cfg.JWTSecret,
		limiter:     limiter,
		donations:   handlers.NewDonationHandler(log, proc, donors, mailer, hub),
		donors:      handlers.NewDonorHandler(log, donors),
		admin:       handlers.NewAdminHandler(log, donors),
		auth:        handlers.NewAuthHandler(log, cfg.JWTSecret, cfg.AdminUser, cfg.AdminPasswordHash),
		merchants:   handlers.NewMerchantHandler(merchants.Default()),
		feed:        handlers.NewWebSocketHandler(log, hub),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("could not start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}
