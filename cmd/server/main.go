package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Skotchmaster/workhub/internal/config"
	"github.com/Skotchmaster/workhub/internal/db"
	"github.com/Skotchmaster/workhub/internal/es"
	"github.com/Skotchmaster/workhub/internal/events"
	"github.com/Skotchmaster/workhub/internal/httpserver"
	"github.com/Skotchmaster/workhub/internal/logging"
	"github.com/Skotchmaster/workhub/internal/mailer"
	"github.com/Skotchmaster/workhub/internal/metrics"
	authmw "github.com/Skotchmaster/workhub/internal/middleware/auth"
	"github.com/Skotchmaster/workhub/internal/mykafka"
	"github.com/Skotchmaster/workhub/internal/oauth/google"
	"github.com/Skotchmaster/workhub/internal/otp"
	"github.com/Skotchmaster/workhub/internal/realtime"
	"github.com/Skotchmaster/workhub/internal/repo"
	"github.com/Skotchmaster/workhub/internal/service"
	"github.com/Skotchmaster/workhub/internal/tokens"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmptyBytes(cfg.JWTAccessSecret, "JWT_SECRET")
	config.MustNonEmptyBytes(cfg.JWTRefreshSecret, "JWT_REFRESH_SECRET")

	ctx := context.Background()

	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "db_open_failed", err)
	}
	if err := db.Migrate(gdb); err != nil {
		fatal(logger, "db_migrate_failed", err)
	}
	store := repo.New(gdb)

	issuer, err := tokens.NewIssuer(cfg.JWTAccessSecret, cfg.JWTRefreshSecret,
		tokens.WithTTL(cfg.AccessTTL, cfg.RefreshTTL))
	if err != nil {
		fatal(logger, "token_issuer_failed", err)
	}

	var otpStore otp.Store
	if cfg.RedisAddr != "" {
		rdb, err := otp.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			fatal(logger, "redis_connect_failed", err)
		}
		defer rdb.Close()
		otpStore = otp.NewRedisStore(rdb)
	} else {
		logger.Warn("otp_store", "backend", "memory", "reason", "REDIS_ADDR not set")
		otpStore = otp.NewMemoryStore()
	}

	var publishers events.Multi
	if len(cfg.KafkaBrokers) > 0 {
		prod, err := mykafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			fatal(logger, "kafka_producer_failed", err)
		}
		defer func() {
			if err := prod.Close(); err != nil {
				logger.Error("kafka_close_failed", "error", err)
			}
		}()
		publishers = append(publishers, prod)
	}
	if cfg.ESURL != "" {
		esClient, err := es.NewClient(ctx, es.Options{URL: cfg.ESURL, User: cfg.ESUser, Password: cfg.ESPassword}, logger)
		if err != nil {
			fatal(logger, "es_connect_failed", err)
		}
		publishers = append(publishers, es.NewAuditSink(esClient, cfg.ESIndex))
	}
	var publisher events.Publisher = events.Nop{}
	if len(publishers) > 0 {
		publisher = publishers
	}

	m := metrics.New()

	svc := &service.AuthService{
		Users:   store,
		Tokens:  store,
		Issuer:  issuer,
		OTP:     otpStore,
		Mailer:  &mailer.LogMailer{Logger: logger},
		Events:  publisher,
		Metrics: m,
	}
	cookies := httpserver.CookieConfig{Secure: !cfg.IsDevelopment(), RefreshTTL: cfg.RefreshTTL}

	hub := realtime.NewHub(logger, realtime.WithGauges(m.OnlineUsers, m.WSConns))
	gwCfg := realtime.GatewayConfig{AllowedOrigins: realtime.OriginPatterns(cfg.WSAllowedOrigins)}
	if cfg.WSRequireAuth {
		gwCfg.Tokens = issuer
	}

	deps := &httpserver.Deps{
		Auth:           &httpserver.AuthHTTP{Svc: svc, Cookies: cookies},
		Profile:        &httpserver.ProfileHTTP{Svc: svc},
		RequireAuth:    authmw.NewBearerAuth(issuer).RequireAuth,
		Realtime:       realtime.NewGateway(logger, hub, gwCfg),
		Metrics:        m.Handler(),
		AllowedOrigins: []string{cfg.ClientURL},
		Ready: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if cfg.GoogleEnabled() {
		provider, err := google.New(ctx, google.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}, logger)
		if err != nil {
			fatal(logger, "google_provider_failed", err)
		}
		deps.OAuth = &httpserver.OAuthHTTP{Svc: svc, Provider: provider, Cookies: cookies, ClientURL: cfg.ClientURL}
	}

	e := httpserver.New(logger, deps.AllowedOrigins)
	httpserver.Register(e, deps)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("server_started", "addr", cfg.ServerAddr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", "error", err)
		}
	}()

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	go pruneRefresh(pruneCtx, logger, store, cfg.RefreshPruneInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	go func() {
		<-quit
		logger.Warn("force_exit")
		os.Exit(1)
	}()

	logger.Info("shutting_down")
	stopPrune()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}
	if err := db.Close(gdb); err != nil {
		logger.Error("db_close_error", "error", err)
	}
	logger.Info("shutdown_complete")
}

// pruneRefresh drops refresh rows whose JWT has expired anyway.
func pruneRefresh(ctx context.Context, logger *slog.Logger, store *repo.GormRepo, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := store.PruneExpired(ctx, now)
			if err != nil {
				logger.Error("refresh_prune_failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("refresh_pruned", "count", n)
			}
		}
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
