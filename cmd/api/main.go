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

	"callbridge/internal/auth"
	"callbridge/internal/callback"
	"callbridge/internal/config"
	"callbridge/internal/correlation"
	"callbridge/internal/httpapi"
	"callbridge/internal/insight"
	"callbridge/internal/monitoring"
	"callbridge/internal/reporting"
	"callbridge/internal/routing"
	"callbridge/internal/telephony"
	"callbridge/internal/toolcall"
	"callbridge/internal/transfer"
	"callbridge/pkg/logger"
	"callbridge/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "callbridge-api")
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	metrics := monitoring.Init()

	// Services
	corrSvc := correlation.NewService(correlation.NewPostgresRepo(db), log, cfg.Correlation.RecencyWindow)
	logSvc := toolcall.NewService(toolcall.NewPostgresRepo(db), log, metrics, cfg.ToolCall.MaxRetries)

	var deliverer callback.DeliveryClient
	if cfg.Callback.Endpoint != "" {
		deliverer = callback.NewHTTPDeliverer(cfg.Callback.Endpoint, cfg.Callback.Token)
	} else {
		log.Warn("callback delivery disabled: CALLBACK_ENDPOINT not set")
		deliverer = callback.NoopDeliverer{}
	}
	callbacks := callback.NewProcessor(callback.NewPostgresRepo(db), deliverer, log, metrics, callback.ProcessorConfig{
		SweepInterval: cfg.Callback.SweepInterval,
		BatchSize:     cfg.Callback.BatchSize,
		DeliveryPause: cfg.Callback.DeliveryPause,
		MaxRetries:    cfg.Callback.MaxRetries,
	})
	callbacks.Start(rootCtx)
	defer callbacks.Stop()

	var carrier telephony.TransferExecutor = telephony.NoopExecutor{}
	if cfg.Twilio.AccountSID != "" {
		carrier = telephony.NewTwilioExecutor(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
	} else {
		log.Warn("carrier transfers disabled: TWILIO_ACCOUNT_SID not set")
	}

	executor := &transfer.Executor{
		Correlations: corrSvc,
		Log:          logSvc,
		Claims:       transfer.NewRedisClaimer(rdb),
		Carrier:      carrier,
		Callbacks:    callbacks,
		Client: routing.ClientConfig{
			AircallSIPNumber: cfg.Transfer.AircallSIPNumber,
			Region:           cfg.Transfer.Region,
			TrunkOverride:    cfg.Transfer.TrunkOverride,
		},
		ClaimTTL: cfg.Transfer.ClaimTTL,
		Logger:   log,
		Metrics:  metrics,
	}

	var cards insight.CardSender
	if cfg.Insight.APIBase != "" {
		cards = insight.NewHTTPCardSender(cfg.Insight.APIBase, cfg.Insight.APIToken)
	} else {
		log.Warn("insight card delivery disabled: INSIGHT_API_BASE not set")
	}
	matcher := insight.NewMatcher(logSvc, insight.NewPostgresRepo(db), cards, insight.MatcherConfig{
		Window:   cfg.Insight.Window,
		Deadline: cfg.Insight.Deadline,
		DefaultTarget: insight.Target{
			Type: cfg.Insight.DefaultTargetType,
			ID:   cfg.Insight.DefaultTargetID,
		},
	}, log, metrics)

	handlers := httpapi.Handlers{
		Correlations: corrSvc,
		Log:          logSvc,
		Transfers:    executor,
		Callbacks:    callbacks,
		Matcher:      matcher,
		Stats:        reporting.NewService(toolcall.NewPostgresRepo(db), callback.NewPostgresRepo(db), insight.NewPostgresRepo(db)),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, handlers, routeAuth{
		webhook: auth.RequireWebhookToken(cfg.Auth.WebhookToken),
		access:  auth.RequireAccessToken(authManager),
	}, db, rdb)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
