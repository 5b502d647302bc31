package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"contest-platform/internal/auth"
	"contest-platform/internal/cache"
	"contest-platform/internal/config"
	"contest-platform/internal/events"
	"contest-platform/internal/handlers"
	"contest-platform/internal/metrics"
	"contest-platform/internal/middleware"
	"contest-platform/internal/payment"
	"contest-platform/internal/services"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	logger.Info().Str("store", cfg.Store).Msg("Starting contest platform server...")

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	// The leaderboard cache is optional; without Redis every read recomputes.
	var lb cache.Leaderboard
	if cfg.RedisAddr != "" {
		redisLB, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.LeaderboardTTL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Leaderboard cache disabled")
		} else {
			defer redisLB.Close()
			lb = redisLB
		}
	}

	jwtAuth := auth.NewJWT(cfg.JWTSecret, cfg.JWTTTL)
	roles := auth.UserRoles{Users: st}
	gateway := payment.NewMidtrans(cfg.MidtransServerKey, cfg.MidtransProduction, logger)

	userSvc := services.NewUserService(st, roles, jwtAuth, logger)
	contestSvc := services.NewContestService(st, roles, logger)
	submissionSvc := services.NewSubmissionService(st, roles, lb, m, logger)
	statsSvc := services.NewStatsService(st, lb, logger)
	reconciler := services.NewReconciler(st, st, gateway, services.CheckoutConfig{
		Currency:   cfg.PaymentCurrency,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
		Timeout:    cfg.GatewayTimeout,
	}, m, logger)

	var consumer *events.Consumer
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		consumer = events.NewConsumer(brokers, cfg.KafkaGroupID, []string{cfg.KafkaContestEndedTopic}, logger)
		events.NewHandlers(contestSvc, logger).RegisterAll(consumer, cfg.KafkaContestEndedTopic)
		consumer.Start()
	} else {
		logger.Info().Msg("KAFKA_BROKERS not set; contest.ended consumer disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger, m))
	r.Use(cors.New(corsConfig(cfg.Origins())))

	h := &handlers.Handlers{
		Auth:     handlers.NewAuthHandler(userSvc, logger),
		Contests: handlers.NewContestHandler(contestSvc, submissionSvc, logger),
		Payments: handlers.NewPaymentHandler(reconciler, logger),
		Stats:    handlers.NewStatsHandler(statsSvc, logger),
	}
	h.RegisterRoutes(r, jwtAuth, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	case err := <-errCh:
		logger.Error().Err(err).Msg("could not start server")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Kafka consumer")
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
		return err
	}

	logger.Info().Msg("Server exited")
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
