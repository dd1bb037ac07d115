package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eaglelearn/account-api/internal/command"
	"github.com/eaglelearn/account-api/internal/config"
	"github.com/eaglelearn/account-api/internal/handler"
	"github.com/eaglelearn/account-api/internal/query"
	"github.com/eaglelearn/account-api/internal/repository"
	"github.com/eaglelearn/account-api/shared/events"
	"github.com/eaglelearn/account-api/shared/middleware"
	redisClient "github.com/eaglelearn/account-api/shared/redis"
	"github.com/eaglelearn/account-api/shared/retirement"
	"github.com/eaglelearn/account-api/shared/visibility"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate the database and serve the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Write store
	db, err := repository.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := repository.Migrate(ctx, db); err != nil {
		return err
	}

	// Redis: read model cache, token revocations and event streams
	redis, err := redisClient.NewClient(ctx, redisClient.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	defer redis.Close()

	hasher, err := retirement.NewHasher(cfg.RetirementSalts)
	if err != nil {
		return err
	}

	// --- CQRS wiring ---
	publisher := events.NewPublisher(redis.Client)
	revocations := redisClient.NewTokenRevocations(redis.Client, cfg.TokenLifetime)
	store := repository.NewStore(db)
	readRepo := repository.NewAccountReadRepository(db, redis.Client, cfg.CacheTTL)

	policy := visibility.NewPolicy(visibility.Config{
		DefaultPrivacy:         cfg.VisibilityDefault,
		ProfileImageBaseURL:    cfg.ProfileImageBaseURL,
		ProfileImageDefaultURL: cfg.ProfileImageDefaultURL,
		AccomplishmentsShared:  cfg.AccomplishmentsShared,
	})
	querySvc := query.NewAccountQueryService(readRepo, policy)

	retireMailings := events.NewSignal[events.RetireMailingsEvent]("retire_mailings")
	retireMailings.Connect("mailing-stream",
		events.Forward[events.RetireMailingsEvent](publisher, events.MailingEventsStream, events.UserRetireMailings))

	commandSvc := command.NewAccountCommandService(command.Dependencies{
		Store:          store,
		Views:          readRepo,
		Queries:        querySvc,
		Publisher:      publisher,
		Revocations:    revocations,
		Retirement:     hasher,
		RetireMailings: retireMailings,
	})

	accountHandler := handler.NewAccountHandler(commandSvc, querySvc)

	router := gin.New()
	router.Use(middleware.Recovery(), middleware.LoggingMiddleware(), middleware.MetricsMiddleware())

	api := router.Group("/api/user/v1")
	api.Use(middleware.AuthMiddleware([]byte(cfg.JWTSecret), revocations))
	accountHandler.RegisterRoutes(api, cfg.RetirementServiceUsername)

	router.GET("/health", healthHandler(db, redis))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Each instance has its own group so every instance drops views changed
	// by any other.
	go func() {
		subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
			Group:    "account-api-" + cfg.InstanceID,
			Consumer: cfg.InstanceID,
			Stream:   events.AccountEventsStream,
			Handler:  commandSvc.HandleAccountEvent,
		})
		if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("subscriber stopped", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("account API starting", "port", cfg.Port, "driver", cfg.Driver, "instance", cfg.InstanceID)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthHandler(db *sql.DB, redis *redisClient.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status, code := gin.H{"status": "ok"}, http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			status, code = gin.H{"status": "unavailable", "database": err.Error()}, http.StatusServiceUnavailable
		} else if err := redis.Ping(ctx).Err(); err != nil {
			status, code = gin.H{"status": "unavailable", "redis": err.Error()}, http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}
