package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/trogers1052/portfolio-ledger/internal/api"
	"github.com/trogers1052/portfolio-ledger/internal/cache"
	"github.com/trogers1052/portfolio-ledger/internal/database"
	"github.com/trogers1052/portfolio-ledger/internal/kafka"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, price consumer and scheduled jobs",
	RunE:  runServe,
}

var serveMigrate bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "apply pending migrations on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if serveMigrate {
		if err := db.RunMigrations(cfg.Database.MigrationsURL()); err != nil {
			return err
		}
	}

	var quotes ledger.QuoteSource = db
	var invalidator kafka.QuoteInvalidator
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		qc := cache.NewQuoteCache(client, db, cfg.Redis.QuoteTTL, log)
		if err := qc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, quotes will fall back to the database")
		}
		quotes = qc
		invalidator = qc
	}

	var opts []ledger.Option
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.LedgerTopic)
		defer producer.Close()
		opts = append(opts, ledger.WithPublisher(producer))

		consumer := kafka.NewPriceConsumer(cfg.Kafka.Brokers, cfg.Kafka.PriceTopic, cfg.Kafka.GroupID, db, invalidator, log)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Price consumer stopped")
			}
		}()
	} else {
		log.Info().Msg("No Kafka brokers configured, events and price updates disabled")
	}

	svc := ledger.NewService(db, db, quotes, log, opts...)

	sched := scheduler.New(log)
	if err := registerJobs(sched, svc, db); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if cfg.Auth.APIKey == "" {
		log.Warn().Msg("API_KEY is empty, the API is unauthenticated")
	}
	handler := api.NewHandler(svc, db, db, log)
	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.SetupRoutes(handler, api.RouterConfig{
			APIKey:      cfg.Auth.APIKey,
			CORSOrigins: cfg.Server.CORSOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server stopped")
	return nil
}

func registerJobs(sched *scheduler.Scheduler, svc *ledger.Service, db *database.DB) error {
	if err := sched.AddJob(cfg.Scheduler.ReprojectSchedule, scheduler.NewReprojectJob(svc, 10*time.Minute, log)); err != nil {
		return err
	}
	return sched.AddJob(cfg.Scheduler.RetentionSchedule, scheduler.NewPriceRetentionJob(db, cfg.Scheduler.PriceRetention, log))
}
