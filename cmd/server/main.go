// Command server runs the accounting HTTP API together with the three
// queue consumers and the three periodic chargers in one process (spec.md
// §6, §4.7, §4.8). Grounded on the teacher's cmd/api/main.go: load config,
// wire dependencies, start the listeners as goroutines, wait for a
// shutdown signal, drain everything with a bounded timeout.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gridledger/accounting/internal/api"
	"github.com/gridledger/accounting/internal/cache"
	"github.com/gridledger/accounting/internal/charge"
	"github.com/gridledger/accounting/internal/clock"
	"github.com/gridledger/accounting/internal/config"
	"github.com/gridledger/accounting/internal/consumer"
	"github.com/gridledger/accounting/internal/queue"
	"github.com/gridledger/accounting/internal/release"
	"github.com/gridledger/accounting/internal/reservation"
	storeaccount "github.com/gridledger/accounting/internal/store/account"
	storeevent "github.com/gridledger/accounting/internal/store/event"
	storejob "github.com/gridledger/accounting/internal/store/job"
	storeledger "github.com/gridledger/accounting/internal/store/ledger"
	"github.com/gridledger/accounting/internal/store/pricing"
	storetaskregistry "github.com/gridledger/accounting/internal/store/taskregistry"
	"github.com/gridledger/accounting/internal/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	log.Info().Str("environment", cfg.Environment).Int("http_port", cfg.HTTPPort).Msg("starting accounting server")

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DatabaseMaxOpen)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdle)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxAge)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatal().Err(err).Msg("ping database")
	}
	pingCancel()

	balanceCache := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.BalanceCacheTTL, log)

	queueClient, err := queue.NewClient(context.Background(), cfg.AWSRegion, cfg.SQSEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("build sqs client")
	}

	accounts := storeaccount.New()
	jobs := storejob.New()
	ledger := storeledger.New(balanceCache)
	pricingStore := pricing.New()
	events := storeevent.New()
	registry := storetaskregistry.New()
	clk := clock.Real{}

	reservationSvc := reservation.New(accounts, ledger, jobs, pricingStore, clk, log)
	releaseSvc := release.New(accounts, ledger, jobs, clk, log)
	chargeEngine := &charge.Engine{
		Accounts: accounts,
		Ledger:   ledger,
		Jobs:     jobs,
		Pricing:  pricingStore,
		Clock:    clk,
		Log:      log,
	}

	handler := api.NewHandler(api.Deps{
		DB:           db,
		Accounts:     accounts,
		Jobs:         jobs,
		Ledger:       ledger,
		Pricing:      pricingStore,
		Reservation:  reservationSvc,
		Release:      releaseSvc,
		ChargeEngine: chargeEngine,
		BalanceCache: balanceCache,
		QueueClient:  queueClient,
		QueueNames: map[string]string{
			"oneshot": cfg.OneshotQueue.Name,
			"longrun": cfg.LongrunQueue.Name,
			"storage": cfg.StorageQueue.Name,
		},
		Clock: clk,
		Log:   log,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      api.AccessLog(log, api.CORS(cfg.CORSOrigins, mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	window := queue.TimestampWindow{Past: cfg.EventPastWindow, Future: cfg.EventFutureWindow}

	oneshotConsumer := &consumer.Base{
		Name:         "oneshot_consumer",
		QueueName:    cfg.OneshotQueue.Name,
		MaxMessages:  1,
		InitialDelay: cfg.OneshotQueue.InitialDelay,
		ErrorSleep:   cfg.SQSClientErrorSleep,
		Client:       queueClient,
		DB:           db,
		Events:       events,
		Consume:      consumer.OneshotConsume(jobs, clk, window),
		Log:          log,
	}
	longrunConsumer := &consumer.Base{
		Name:         "longrun_consumer",
		QueueName:    cfg.LongrunQueue.Name,
		MaxMessages:  10,
		InitialDelay: cfg.LongrunQueue.InitialDelay,
		ErrorSleep:   cfg.SQSClientErrorSleep,
		Client:       queueClient,
		DB:           db,
		Events:       events,
		Consume:      consumer.LongrunConsume(jobs, clk, window),
		Log:          log,
	}
	// The storage consumer closes and opens jobs one project at a time, so
	// it receives one message per poll to avoid racing itself on the same
	// project within a batch.
	storageConsumer := &consumer.Base{
		Name:         "storage_consumer",
		QueueName:    cfg.StorageQueue.Name,
		MaxMessages:  1,
		InitialDelay: cfg.StorageQueue.InitialDelay,
		ErrorSleep:   cfg.SQSClientErrorSleep,
		Client:       queueClient,
		DB:           db,
		Events:       events,
		Consume:      consumer.StorageConsume(jobs, accounts, clk, window),
		Log:          log,
	}

	oneshotCharger := task.NewOneshotCharger(db, chargeEngine, registry,
		cfg.OneshotCharger.LoopSleep, cfg.OneshotCharger.ErrorSleep, log)
	longrunCharger := task.NewLongrunCharger(db, chargeEngine, registry,
		cfg.LongrunCharger.LoopSleep, cfg.LongrunCharger.ErrorSleep, cfg.LongrunExpirationInterval,
		mustThresholds(cfg.LongrunCharger, log), log)
	storageCharger := task.NewStorageCharger(db, chargeEngine, registry,
		cfg.StorageCharger.LoopSleep, cfg.StorageCharger.ErrorSleep,
		mustThresholds(cfg.StorageCharger, log), log)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	runBackground := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Str("worker", name).Msg("background worker exited")
			}
		}()
	}

	runBackground("oneshot_consumer", oneshotConsumer.Run)
	runBackground("longrun_consumer", longrunConsumer.Run)
	runBackground("storage_consumer", storageConsumer.Run)
	runBackground("oneshot_charger", oneshotCharger.Run)
	runBackground("longrun_charger", longrunCharger.Run)
	runBackground("storage_charger", storageCharger.Run)

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", cfg.HTTPPort).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}

	cancel()
	wg.Wait()
	log.Info().Msg("shutdown complete")
}

func mustThresholds(cc config.ChargerConfig, log zerolog.Logger) charge.Thresholds {
	amount, err := decimal.NewFromString(cc.MinChargingAmount)
	if err != nil {
		log.Fatal().Err(err).Str("value", cc.MinChargingAmount).Msg("invalid charging threshold amount")
	}
	return charge.Thresholds{MinChargingInterval: cc.MinChargingInterval, MinChargingAmount: amount}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var base zerolog.Logger
	if cfg.LogFormat == "console" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		base = zerolog.New(os.Stdout)
	}
	return base.Level(level).With().
		Timestamp().
		Str("service", cfg.AppName).
		Str("environment", cfg.Environment).
		Logger()
}
