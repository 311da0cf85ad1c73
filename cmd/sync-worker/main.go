package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "bizwatch/internal/config/sync-worker"
	"bizwatch/internal/obs"
	"bizwatch/internal/obs/retry"
	intoutbox "bizwatch/internal/outbox"
	"bizwatch/internal/repository/bizinfo"
	kafkaRepo "bizwatch/internal/repository/kafka"
	pg "bizwatch/internal/repository/postgres"
	syncworker "bizwatch/internal/services/sync-worker"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func main() {
	// init
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/sync-worker.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	l.Info("starting sync-worker",
		zap.String("bizinfo_url", cfg.Bizinfo.BaseURL),
		zap.Duration("interval", cfg.Sync.Interval),
		zap.String("metrics_addr", cfg.Sync.MetricsAddr),
		zap.String("smtp_addr", cfg.SMTP.Addr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(rootCtx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.New(rootCtx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	// kafka
	prod := kafkaRepo.NewProducer(cfg.KafkaOut.Brokers, cfg.KafkaOut.Topic).WithLogger(l)
	defer func() { _ = prod.Close() }()
	events := kafkaRepo.NewDiscoveryEventsKafka(prod)

	// wiring
	listings := pg.NewListingRepo(db)
	checkpoints := pg.NewCheckpointRepo(db)
	subscribers := pg.NewSubscriberRepo(db)
	records := pg.NewNotificationRepo(db)
	outboxRepo := pg.NewOutboxRepo(db)
	tx := pg.NewTransactor(db, l)
	mailer := syncworker.NewMailer(cfg.SMTP).WithLogger(l)
	client := bizinfo.New(cfg.Bizinfo).WithLogger(l)

	dispatcher := &syncworker.Dispatcher{
		Log:     l,
		Subs:    subscribers,
		Records: records,
		Mail:    mailer,
		Clock:   systemClock{},
		Workers: cfg.Sync.DispatchWorkers,
	}
	engine := &syncworker.Engine{
		Log:         l,
		Source:      client,
		Store:       listings,
		Checkpoints: checkpoints,
		Outbox:      outboxRepo,
		Tx:          tx,
		Clock:       systemClock{},
		Cfg: syncworker.EngineConfig{
			FetchAttempts: cfg.Sync.FetchAttempts,
			Backoff: retry.ExpoJitter{
				Base:   cfg.Sync.BackoffBase,
				Max:    cfg.Sync.BackoffMax,
				Jitter: 0.2,
			},
			RateLimitFloor: cfg.Sync.RateLimitFloor,
		},
	}
	runner := &syncworker.Runner{
		Log:         l,
		Engine:      engine,
		Checkpoints: checkpoints,
		Interval:    cfg.Sync.Interval,
	}

	// metrics + health
	ms := obs.BootstrapMetricsServer(cfg.Sync.MetricsAddr, runner.Health, l)

	// outbox relay
	relay := intoutbox.NewRunner(
		l,
		outboxRepo,
		intoutbox.MakeGlobalOutboxHandler(events, dispatcher, retry.DefaultPublishPolicy(l)),
		cfg.Outbox.Workers,
		cfg.Outbox.BatchSize,
		cfg.Outbox.Wait,
		cfg.Outbox.InProgressTTL,
	)
	go relay.Start(rootCtx)

	// run
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(rootCtx) }()
	l.Info("sync-worker started")

	// loop
	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
