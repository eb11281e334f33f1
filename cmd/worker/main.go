package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yashwanths814/vital-sub001/internal/config"
	"github.com/yashwanths814/vital-sub001/internal/metrics"
	"github.com/yashwanths814/vital-sub001/services"
	"github.com/yashwanths814/vital-sub001/store"
	"github.com/yashwanths814/vital-sub001/workers"
)

func main() {
	log.Println("Starting workers...")

	if err := config.LoadConfig(os.Getenv("GRIEVANCE_CONFIG_PATH")); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	issueStore, err := store.Open(ctx, config.App)
	if err != nil {
		log.Fatalf("Failed to open issue store: %v", err)
	}
	defer issueStore.Close()

	collector := metrics.NewCollector(prometheus.NewRegistry())

	sla := services.NewCategorySLA(config.App.Escalation.CategorySLA, config.App.Escalation.DefaultSLADays)
	engine := services.NewEscalationEngine(issueStore, sla, services.EscalationConfig{
		ManualWaitDays: config.App.Escalation.ManualWaitDays,
		MaxAttempts:    config.App.Escalation.MaxAttempts,
	})
	engine.SetMetrics(collector)

	var locker workers.SweepLocker
	if config.App.RedisURL != "" {
		redisClient, err := workers.NewRedisClient(ctx, config.App.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		locker = workers.NewRedisLocker(redisClient)
		log.Println("  Sweep lock held in Redis")
	} else {
		log.Println("WARNING: REDIS_URL not set, sweep lock is local to this process")
	}

	escalationWorker := workers.NewEscalationWorker(issueStore, engine, locker)
	escalationWorker.Metrics = collector
	if config.App.Worker.Interval > 0 {
		escalationWorker.Interval = config.App.Worker.Interval
	}
	if config.App.Worker.Concurrency > 0 {
		escalationWorker.Concurrency = config.App.Worker.Concurrency
	}
	if config.App.Worker.BatchSize > 0 {
		escalationWorker.BatchSize = config.App.Worker.BatchSize
	}
	if config.App.Worker.LockTTL > 0 {
		escalationWorker.LockTTL = config.App.Worker.LockTTL
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Println("Starting escalation worker...")
		escalationWorker.StartEscalationWorker(ctx)
	}()

	metricsSrv := &http.Server{
		Addr:              ":" + config.App.Worker.MetricsPort,
		Handler:           collector.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server failed: %v", err)
		}
	}()

	log.Println("Workers started successfully. Press Ctrl+C to stop.")
	<-ctx.Done()

	log.Println("Shutting down workers...")
	_ = metricsSrv.Close()
	wg.Wait()
}
