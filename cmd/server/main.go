package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yashwanths814/vital-sub001/handlers"
	"github.com/yashwanths814/vital-sub001/internal/config"
	"github.com/yashwanths814/vital-sub001/internal/metrics"
	"github.com/yashwanths814/vital-sub001/router"
	"github.com/yashwanths814/vital-sub001/services"
	"github.com/yashwanths814/vital-sub001/store"
)

func main() {
	log.Println("Starting escalation API server...")

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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	sla := services.NewCategorySLA(config.App.Escalation.CategorySLA, config.App.Escalation.DefaultSLADays)
	engine := services.NewEscalationEngine(issueStore, sla, services.EscalationConfig{
		ManualWaitDays: config.App.Escalation.ManualWaitDays,
		MaxAttempts:    config.App.Escalation.MaxAttempts,
	})
	engine.SetMetrics(collector)

	auth := handlers.NewAuthMiddleware(config.App.Auth.JWTSecret)
	r := router.NewGinRouter(engine, collector, auth)

	srv := &http.Server{
		Addr:              ":" + config.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Listening on :%s (storage: %s)", config.App.Port, config.App.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
