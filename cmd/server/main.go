// Package main is the entry point for the lock access monitor server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lock-access-monitor/backend/internal/api"
	"github.com/lock-access-monitor/backend/internal/api/middleware"
	"github.com/lock-access-monitor/backend/internal/config"
	"github.com/lock-access-monitor/backend/internal/history"
	"github.com/lock-access-monitor/backend/internal/lock"
	"github.com/lock-access-monitor/backend/internal/monitor"
	"github.com/lock-access-monitor/backend/internal/mqtt"
	"github.com/lock-access-monitor/backend/internal/storage"
	"github.com/lock-access-monitor/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Data directory for the SQLite ledger")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Addr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log.Printf("Starting lock access monitor (version: %s)...", version)

	// Initialize database
	db, err := storage.NewDB(filepath.Join(cfg.DataDir, "ledger.db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(context.Background(), db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations complete")

	ledger := storage.NewLedgerRepository(db)

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Close()

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	monitorMetrics, err := monitor.NewMetrics(promRegistry)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(promRegistry)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	// Core services
	registry := lock.NewRegistry()
	hist := history.NewMemoryLog()
	manager := lock.NewManager(registry, hist, lock.ManagerConfig{
		Policy:             cfg.GrantPolicy,
		ReleaseGrantOnLock: cfg.ReleaseGrantOnLock,
		Recorder:           ledger,
		RecordTimeout:      cfg.CallTimeout,
	})
	detector := monitor.NewDetector(registry, hist, monitor.NewRandomStrategy(),
		monitor.WithEventRecorder(ledger, cfg.CallTimeout),
	)

	scheduler, err := monitor.NewScheduler(registry, detector, monitor.SchedulerConfig{
		DefaultIntervalMs: cfg.MonitorIntervalMs,
		Threshold:         &cfg.DetectionThreshold,
		CallTimeout:       cfg.CallTimeout,
		Recorder:          ledger,
		Metrics:           monitorMetrics,
	})
	if err != nil {
		log.Fatalf("Failed to create monitoring scheduler: %v", err)
	}

	// Alert fan-out
	events := websocket.NewEventBroadcaster(hub)
	wsSub := scheduler.Subscribe(events.DetectionAlert)
	log.Printf("WebSocket alerts subscribed (handle: %s)", wsSub)

	if cfg.MQTTEnabled() {
		publisher := mqtt.NewPublisher(mqtt.Config{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
		})
		if err := publisher.Connect(context.Background()); err != nil {
			log.Printf("Warning: MQTT alerts disabled: %v", err)
		} else {
			mqttSub := scheduler.Subscribe(publisher.PublishDetection)
			log.Printf("MQTT alerts subscribed (handle: %s)", mqttSub)
			defer publisher.Disconnect()
		}
	}

	if cfg.MonitorAutostart {
		scheduler.Start(cfg.MonitorIntervalMs)
	}

	router := api.NewRouter(api.Services{
		DB:          db,
		Ledger:      ledger,
		Registry:    registry,
		Manager:     manager,
		History:     hist,
		Detector:    detector,
		Scheduler:   scheduler,
		Hub:         hub,
		Gatherer:    promRegistry,
		HTTPMetrics: httpMetrics,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost" + addr + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
