package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/editorialops/referee-monitor/internal/config"
	"github.com/editorialops/referee-monitor/internal/credentials"
	"github.com/editorialops/referee-monitor/internal/driver"
	"github.com/editorialops/referee-monitor/internal/monitoring"
	"github.com/editorialops/referee-monitor/internal/notifications"
	"github.com/editorialops/referee-monitor/internal/scheduler"
	"github.com/editorialops/referee-monitor/internal/snapshot"
	"github.com/editorialops/referee-monitor/internal/storage"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.WithField("platforms", len(cfg.Platforms)).Info("Starting Referee Monitor")

	// Snapshots live in Azure when an account is configured, on local disk otherwise
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	storageClient, err := storage.New(initCtx, cfg.StorageAccount, cfg.StorageContainer, cfg.StorageDir)
	cancelInit()
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}

	notificationService := notifications.NewService(cfg)

	factory := driver.NewChromeFactory(driver.ChromeOptions{
		Headless:  cfg.Headless,
		UserAgent: cfg.UserAgent,
		ExecPath:  cfg.ChromePath,
	})

	monitoringService := monitoring.NewService(
		cfg,
		factory,
		credentials.NewEnvProvider(cfg.CredentialPrefix),
		snapshot.NewStore(storageClient),
		notificationService,
	)

	// Initialize scheduler
	schedulerService := scheduler.NewService(cfg, monitoringService)

	// Start scheduler
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	// Set up HTTP server for health checks and manual runs
	router := mux.NewRouter()

	router.HandleFunc("/health", healthCheckHandler).Methods("GET")
	router.HandleFunc("/metrics", metricsHandler(monitoringService)).Methods("GET")
	router.HandleFunc("/trigger", triggerHandler(monitoringService)).Methods("POST")
	router.HandleFunc("/trigger/{platform}", triggerPlatformHandler(monitoringService)).Methods("POST")
	router.HandleFunc("/deadlines/{platform}", deadlinesHandler(monitoringService)).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func metricsHandler(monitoringService *monitoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics := monitoringService.GetMetrics()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(metrics))
	}
}

func triggerHandler(monitoringService *monitoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		go func() {
			if err := monitoringService.RunAll(context.Background()); err != nil {
				logrus.Errorf("Manual monitoring trigger failed: %v", err)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"message":"Monitoring triggered successfully"}`))
	}
}

func triggerPlatformHandler(monitoringService *monitoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platform := mux.Vars(r)["platform"]
		go func() {
			if _, err := monitoringService.RunByName(context.Background(), platform); err != nil {
				logrus.WithField("platform", platform).Errorf("Manual platform trigger failed: %v", err)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"message":"Platform run triggered"}`))
	}
}

func deadlinesHandler(monitoringService *monitoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platform := mux.Vars(r)["platform"]
		alert, err := monitoringService.DeadlineAlert(r.Context(), platform)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			logrus.WithField("platform", platform).Errorf("Deadline lookup failed: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"deadline lookup failed"}`))
			return
		}
		if alert == nil {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"no snapshot for platform"}`))
			return
		}
		data, _ := json.MarshalIndent(alert, "", "  ")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
