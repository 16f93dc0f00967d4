package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inamate/anchors/internal/collab"
	"github.com/inamate/anchors/internal/config"
	"github.com/inamate/anchors/internal/diagram"
	mw "github.com/inamate/anchors/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if _, err := collab.StrategyByName(cfg.DefaultStrategy, cfg.AnchorEpsilon); err != nil {
		slog.Error("invalid default strategy", "error", err, "available", collab.StrategyNames())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := diagram.NewStore()
	hub := collab.NewHub(store.Load, store.Save, collab.StateOptions{
		Epsilon:         cfg.AnchorEpsilon,
		DefaultStrategy: cfg.DefaultStrategy,
		Logger:          slog.Default(),
	})
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	handler := collab.NewHandler(hub, cfg.OriginPatterns())

	r := mux.NewRouter()

	// Global middleware
	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS(cfg.Origins()...))

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/diagrams/{diagramId}", handler.Get).Methods("GET")
	api.HandleFunc("/diagrams/{diagramId}/positions", handler.Positions).Methods("GET")
	api.HandleFunc("/diagrams/{diagramId}/hit", handler.HitTest).Methods("GET")
	api.HandleFunc("/diagrams/{diagramId}/bounds", handler.Bounds).Methods("GET")
	api.HandleFunc("/diagrams/{diagramId}/ops", handler.SubmitOps).Methods("POST", "OPTIONS")

	// WebSocket endpoint
	r.HandleFunc("/ws/diagram/{diagramId}", handler.ServeWS)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		// Stop hub first to save all changed diagrams
		cancel()
		<-hubDone

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", addr, "sample", "/api/diagrams/"+diagram.SampleID)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
