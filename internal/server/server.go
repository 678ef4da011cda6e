package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof" // Import pprof
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arwahdevops/mongosync/internal/config"
	"github.com/arwahdevops/mongosync/internal/metrics"
)

// Pinger is satisfied by *db.Connector.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewMux builds the handler for metrics, health checks, and pprof.
// conn may be nil while the connection is not established yet.
func NewMux(cfg *config.Config, metricsStore *metrics.Store, conn Pinger, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	// Metrics endpoint using the custom registry
	mux.Handle("/metrics", promhttp.HandlerFor(metricsStore.Registry, promhttp.HandlerOpts{}))

	// Liveness endpoint
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	// Readiness endpoint
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second) // Short timeout for pings
		defer cancel()

		var pingErr error
		if conn != nil {
			pingErr = conn.Ping(pingCtx)
		} else {
			pingErr = errors.New("mongo connection not established")
		}

		if pingErr == nil {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "Ready")
			return
		}
		log.Warn("Readiness check failed", zap.NamedError("mongo_ping_error", pingErr))
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "Not Ready: mongo_status=%s\n", formatPingError(pingErr))
	})

	// Pprof endpoints (conditionally enabled)
	if cfg.EnablePprof {
		log.Info("Enabling pprof endpoints on /debug/pprof/")
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		log.Info("Pprof endpoints are disabled.")
	}
	return mux
}

// RunHTTPServer serves NewMux on METRICS_PORT until ctx is cancelled.
func RunHTTPServer(
	ctx context.Context,
	cfg *config.Config,
	metricsStore *metrics.Store,
	conn Pinger, // Used for the readiness check
	logger *zap.Logger,
) {
	log := logger.Named("http-server")

	addr := fmt.Sprintf(":%d", cfg.MetricsPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      NewMux(cfg, metricsStore, conn, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run server in a goroutine so it doesn't block the reconciliation pass
	go func() {
		log.Info("Starting HTTP server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server ListenAndServe error", zap.Error(err))
		}
		log.Info("HTTP server stopped listening")
	}()

	// Wait for context cancellation (sent from main) to initiate shutdown
	<-ctx.Done()
	log.Info("Shutting down HTTP server due to context cancellation...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		log.Info("HTTP server gracefully stopped")
	}
}

// formatPingError provides a user-friendly status string.
func formatPingError(err error) string {
	if err == nil {
		return "OK"
	}
	return fmt.Sprintf("Error (%v)", err)
}
