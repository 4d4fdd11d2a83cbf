// Package handler exposes collected observations over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ovoronin/pgobserve/internal/history"
	"github.com/ovoronin/pgobserve/internal/middleware"
)

// Pinger checks connectivity to the target database.
type Pinger interface {
	PingContext(ctx context.Context) error
}

func Router(log *history.Log, db Pinger, logger *zap.SugaredLogger) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Gzip)
	router.Use(chimiddleware.StripSlashes)
	router.Use(chimiddleware.Timeout(15 * time.Second))
	router.Get("/observation", func(w http.ResponseWriter, r *http.Request) {
		ObservationHandler(w, r, log)
	})
	router.Get("/observation/history", func(w http.ResponseWriter, r *http.Request) {
		HistoryHandler(w, r, log)
	})
	router.Get("/knobs", func(w http.ResponseWriter, r *http.Request) {
		KnobsHandler(w, r, log)
	})
	router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		PingHandler(w, r, db, logger)
	})
	return router
}

// ObservationHandler serves the latest observation summary as JSON.
func ObservationHandler(w http.ResponseWriter, r *http.Request, log *history.Log) {
	summary := log.Latest()
	if summary == nil {
		http.Error(w, "no observation collected yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(summary)
}

// HistoryHandler serves the retained observation summaries, newest first.
func HistoryHandler(w http.ResponseWriter, r *http.Request, log *history.Log) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(log.List())
}

// KnobsHandler serves only the knob snapshot of the latest observation.
func KnobsHandler(w http.ResponseWriter, r *http.Request, log *history.Log) {
	summary := log.Latest()
	if summary == nil || summary.Knobs == nil {
		http.Error(w, "no knob snapshot collected yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(summary.Knobs)
}

// PingHandler reports connectivity to the target database.
func PingHandler(w http.ResponseWriter, r *http.Request, db Pinger, logger *zap.SugaredLogger) {
	if err := db.PingContext(r.Context()); err != nil {
		logger.Errorf("database ping failed: %v", err)
		http.Error(w, "failed to connect to database: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
