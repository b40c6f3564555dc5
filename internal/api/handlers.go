package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/livinlefevreloca/listingsync/internal/db"
	"github.com/livinlefevreloca/listingsync/internal/etl"
	"github.com/livinlefevreloca/listingsync/internal/listing"
	"github.com/livinlefevreloca/listingsync/internal/reso"
	"github.com/livinlefevreloca/listingsync/internal/status"
	"github.com/livinlefevreloca/listingsync/internal/transform"
)

// Bounds for the recent listings page size
const (
	minRecentLimit = 1
	maxRecentLimit = 100
)

// JobTrigger starts a run or joins the one in flight
type JobTrigger interface {
	Trigger(ctx context.Context) (etl.RunResult, error)
}

// StatusSource answers status, recent and long-poll queries
type StatusSource interface {
	Config() status.Config
	Snapshot(ctx context.Context) (*status.Snapshot, error)
	Recent(ctx context.Context, limit int) ([]listing.Summary, error)
	AwaitUpdate(ctx context.Context, since time.Time, timeout, pollInterval time.Duration) (status.Update, error)
}

// ListingStore reads single listings and reports store health
type ListingStore interface {
	GetListing(ctx context.Context, mlsNumber string) (*listing.Listing, error)
	Ready(ctx context.Context) error
}

// ListingRefresher re-syncs one listing from upstream
type ListingRefresher interface {
	Refresh(ctx context.Context, mlsNumber string) (*listing.Listing, error)
}

// Deps are the components the handlers serve from. Refresher may be nil.
type Deps struct {
	Jobs      JobTrigger
	Status    StatusSource
	Listings  ListingStore
	Refresher ListingRefresher
}

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Listings.Ready(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// triggerJob reports partial progress with HTTP 200 even when the run had errors
func (h *handlers) triggerJob(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Jobs.Trigger(r.Context())
	if err != nil {
		h.logger.Warn("manual trigger abandoned", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to run ETL process")
		return
	}

	message := "ETL process completed successfully"
	if !res.Success {
		message = fmt.Sprintf("ETL process finished with %d error(s): %s", res.Errors, res.LastError)
	}

	respondJSON(w, http.StatusOK, triggerResponse{
		Success:        res.Success,
		Message:        message,
		ProcessedCount: res.Processed,
		Saved:          res.Saved,
		Errors:         res.Errors,
		RunID:          res.RunID,
		State:          string(res.State),
	})
}

func (h *handlers) jobStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Status.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to read status", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch ETL status")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    newStatusData(snap),
	})
}

// adminStatus serves the dashboard's unwrapped status body
func (h *handlers) adminStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Status.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to read status", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch ETL status")
		return
	}
	respondJSON(w, http.StatusOK, newAdminStatus(snap))
}

// adminProperties serves the configured number of recent listings as a bare array
func (h *handlers) adminProperties(w http.ResponseWriter, r *http.Request) {
	limit := max(minRecentLimit, min(h.deps.Status.Config().RecentLimit, maxRecentLimit))
	properties, err := h.deps.Status.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read recent listings", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch properties")
		return
	}
	if properties == nil {
		properties = []listing.Summary{}
	}
	respondJSON(w, http.StatusOK, properties)
}

func (h *handlers) recentProperties(w http.ResponseWriter, r *http.Request) {
	limit := h.deps.Status.Config().RecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	limit = max(minRecentLimit, min(limit, maxRecentLimit))

	properties, err := h.deps.Status.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read recent listings", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch properties")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    recentData{Properties: properties, Count: len(properties)},
	})
}

func (h *handlers) getProperty(w http.ResponseWriter, r *http.Request) {
	mlsNumber := chi.URLParam(r, "mlsNumber")

	l, err := h.deps.Listings.GetListing(r.Context(), mlsNumber)
	if err != nil {
		if db.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "listing not found")
			return
		}
		h.logger.Error("failed to read listing", "mls_number", mlsNumber, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch listing")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    newListingDTO(l),
	})
}

func (h *handlers) refreshProperty(w http.ResponseWriter, r *http.Request) {
	if h.deps.Refresher == nil {
		respondError(w, http.StatusNotImplemented, "refresh is not configured")
		return
	}
	mlsNumber := chi.URLParam(r, "mlsNumber")

	l, err := h.deps.Refresher.Refresh(r.Context(), mlsNumber)
	if err != nil {
		code, message := refreshFailure(err)
		h.logger.Warn("listing refresh failed",
			"mls_number", mlsNumber,
			"status_code", code,
			"error", err)
		respondError(w, code, message)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    newListingDTO(l),
	})
}

func refreshFailure(err error) (int, string) {
	var transportErr *reso.TransportError
	var envelopeErr *reso.EnvelopeError
	var transformErr *transform.TransformError

	switch {
	case errors.Is(err, reso.ErrNotFound):
		return http.StatusNotFound, "listing not found upstream"
	case errors.As(err, &transportErr), errors.As(err, &envelopeErr):
		return http.StatusBadGateway, "upstream listing service failed"
	case errors.As(err, &transformErr):
		if transformErr.Err != nil {
			return http.StatusUnprocessableEntity, fmt.Sprintf("upstream record has an invalid %s", transformErr.Field)
		}
		return http.StatusUnprocessableEntity, fmt.Sprintf("upstream record is missing %s", transformErr.Field)
	default:
		return http.StatusInternalServerError, "Failed to refresh listing"
	}
}

// updates is the dashboard long-poll. since is epoch milliseconds; missing or invalid means no baseline.
func (h *handlers) updates(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if ms, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64); err == nil && ms > 0 {
		since = time.UnixMilli(ms).UTC()
	}

	cfg := h.deps.Status.Config()
	update, err := h.deps.Status.AwaitUpdate(r.Context(), since, cfg.Timeout, cfg.PollInterval)
	if err != nil {
		if r.Context().Err() != nil {
			h.logger.Debug("long-poll client went away")
			return
		}
		h.logger.Error("long-poll failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch updates")
		return
	}

	respondJSON(w, http.StatusOK, updateResponse{
		Timestamp: update.Timestamp.UnixMilli(),
		Data:      update.Data,
	})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Failed to marshal JSON response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, errorResponse{Success: false, Error: message})
}
