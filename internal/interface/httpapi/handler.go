// Package httpapi implements the HTTP surface of the flexible search service.
//
// Routes:
//
//	POST   /searches/flexible              → submit a search (x-user-id header required)
//	GET    /searches/flexible?status=      → recently finished searches
//	GET    /searches/flexible/{id}         → job record
//	GET    /searches/flexible/{id}/events  → progress stream (text/event-stream)
//	DELETE /searches/flexible/{id}         → cancel a pending or running search
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/usecase"
	"flexsearch-service/pkg/logger"
)

const (
	basePath          = "/searches/flexible"
	heartbeatInterval = 15 * time.Second
	defaultRecent     = 20
)

// SearchService is what the handler needs from the job runner
type SearchService interface {
	Submit(ctx context.Context, req entity.SearchRequest) (*usecase.SubmitResult, error)
	GetJobStatus(ctx context.Context, jobID string) (*entity.JobRecord, error)
	Subscribe(ctx context.Context, jobID string) (<-chan entity.ProgressEvent, error)
	Cancel(jobID string) bool
	Recent(ctx context.Context, status entity.JobStatus, limit int) ([]entity.JobRecord, error)
}

// Handler holds shared dependencies
type Handler struct {
	searches SearchService
	baseURL  string
	logger   logger.Logger
}

// NewHandler returns a configured Handler. baseURL prefixes the links in submit
// responses and may be empty for relative links.
func NewHandler(searches SearchService, baseURL string, logger logger.Logger) *Handler {
	return &Handler{
		searches: searches,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

// RegisterRoutes mounts all search routes on mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+basePath, h.submit)
	mux.HandleFunc("GET "+basePath, h.recent)
	mux.HandleFunc("GET "+basePath+"/{id}", h.status)
	mux.HandleFunc("GET "+basePath+"/{id}/events", h.events)
	mux.HandleFunc("DELETE "+basePath+"/{id}", h.cancel)
}

// submitRequest is the JSON body of POST /searches/flexible
type submitRequest struct {
	Origin       string            `json:"origin"`
	Destination  string            `json:"destination"`
	CenterDate   string            `json:"centerDate"`
	Duration     int               `json:"duration"`
	Passengers   entity.Passengers `json:"passengers"`
	SearchRange  string            `json:"searchRange"`
	ContactEmail string            `json:"contactEmail"`
}

// submitResponse is returned with 202 Accepted
type submitResponse struct {
	JobID         string `json:"jobId"`
	TotalDates    int    `json:"totalDates"`
	EstimatedTime int    `json:"estimatedTime"`
	StatusURL     string `json:"statusUrl"`
	StreamURL     string `json:"streamUrl"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("x-user-id")
	if userID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	center, err := time.Parse(entity.DateLayout, body.CenterDate)
	if err != nil {
		jsonError(w, fmt.Sprintf("centerDate must be %s", entity.DateLayout), http.StatusBadRequest)
		return
	}

	req := entity.SearchRequest{
		UserID:       userID,
		Origin:       body.Origin,
		Destination:  body.Destination,
		CenterDate:   center,
		Nights:       body.Duration,
		Passengers:   body.Passengers,
		Range:        entity.SearchRange(strings.ToLower(body.SearchRange)),
		ContactEmail: body.ContactEmail,
	}

	res, err := h.searches.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, "submit", err)
		return
	}

	statusURL := h.baseURL + basePath + "/" + res.JobID
	jsonWrite(w, http.StatusAccepted, submitResponse{
		JobID:         res.JobID,
		TotalDates:    res.TotalDates,
		EstimatedTime: res.EstimatedTime,
		StatusURL:     statusURL,
		StreamURL:     statusURL + "/events",
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}
	jsonOK(w, record)
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ownedRecord(w, r); !ok {
		return
	}
	jobID := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, err := h.searches.Subscribe(r.Context(), jobID)
	if err != nil {
		h.writeError(w, "subscribe", err)
		return
	}

	// the stream outlives the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("Failed to encode progress event", "jobID", jobID, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
			if ev.IsTerminal() {
				return
			}
		}
	}
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ownedRecord(w, r); !ok {
		return
	}
	jobID := r.PathValue("id")

	if !h.searches.Cancel(jobID) {
		jsonError(w, "search is not running", http.StatusNotFound)
		return
	}
	jsonWrite(w, http.StatusAccepted, map[string]string{"jobId": jobID, "status": "cancelling"})
}

func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	status, err := entity.ParseJobStatus(r.URL.Query().Get("status"))
	if err != nil || !status.IsTerminal() {
		jsonError(w, "status must be completed or failed", http.StatusBadRequest)
		return
	}

	limit := defaultRecent
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.searches.Recent(r.Context(), status, limit)
	if err != nil {
		h.writeError(w, "recent", err)
		return
	}
	jsonOK(w, records)
}

// ownedRecord loads the job named in the path. Jobs of other users are reported
// as missing when the caller identifies itself.
func (h *Handler) ownedRecord(w http.ResponseWriter, r *http.Request) (*entity.JobRecord, bool) {
	record, err := h.searches.GetJobStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "status", err)
		return nil, false
	}
	if userID := r.Header.Get("x-user-id"); userID != "" && userID != record.UserID {
		jsonError(w, "search not found", http.StatusNotFound)
		return nil, false
	}
	return record, true
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidRequest):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, entity.ErrJobNotFound):
		jsonError(w, "search not found", http.StatusNotFound)
	case errors.Is(err, usecase.ErrRunnerClosed):
		jsonError(w, "service is shutting down", http.StatusServiceUnavailable)
	default:
		h.logger.Error("Request failed", "operation", op, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	jsonWrite(w, http.StatusOK, v)
}

func jsonWrite(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonWrite(w, code, map[string]string{"error": msg})
}
