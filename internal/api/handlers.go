// Package api exposes HTTP handlers for the fittrack service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/login"
	"example.com/fittrack/internal/persistence"
	"example.com/fittrack/internal/recommendation"
)

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used for server errors.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithLogin enables the /v1/auth/login and /v1/auth/callback endpoints.
func WithLogin(flow *login.Flow) Option {
	return func(h *Handler) { h.login = flow }
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	service         *domain.Service
	recommendations *recommendation.Service
	login           *login.Flow
	logger          *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, recommendations *recommendation.Service, opts ...Option) *Handler {
	h := &Handler{service: service, recommendations: recommendations, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/dashboard", h.dashboard)
	mux.HandleFunc("/v1/preferences", h.preferences)
	mux.HandleFunc("/v1/recommendations", h.listRecommendations)
	mux.HandleFunc("/v1/recommendations/activities/", h.activityRecommendation)
	mux.HandleFunc("/v1/auth/login", h.beginLogin)
	mux.HandleFunc("/v1/auth/callback", h.loginCallback)
	mux.HandleFunc("/v1/auth/me", h.me)
	mux.HandleFunc("/v1/auth/logout", h.logout)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/activities/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getActivity(w, r, id)
	case http.MethodPut:
		h.updateActivity(w, r, id)
	case http.MethodDelete:
		h.deleteActivity(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// requireScope returns the caller's claims or writes 401/403.
func requireScope(w http.ResponseWriter, r *http.Request, write bool) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if write && !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:write required")
		return nil, false
	}
	if !write && !claims.CanRead() {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:read required")
		return nil, false
	}
	return claims, true
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, true)
	if !ok {
		return
	}

	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	activity, replay, err := h.service.CreateActivity(r.Context(), claims.Subject, req.input(), idempotencyKey)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, CreateActivityResponse{ActivityView: toActivityView(*activity), Replay: replay})
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, false)
	if !ok {
		return
	}

	activity, err := h.service.GetActivity(r.Context(), claims.Subject, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, false)
	if !ok {
		return
	}

	limit := domain.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.ListActivities(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityView(a))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, true)
	if !ok {
		return
	}

	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, err := h.service.UpdateActivity(r.Context(), claims.Subject, id, req.input())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, true)
	if !ok {
		return
	}

	if err := h.service.DeleteActivity(r.Context(), claims.Subject, id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, false)
	if !ok {
		return
	}

	d, err := h.service.Dashboard(r.Context(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardView(d))
}

func (h *Handler) preferences(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		claims, ok := requireScope(w, r, false)
		if !ok {
			return
		}
		prefs, err := h.service.GetPreferences(r.Context(), claims.Subject)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPreferencesView(prefs))
	case http.MethodPut:
		claims, ok := requireScope(w, r, true)
		if !ok {
			return
		}
		var req PreferencesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		prefs, err := h.service.UpdatePreferences(r.Context(), claims.Subject, domain.PreferencesUpdate{
			Theme:             req.Theme,
			WeeklyCalorieGoal: req.WeeklyCalorieGoal,
		})
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPreferencesView(prefs))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, false)
	if !ok {
		return
	}

	recs, err := h.recommendations.ForUser(r.Context(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	items := make([]RecommendationView, 0, len(recs))
	for _, rec := range recs {
		items = append(items, toRecommendationView(rec))
	}
	writeJSON(w, http.StatusOK, ListRecommendationsResponse{Items: items})
}

func (h *Handler) activityRecommendation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/recommendations/activities/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}
	claims, ok := requireScope(w, r, false)
	if !ok {
		return
	}

	rec, err := h.recommendations.ForActivity(r.Context(), claims.Subject, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecommendationView(*rec))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidationError(err):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
	case errors.Is(err, recommendation.ErrRecommendationNotFound):
		writeError(w, http.StatusNotFound, "not_found", "recommendation not found")
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
