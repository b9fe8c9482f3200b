// Package handlers содержит HTTP обработчики для API
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/MCPumpkingz/polar-dashboard/internal/analytics"
	"github.com/MCPumpkingz/polar-dashboard/internal/cache"
	"github.com/MCPumpkingz/polar-dashboard/internal/metrics"
	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

// SnapshotService выполняет циклы обновления по запросу
type SnapshotService interface {
	Snapshot(ctx context.Context, minutes int) (models.Snapshot, error)
	Dashboard(ctx context.Context, minutes int) (models.Dashboard, error)
	Stats() models.StatsResponse
	Ping(ctx context.Context) error
	DefaultWindow() int
}

// LatestReader читает последний снимок и историю состояний из кэша
type LatestReader interface {
	LatestSnapshot(ctx context.Context) (models.Snapshot, error)
	StateHistory(ctx context.Context, count int64) ([]models.State, error)
	Ping(ctx context.Context) error
}

// ClientCounter сообщает число live-клиентов
type ClientCounter interface {
	Count() int
}

// Handler содержит зависимости для HTTP обработчиков
type Handler struct {
	svc       SnapshotService
	cache     LatestReader
	clients   ClientCounter
	log       *zap.Logger
	startTime time.Time
}

// NewHandler создает новый обработчик. cache и clients могут быть nil.
func NewHandler(svc SnapshotService, cache LatestReader, clients ClientCounter, log *zap.Logger) *Handler {
	return &Handler{
		svc:       svc,
		cache:     cache,
		clients:   clients,
		log:       log,
		startTime: time.Now(),
	}
}

// Register регистрирует маршруты API
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/snapshot", h.SnapshotHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/snapshot/latest", h.LatestSnapshotHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/dashboard", h.DashboardHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/states", h.StatesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/states/history", h.StateHistoryHandler).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/stats", h.StatsHandler).Methods(http.MethodGet)
}

// SnapshotHandler обрабатывает GET /api/snapshot?window=N - расчет снимка для окна N минут
func (h *Handler) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/snapshot"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	minutes, err := h.windowParam(r)
	if err != nil {
		h.fail(w, r, endpoint, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := h.svc.Snapshot(r.Context(), minutes)
	if err != nil {
		h.fail(w, r, endpoint, err.Error(), statusFor(err))
		return
	}

	h.ok(w, r, endpoint, snap)
}

// DashboardHandler обрабатывает GET /api/dashboard?window=N - снимок с рядами для графиков
func (h *Handler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/dashboard"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	minutes, err := h.windowParam(r)
	if err != nil {
		h.fail(w, r, endpoint, err.Error(), http.StatusBadRequest)
		return
	}

	d, err := h.svc.Dashboard(r.Context(), minutes)
	if err != nil {
		h.fail(w, r, endpoint, err.Error(), statusFor(err))
		return
	}

	h.ok(w, r, endpoint, d)
}

// LatestSnapshotHandler возвращает последний снимок окна по умолчанию из кэша
func (h *Handler) LatestSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/snapshot/latest"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	if h.cache == nil {
		h.fail(w, r, endpoint, "Cache not available", http.StatusServiceUnavailable)
		return
	}

	snap, err := h.cache.LatestSnapshot(r.Context())
	if errors.Is(err, cache.ErrNoSnapshot) {
		h.fail(w, r, endpoint, "No snapshot cached yet", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("Failed to read cached snapshot", zap.Error(err))
		h.fail(w, r, endpoint, "Failed to get snapshot: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.ok(w, r, endpoint, snap)
}

// StatesHandler обрабатывает GET /api/states - описания состояний и пороги классификации
func (h *Handler) StatesHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/states"

	response := map[string]interface{}{
		"states": analytics.Profiles(),
		"thresholds": map[string]float64{
			"mild_stress": analytics.MildStressRatio,
			"balanced":    analytics.BalancedRatio,
			"recovery":    analytics.RecoveryRatio,
		},
		"windows": map[string]interface{}{
			"short_seconds":    analytics.ShortWindow.Seconds(),
			"medium_seconds":   analytics.MediumWindow.Seconds(),
			"baseline_seconds": analytics.BaselineWindow.Seconds(),
			"long_minutes_min": analytics.MinWindowMinutes,
			"long_minutes_max": analytics.MaxWindowMinutes,
			"long_minutes":     h.svc.DefaultWindow(),
		},
	}

	h.ok(w, r, endpoint, response)
}

// StateHistoryHandler обрабатывает GET /api/states/history?n=N - последние состояния окна
// по умолчанию, новые первыми
func (h *Handler) StateHistoryHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/states/history"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	if h.cache == nil {
		h.fail(w, r, endpoint, "Cache not available", http.StatusServiceUnavailable)
		return
	}

	count := int64(defaultHistoryCount)
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 || n > cache.StateHistorySize {
			h.fail(w, r, endpoint, fmt.Sprintf("invalid n %q: must be between 1 and %d", raw, cache.StateHistorySize), http.StatusBadRequest)
			return
		}
		count = n
	}

	states, err := h.cache.StateHistory(r.Context(), count)
	if err != nil {
		h.log.Error("Failed to read state history", zap.Error(err))
		h.fail(w, r, endpoint, "Failed to get state history: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.ok(w, r, endpoint, models.StateHistoryResponse{States: states, Count: len(states)})
}

// HealthHandler обрабатывает GET /health - проверка здоровья
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := models.HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Store:     "connected",
		Redis:     "disabled",
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	if err := h.svc.Ping(ctx); err != nil {
		status.Status = "degraded"
		status.Store = "disconnected"
	}
	if h.cache != nil {
		status.Redis = "connected"
		if err := h.cache.Ping(ctx); err != nil {
			status.Redis = "disconnected"
		}
	}

	h.respondJSON(w, status, http.StatusOK)
}

// StatsHandler обрабатывает GET /stats - статистика сервиса
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/stats"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	stats := h.svc.Stats()
	if h.clients != nil {
		stats.LiveClients = h.clients.Count()
	}

	h.ok(w, r, endpoint, stats)
}

const defaultHistoryCount = 100

// windowParam читает параметр window. Пустой параметр - окно по умолчанию.
func (h *Handler) windowParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return h.svc.DefaultWindow(), nil
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: must be an integer number of minutes", raw)
	}
	if _, err := analytics.NewWindowSpec(minutes); err != nil {
		return 0, err
	}
	return minutes, nil
}

func statusFor(err error) int {
	if errors.Is(err, analytics.ErrWindowOutOfRange) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) ok(w http.ResponseWriter, r *http.Request, endpoint string, data interface{}) {
	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, data, http.StatusOK)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint, message string, status int) {
	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, strconv.Itoa(status)).Inc()
	h.respondError(w, message, status)
}

// respondJSON отправляет JSON ответ
func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Warn("Failed to encode response", zap.Error(err))
	}
}

// respondError отправляет ошибку в JSON формате
func (h *Handler) respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
