// Package metrics реализует экспорт метрик в Prometheus
package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

// Prometheus метрики
var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polar_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polar_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"endpoint", "method"},
	)

	// CyclesTotal количество циклов обновления по исходу
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polar_refresh_cycles_total",
			Help: "Total number of refresh cycles by outcome",
		},
		[]string{"outcome"},
	)

	// StoreFailures ошибки чтения из хранилища
	StoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polar_store_failures_total",
			Help: "Total number of failed store queries",
		},
		[]string{"stream"},
	)

	// ExcludedDocuments документы, отброшенные из-за некорректной метки или значения
	ExcludedDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polar_excluded_documents_total",
			Help: "Total number of malformed documents excluded from windows",
		},
		[]string{"stream"},
	)

	// StaleSnapshots выдачи кэшированного снимка вместо свежего
	StaleSnapshots = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polar_stale_snapshots_total",
			Help: "Total number of stale snapshots served after a store failure",
		},
	)

	// CacheHits попадания в кэш
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polar_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// CacheMisses промахи кэша
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polar_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// LiveClients подключенные websocket-клиенты
	LiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polar_live_clients",
			Help: "Number of connected live websocket clients",
		},
	)

	// HeartRate средний пульс по окнам
	HeartRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "polar_heart_rate_bpm",
			Help: "Mean heart rate per window",
		},
		[]string{"window"},
	)

	// RMSSD средний RMSSD по окнам, в миллисекундах
	RMSSD = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "polar_hrv_rmssd_ms",
			Help: "Mean RMSSD per window in milliseconds",
		},
		[]string{"window"},
	)

	// SDNN средний SDNN по окнам, в миллисекундах
	SDNN = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "polar_hrv_sdnn_ms",
			Help: "Mean SDNN per window in milliseconds",
		},
		[]string{"window"},
	)

	// BaselineRatio отношение RMSSD короткого окна к базовой линии
	BaselineRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polar_hrv_baseline_ratio",
			Help: "Short-window RMSSD relative to the baseline",
		},
	)

	// StressState код текущего состояния (0 - нет данных)
	StressState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polar_stress_state",
			Help: "Current physiological state code (0 insufficient data, 1 recovery .. 4 high stress)",
		},
	)

	// Glucose последнее показание CGM
	Glucose = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polar_glucose_mg_dl",
			Help: "Latest CGM reading in mg/dL",
		},
	)

	// GlucoseRate скорость изменения глюкозы
	GlucoseRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polar_glucose_rate_mg_dl_per_minute",
			Help: "Glucose rate of change in mg/dL per minute",
		},
	)

	// CycleLatency время одного цикла обновления
	CycleLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "polar_cycle_latency_seconds",
			Help:    "Refresh cycle latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)

// ObserveSnapshot обновляет gauge-метрики по свежему снимку.
// Отсутствующие значения сбрасываются в NaN, чтобы не показывать устаревшие числа.
func ObserveSnapshot(s models.Snapshot) {
	windows := []struct {
		name string
		avg  models.WindowAverages
	}{
		{"short", s.Short},
		{"medium", s.Medium},
		{"long", s.Long},
		{"baseline", s.Baseline},
	}
	for _, w := range windows {
		HeartRate.WithLabelValues(w.name).Set(value(w.avg.HeartRate))
		RMSSD.WithLabelValues(w.name).Set(value(w.avg.RMSSDMillis()))
		SDNN.WithLabelValues(w.name).Set(value(w.avg.SDNNMillis()))
	}

	BaselineRatio.Set(value(s.BaselineRatio))
	StressState.Set(float64(s.State))
	Glucose.Set(value(s.LatestGlucose))
	GlucoseRate.Set(value(s.GlucoseRateOfChange))
}

func value(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
