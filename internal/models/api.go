package models

import "time"

// SeriesPoint - точка временного ряда для графика
type SeriesPoint struct {
	Time  time.Time `json:"t"`
	Value float64   `json:"v"`
}

// StatePoint - точка шкалы состояний
type StatePoint struct {
	Time  time.Time `json:"t"`
	State State     `json:"state"`
	Level int       `json:"level"`
}

// AxisRange - диапазон оси графика
type AxisRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Dashboard объединяет снимок, ряды для графиков и таблицы последних значений
type Dashboard struct {
	Snapshot        Snapshot              `json:"snapshot"`
	HeartRate       []SeriesPoint         `json:"heart_rate"`
	RMSSDMillis     []SeriesPoint         `json:"hrv_rmssd_ms"`
	SDNNMillis      []SeriesPoint         `json:"hrv_sdnn_ms"`
	Glucose         []SeriesPoint         `json:"glucose"`
	GlucoseAxis     *AxisRange            `json:"glucose_axis"`
	StateTimeline   []StatePoint          `json:"state_timeline"`
	RecentPolar     []PhysiologicalSample `json:"recent_polar"`
	RecentGlucose   []GlucoseSample       `json:"recent_glucose"`
	DisplayTimeZone string                `json:"display_time_zone"`
}

// HealthStatus представляет статус здоровья сервиса
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Store     string    `json:"store"`
	Redis     string    `json:"redis"`
	Uptime    string    `json:"uptime"`
}

// StatsResponse содержит статистику сервиса
type StatsResponse struct {
	Cycles         int64  `json:"cycles"`
	StoreFailures  int64  `json:"store_failures"`
	StaleSnapshots int64  `json:"stale_snapshots"`
	LiveClients    int    `json:"live_clients"`
	LastState      string `json:"last_state,omitempty"`
	DefaultWindow  int    `json:"default_window_minutes"`
}

// StateHistoryResponse - последние состояния окна по умолчанию, новые первыми
type StateHistoryResponse struct {
	States []State `json:"states"`
	Count  int     `json:"count"`
}
