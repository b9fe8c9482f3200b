package models

import (
	"fmt"
	"time"
)

// State - категория состояния вегетативной нервной системы.
// Значения 1..4 упорядочены по росту стресса.
type State int

const (
	StateInsufficientData State = iota
	StateRecovery
	StateBalanced
	StateMildStress
	StateHighStress
)

var stateKeys = [...]string{
	StateInsufficientData: "insufficient_data",
	StateRecovery:         "recovery",
	StateBalanced:         "balanced",
	StateMildStress:       "mild_stress",
	StateHighStress:       "high_stress",
}

// String возвращает машинный ключ состояния
func (s State) String() string {
	if s < 0 || int(s) >= len(stateKeys) {
		return stateKeys[StateInsufficientData]
	}
	return stateKeys[s]
}

// Known сообщает, что состояние определено (не "недостаточно данных")
func (s State) Known() bool {
	return s > StateInsufficientData && int(s) < len(stateKeys)
}

// MarshalText сериализует состояние как ключ
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText восстанавливает состояние из ключа
func (s *State) UnmarshalText(b []byte) error {
	for i, k := range stateKeys {
		if k == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(b))
}

// StateProfile - неизменяемые данные отображения для состояния
type StateProfile struct {
	State          State  `json:"state"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
	Color          string `json:"color"`
}

// WindowAverages содержит средние значения по одному окну.
// Поле равно nil, если в окне нет ни одного значения этого признака.
type WindowAverages struct {
	Seconds     float64  `json:"duration_seconds"`
	Samples     int      `json:"samples"`
	HeartRate   *float64 `json:"hr"`
	RMSSD       *float64 `json:"hrv_rmssd"`
	SDNN        *float64 `json:"hrv_sdnn"`
	NN50        *float64 `json:"hrv_nn50"`
	PNN50       *float64 `json:"hrv_pnn50"`
	StressIndex *float64 `json:"hrv_stress_index"`
	LFHFRatio   *float64 `json:"hrv_lf_hf_ratio"`
	VLF         *float64 `json:"hrv_vlf"`
	LF          *float64 `json:"hrv_lf"`
	HF          *float64 `json:"hrv_hf"`
}

// RMSSDMillis возвращает средний RMSSD в миллисекундах (хранится в секундах)
func (w WindowAverages) RMSSDMillis() *float64 {
	return Millis(w.RMSSD)
}

// SDNNMillis возвращает средний SDNN в миллисекундах
func (w WindowAverages) SDNNMillis() *float64 {
	return Millis(w.SDNN)
}

// Millis переводит секунды в миллисекунды с сохранением nil
func Millis(v *float64) *float64 {
	if v == nil {
		return nil
	}
	ms := *v * 1000
	return &ms
}

// DerivedMetrics - снимок производных метрик, действительный только на момент ComputedAt
type DerivedMetrics struct {
	ComputedAt    time.Time `json:"computed_at"`
	WindowMinutes int       `json:"window_minutes"`

	Short    WindowAverages `json:"short"`
	Medium   WindowAverages `json:"medium"`
	Long     WindowAverages `json:"long"`
	Baseline WindowAverages `json:"baseline"`

	DeltaHR          *float64 `json:"delta_hr"`
	DeltaRMSSDMillis *float64 `json:"delta_rmssd_ms"`
	BaselineRatio    *float64 `json:"baseline_ratio"`
	State            State    `json:"state"`

	LatestGlucose       *float64         `json:"latest_glucose"`
	LatestGlucoseAt     *time.Time       `json:"latest_glucose_at"`
	GlucoseDirection    GlucoseDirection `json:"glucose_direction,omitempty"`
	GlucoseRateOfChange *float64         `json:"glucose_rate_of_change"`
	GlucoseSamples      int              `json:"glucose_samples"`
}

// Snapshot - плоская запись для слоя отображения за один цикл обновления
type Snapshot struct {
	DerivedMetrics
	StateName      string `json:"state_name"`
	Description    string `json:"state_description"`
	Recommendation string `json:"recommendation"`
	Color          string `json:"state_color"`
	GlucoseArrow   string `json:"glucose_arrow,omitempty"`

	// Stale выставляется, когда хранилище недоступно и отдан снимок прошлого цикла
	Stale          bool `json:"stale"`
	StoreAvailable bool `json:"store_available"`
}
