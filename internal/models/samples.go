// Package models содержит структуры данных для выборок датчиков, производных метрик и API
package models

import "time"

// PhysiologicalSample представляет одну запись нагрудного датчика (HR + признаки HRV).
// Любое измерение может отсутствовать: nil означает "нет значения", а не ноль.
type PhysiologicalSample struct {
	Timestamp   time.Time `json:"timestamp"`
	HeartRate   *float64  `json:"hr"`
	RMSSD       *float64  `json:"hrv_rmssd"`
	SDNN        *float64  `json:"hrv_sdnn"`
	NN50        *float64  `json:"hrv_nn50"`
	PNN50       *float64  `json:"hrv_pnn50"`
	StressIndex *float64  `json:"hrv_stress_index"`
	LFHFRatio   *float64  `json:"hrv_lf_hf_ratio"`
	VLF         *float64  `json:"hrv_vlf"`
	LF          *float64  `json:"hrv_lf"`
	HF          *float64  `json:"hrv_hf"`
}

// SampleTime возвращает метку времени выборки
func (s PhysiologicalSample) SampleTime() time.Time { return s.Timestamp }

// GlucoseSample представляет одно показание CGM в mg/dL
type GlucoseSample struct {
	Timestamp time.Time        `json:"timestamp"`
	Value     float64          `json:"sgv"`
	Direction GlucoseDirection `json:"direction,omitempty"`
}

// SampleTime возвращает метку времени показания
func (s GlucoseSample) SampleTime() time.Time { return s.Timestamp }

// GlucoseDirection - индикатор тренда глюкозы в нотации Nightscout
type GlucoseDirection string

const (
	DirectionNone          GlucoseDirection = ""
	DirectionDoubleUp      GlucoseDirection = "DoubleUp"
	DirectionSingleUp      GlucoseDirection = "SingleUp"
	DirectionFortyFiveUp   GlucoseDirection = "FortyFiveUp"
	DirectionFlat          GlucoseDirection = "Flat"
	DirectionFortyFiveDown GlucoseDirection = "FortyFiveDown"
	DirectionSingleDown    GlucoseDirection = "SingleDown"
	DirectionDoubleDown    GlucoseDirection = "DoubleDown"
)

var directionArrows = map[GlucoseDirection]string{
	DirectionDoubleUp:      "⇈",
	DirectionSingleUp:      "↑",
	DirectionFortyFiveUp:   "↗",
	DirectionFlat:          "→",
	DirectionFortyFiveDown: "↘",
	DirectionSingleDown:    "↓",
	DirectionDoubleDown:    "⇊",
}

// ParseGlucoseDirection разбирает строку тренда. Служебные значения
// ("NONE", "NOT COMPUTABLE", "RATE OUT OF RANGE") и мусор дают DirectionNone.
func ParseGlucoseDirection(s string) GlucoseDirection {
	d := GlucoseDirection(s)
	if d.Valid() {
		return d
	}
	return DirectionNone
}

// Valid сообщает, является ли значение одним из семи трендов
func (d GlucoseDirection) Valid() bool {
	_, ok := directionArrows[d]
	return ok
}

// Arrow возвращает символ стрелки для отображения или пустую строку
func (d GlucoseDirection) Arrow() string {
	return directionArrows[d]
}
