package analytics

import (
	"math"

	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

// Параметры автомасштаба оси глюкозы, mg/dL
const (
	GlucoseAxisPadding = 10.0
	GlucoseAxisMinSpan = 40.0
	GlucoseAxisFloor   = 40.0
	GlucoseAxisCeiling = 400.0
)

// HeartRateSeries возвращает точки HR, пропуская отсутствующие значения
func HeartRateSeries(samples []models.PhysiologicalSample) []models.SeriesPoint {
	return series(samples, func(s models.PhysiologicalSample) *float64 { return s.HeartRate })
}

// RMSSDSeries возвращает точки RMSSD в миллисекундах
func RMSSDSeries(samples []models.PhysiologicalSample) []models.SeriesPoint {
	return series(samples, func(s models.PhysiologicalSample) *float64 { return models.Millis(s.RMSSD) })
}

// SDNNSeries возвращает точки SDNN в миллисекундах
func SDNNSeries(samples []models.PhysiologicalSample) []models.SeriesPoint {
	return series(samples, func(s models.PhysiologicalSample) *float64 { return models.Millis(s.SDNN) })
}

func series(samples []models.PhysiologicalSample, get func(models.PhysiologicalSample) *float64) []models.SeriesPoint {
	out := make([]models.SeriesPoint, 0, len(samples))
	for _, s := range samples {
		v := get(s)
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			continue
		}
		out = append(out, models.SeriesPoint{Time: s.Timestamp.UTC(), Value: *v})
	}
	return out
}

// GlucoseSeries возвращает точки глюкозы
func GlucoseSeries(samples []models.GlucoseSample) []models.SeriesPoint {
	out := make([]models.SeriesPoint, 0, len(samples))
	for _, s := range samples {
		out = append(out, models.SeriesPoint{Time: s.Timestamp.UTC(), Value: s.Value})
	}
	return out
}

// StateTimeline классифицирует RMSSD каждой выборки относительно средней базовой линии.
// Без базовой линии шкала пуста.
func StateTimeline(samples []models.PhysiologicalSample, baseline *float64) []models.StatePoint {
	out := make([]models.StatePoint, 0, len(samples))
	for _, s := range samples {
		state, _ := Classify(s.RMSSD, baseline)
		if !state.Known() {
			continue
		}
		out = append(out, models.StatePoint{Time: s.Timestamp.UTC(), State: state, Level: int(state)})
	}
	return out
}

// GlucoseAxis подбирает диапазон оси: min/max с отступом, ширина не меньше GlucoseAxisMinSpan.
// Отступ не выводит ось за 40..400, если сами данные не выходят за эти пределы.
func GlucoseAxis(samples []models.GlucoseSample) (models.AxisRange, bool) {
	if len(samples) == 0 {
		return models.AxisRange{}, false
	}

	minV, maxV := samples[0].Value, samples[0].Value
	for _, s := range samples[1:] {
		minV = math.Min(minV, s.Value)
		maxV = math.Max(maxV, s.Value)
	}

	lo, hi := minV-GlucoseAxisPadding, maxV+GlucoseAxisPadding
	if hi-lo < GlucoseAxisMinSpan {
		mid := (lo + hi) / 2
		lo, hi = mid-GlucoseAxisMinSpan/2, mid+GlucoseAxisMinSpan/2
	}

	floor := math.Min(GlucoseAxisFloor, minV)
	ceiling := math.Max(GlucoseAxisCeiling, maxV)
	if lo < floor {
		lo = floor
		hi = math.Min(math.Max(hi, lo+GlucoseAxisMinSpan), ceiling)
	}
	if hi > ceiling {
		hi = ceiling
		lo = math.Max(math.Min(lo, hi-GlucoseAxisMinSpan), floor)
	}
	return models.AxisRange{Min: lo, Max: hi}, true
}

// Tail возвращает последние n элементов (копию)
func Tail[S any](samples []S, n int) []S {
	if n <= 0 {
		return []S{}
	}
	if len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	out := make([]S, len(samples))
	copy(out, samples)
	return out
}
