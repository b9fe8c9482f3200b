package analytics

import (
	"time"

	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

// Average считает средние по всем признакам окна
func Average(samples []models.PhysiologicalSample, d time.Duration) models.WindowAverages {
	var hr, rmssd, sdnn, nn50, pnn50, stress, lfhf, vlf, lf, hf accumulator
	for _, s := range samples {
		hr.add(s.HeartRate)
		rmssd.add(s.RMSSD)
		sdnn.add(s.SDNN)
		nn50.add(s.NN50)
		pnn50.add(s.PNN50)
		stress.add(s.StressIndex)
		lfhf.add(s.LFHFRatio)
		vlf.add(s.VLF)
		lf.add(s.LF)
		hf.add(s.HF)
	}

	return models.WindowAverages{
		Seconds:     d.Seconds(),
		Samples:     len(samples),
		HeartRate:   hr.mean(),
		RMSSD:       rmssd.mean(),
		SDNN:        sdnn.mean(),
		NN50:        nn50.mean(),
		PNN50:       pnn50.mean(),
		StressIndex: stress.mean(),
		LFHFRatio:   lfhf.mean(),
		VLF:         vlf.mean(),
		LF:          lf.mean(),
		HF:          hf.mean(),
	}
}

// Compute вычисляет производные метрики по уже выбранным окнам.
// Чистая функция: одинаковые входы дают одинаковый результат.
func Compute(w Windows, spec WindowSpec, now time.Time) models.DerivedMetrics {
	m := models.DerivedMetrics{
		ComputedAt:    now.UTC(),
		WindowMinutes: spec.Minutes(),
		Short:         Average(w.Short, ShortWindow),
		Medium:        Average(w.Medium, MediumWindow),
		Long:          Average(w.Long, spec.Long()),
		Baseline:      Average(w.Baseline, BaselineWindow),
	}

	m.DeltaHR = difference(m.Short.HeartRate, m.Long.HeartRate)
	m.DeltaRMSSDMillis = models.Millis(difference(m.Short.RMSSD, m.Long.RMSSD))
	m.State, m.BaselineRatio = Classify(m.Short.RMSSD, m.Baseline.RMSSD)

	applyGlucose(&m, w.Glucose)
	return m
}

// Cycle выполняет один цикл: выборка окон, расчет и классификация
func Cycle(phys []models.PhysiologicalSample, glucose []models.GlucoseSample, spec WindowSpec, now time.Time) models.Snapshot {
	return NewSnapshot(Compute(spec.Split(phys, glucose, now), spec, now))
}

// NewSnapshot дополняет метрики данными отображения состояния
func NewSnapshot(m models.DerivedMetrics) models.Snapshot {
	p := Profile(m.State)
	return models.Snapshot{
		DerivedMetrics: m,
		StateName:      p.Name,
		Description:    p.Description,
		Recommendation: p.Recommendation,
		Color:          p.Color,
		GlucoseArrow:   m.GlucoseDirection.Arrow(),
		StoreAvailable: true,
	}
}

// applyGlucose заполняет последнее значение глюкозы и скорость его изменения (mg/dL в минуту).
// Окно должно быть отсортировано по времени.
func applyGlucose(m *models.DerivedMetrics, window []models.GlucoseSample) {
	m.GlucoseSamples = len(window)
	if len(window) == 0 {
		return
	}

	last := window[len(window)-1]
	value := last.Value
	at := last.Timestamp.UTC()
	m.LatestGlucose = &value
	m.LatestGlucoseAt = &at
	m.GlucoseDirection = last.Direction

	if len(window) < 2 {
		return
	}
	prev := window[len(window)-2]
	elapsed := last.Timestamp.Sub(prev.Timestamp).Minutes()
	if elapsed <= 0 {
		return
	}
	rate := (last.Value - prev.Value) / elapsed
	m.GlucoseRateOfChange = &rate
}

// difference возвращает a-b, если оба операнда присутствуют
func difference(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	d := *a - *b
	return &d
}
