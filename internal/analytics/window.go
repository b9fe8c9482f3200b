package analytics

import (
	"sort"
	"time"

	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

// Timestamped - выборка с меткой времени
type Timestamped interface {
	SampleTime() time.Time
}

// Extract возвращает выборки с меткой в интервале [now-d, now], отсортированные по времени.
// Сравнение выполняется в UTC. Нулевые метки (неразобранное время) исключаются.
// Исходный срез не изменяется.
func Extract[S Timestamped](samples []S, d time.Duration, now time.Time) []S {
	if d < 0 {
		d = 0
	}
	upper := now.UTC()
	lower := upper.Add(-d)

	out := make([]S, 0, len(samples))
	for _, s := range samples {
		ts := s.SampleTime()
		if ts.IsZero() {
			continue
		}
		ts = ts.UTC()
		if ts.Before(lower) || ts.After(upper) {
			continue
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SampleTime().Before(out[j].SampleTime())
	})
	return out
}

// Windows - набор окон, материализованных за один цикл
type Windows struct {
	Short    []models.PhysiologicalSample
	Medium   []models.PhysiologicalSample
	Long     []models.PhysiologicalSample
	Baseline []models.PhysiologicalSample
	Glucose  []models.GlucoseSample
}

// Split нарезает оба потока на окна относительно now
func (w WindowSpec) Split(phys []models.PhysiologicalSample, glucose []models.GlucoseSample, now time.Time) Windows {
	return Windows{
		Short:    Extract(phys, ShortWindow, now),
		Medium:   Extract(phys, MediumWindow, now),
		Long:     Extract(phys, w.Long(), now),
		Baseline: Extract(phys, BaselineWindow, now),
		Glucose:  Extract(glucose, w.Long(), now),
	}
}
