package analytics

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

var testNow = time.Date(2025, 9, 14, 10, 30, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func phys(at time.Time, hr, rmssd *float64) models.PhysiologicalSample {
	return models.PhysiologicalSample{Timestamp: at, HeartRate: hr, RMSSD: rmssd}
}

func TestNewWindowSpec_Range(t *testing.T) {
	for _, minutes := range []int{5, 15, 60} {
		spec, err := NewWindowSpec(minutes)
		require.NoError(t, err)
		assert.Equal(t, minutes, spec.Minutes())
		assert.Equal(t, time.Duration(minutes)*time.Minute, spec.Long())
	}

	for _, minutes := range []int{-1, 0, 4, 61, 1000} {
		_, err := NewWindowSpec(minutes)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrWindowOutOfRange), "minutes=%d", minutes)
	}
}

func TestWindowSpec_FetchSpanCoversBaseline(t *testing.T) {
	short, _ := NewWindowSpec(5)
	assert.Equal(t, BaselineWindow, short.FetchSpan())

	long, _ := NewWindowSpec(45)
	assert.Equal(t, 45*time.Minute, long.FetchSpan())

	assert.Equal(t, DefaultWindowMinutes, DefaultWindowSpec().Minutes())
}

func TestAverage_SkipsMissingValues(t *testing.T) {
	samples := []models.PhysiologicalSample{
		phys(testNow, f(70), nil),
		phys(testNow, nil, f(0.040)),
		phys(testNow, f(80), f(0.060)),
		phys(testNow, f(math.NaN()), nil),
	}

	avg := Average(samples, ShortWindow)

	assert.Equal(t, 4, avg.Samples)
	require.NotNil(t, avg.HeartRate)
	assert.InDelta(t, 75.0, *avg.HeartRate, 1e-9)
	require.NotNil(t, avg.RMSSD)
	assert.InDelta(t, 0.050, *avg.RMSSD, 1e-12)
	assert.Nil(t, avg.SDNN, "absent field must stay nil, not zero")
	assert.Nil(t, avg.LFHFRatio)
	assert.Equal(t, 60.0, avg.Seconds)
}

func TestAverage_ZeroIsAValue(t *testing.T) {
	avg := Average([]models.PhysiologicalSample{phys(testNow, nil, f(0))}, ShortWindow)
	require.NotNil(t, avg.RMSSD)
	assert.Equal(t, 0.0, *avg.RMSSD)
}

// Short window: 70 samples, HR 72, RMSSD 45 ms.
// Long window averages HR 68 / RMSSD 50 ms, baseline RMSSD 60 ms.
func TestCompute_MildStressScenario(t *testing.T) {
	var w Windows
	for i := 0; i < 70; i++ {
		w.Short = append(w.Short, phys(testNow.Add(-time.Duration(i)*time.Second/2), f(72), f(0.045)))
	}
	for i := 0; i < 100; i++ {
		hr, rmssd := 66.0, 0.048
		if i%2 == 0 {
			hr, rmssd = 70.0, 0.052
		}
		w.Long = append(w.Long, phys(testNow.Add(-time.Duration(i)*9*time.Second), f(hr), f(rmssd)))
	}
	for i := 0; i < 60; i++ {
		w.Baseline = append(w.Baseline, phys(testNow.Add(-time.Duration(i)*10*time.Second), f(70), f(0.060)))
	}

	spec, err := NewWindowSpec(15)
	require.NoError(t, err)
	m := Compute(w, spec, testNow)

	require.NotNil(t, m.DeltaHR)
	assert.InDelta(t, 4.0, *m.DeltaHR, 1e-9)
	require.NotNil(t, m.DeltaRMSSDMillis)
	assert.InDelta(t, -5.0, *m.DeltaRMSSDMillis, 1e-9)
	require.NotNil(t, m.BaselineRatio)
	assert.InDelta(t, 0.75, *m.BaselineRatio, 1e-9)
	assert.Equal(t, models.StateMildStress, m.State)
	assert.Equal(t, 15, m.WindowMinutes)
}

func TestCycle_EmptyStreams(t *testing.T) {
	snap := Cycle(nil, nil, DefaultWindowSpec(), testNow)

	assert.Nil(t, snap.Short.HeartRate)
	assert.Nil(t, snap.Long.HeartRate)
	assert.Nil(t, snap.Short.RMSSD)
	assert.Nil(t, snap.Baseline.RMSSD)
	assert.Nil(t, snap.DeltaHR)
	assert.Nil(t, snap.DeltaRMSSDMillis)
	assert.Nil(t, snap.BaselineRatio)
	assert.Nil(t, snap.LatestGlucose)
	assert.Nil(t, snap.GlucoseRateOfChange)
	assert.Empty(t, snap.GlucoseArrow)
	assert.Equal(t, models.StateInsufficientData, snap.State)
	assert.Equal(t, "Insufficient data", snap.StateName)
	assert.Empty(t, snap.Recommendation)
	assert.True(t, snap.StoreAvailable)
}

func TestCompute_NullPropagation(t *testing.T) {
	spec := DefaultWindowSpec()

	// HR only in the long window, RMSSD only in the short one
	w := Windows{
		Short: []models.PhysiologicalSample{phys(testNow, nil, f(0.05))},
		Long:  []models.PhysiologicalSample{phys(testNow, f(65), nil)},
	}
	m := Compute(w, spec, testNow)
	assert.Nil(t, m.DeltaHR)
	assert.Nil(t, m.DeltaRMSSDMillis)

	// identical averages give a real zero, not nil
	same := []models.PhysiologicalSample{phys(testNow, f(65), f(0.05))}
	m = Compute(Windows{Short: same, Long: same}, spec, testNow)
	require.NotNil(t, m.DeltaHR)
	assert.Equal(t, 0.0, *m.DeltaHR)
	require.NotNil(t, m.DeltaRMSSDMillis)
	assert.Equal(t, 0.0, *m.DeltaRMSSDMillis)
}

func TestCompute_Idempotent(t *testing.T) {
	var ps []models.PhysiologicalSample
	for i := 0; i < 600; i++ {
		ps = append(ps, phys(testNow.Add(-time.Duration(i)*time.Second), f(60+float64(i%17)*0.37), f(0.03+float64(i%11)*0.0013)))
	}
	gs := []models.GlucoseSample{
		{Timestamp: testNow.Add(-10 * time.Minute), Value: 101},
		{Timestamp: testNow.Add(-5 * time.Minute), Value: 107, Direction: models.DirectionFortyFiveUp},
	}

	spec := DefaultWindowSpec()
	w := spec.Split(ps, gs, testNow)

	first := Compute(w, spec, testNow)
	second := Compute(w, spec, testNow)
	assert.Equal(t, first, second)
}

func TestCompute_GlucoseRateOfChange(t *testing.T) {
	spec := DefaultWindowSpec()

	w := Windows{Glucose: []models.GlucoseSample{
		{Timestamp: testNow.Add(-7 * time.Minute), Value: 110},
		{Timestamp: testNow.Add(-2 * time.Minute), Value: 118, Direction: models.DirectionSingleUp},
	}}
	m := Compute(w, spec, testNow)

	require.NotNil(t, m.LatestGlucose)
	assert.Equal(t, 118.0, *m.LatestGlucose)
	require.NotNil(t, m.GlucoseRateOfChange)
	assert.InDelta(t, 1.6, *m.GlucoseRateOfChange, 1e-9)
	assert.Equal(t, models.DirectionSingleUp, m.GlucoseDirection)
	require.NotNil(t, m.LatestGlucoseAt)
	assert.True(t, m.LatestGlucoseAt.Equal(testNow.Add(-2*time.Minute)))
	assert.Equal(t, 2, m.GlucoseSamples)

	snap := NewSnapshot(m)
	assert.Equal(t, "↑", snap.GlucoseArrow)
}

func TestCompute_GlucoseEdgeCases(t *testing.T) {
	spec := DefaultWindowSpec()

	single := Compute(Windows{Glucose: []models.GlucoseSample{
		{Timestamp: testNow, Value: 95},
	}}, spec, testNow)
	require.NotNil(t, single.LatestGlucose)
	assert.Equal(t, 95.0, *single.LatestGlucose)
	assert.Nil(t, single.GlucoseRateOfChange)

	ts := testNow.Add(-time.Minute)
	sameTime := Compute(Windows{Glucose: []models.GlucoseSample{
		{Timestamp: ts, Value: 100},
		{Timestamp: ts, Value: 104},
	}}, spec, testNow)
	require.NotNil(t, sameTime.LatestGlucose)
	assert.Nil(t, sameTime.GlucoseRateOfChange)
}

func TestCycle_WindowsFromOneStream(t *testing.T) {
	var ps []models.PhysiologicalSample
	for i := 0; i < 900; i++ {
		ps = append(ps, phys(testNow.Add(-time.Duration(i)*time.Second), f(70), f(0.0625)))
	}
	spec := DefaultWindowSpec()

	snap := Cycle(ps, nil, spec, testNow)

	assert.Equal(t, 61, snap.Short.Samples)
	assert.Equal(t, 301, snap.Medium.Samples)
	assert.Equal(t, 601, snap.Baseline.Samples)
	assert.Equal(t, 900, snap.Long.Samples)
	require.NotNil(t, snap.BaselineRatio)
	assert.Equal(t, 1.0, *snap.BaselineRatio)
	assert.Equal(t, models.StateBalanced, snap.State)
	assert.Equal(t, "#f1c40f", snap.Color)
}

func BenchmarkCycle(b *testing.B) {
	var ps []models.PhysiologicalSample
	for i := 0; i < 3600; i++ {
		ps = append(ps, phys(testNow.Add(-time.Duration(i)*time.Second), f(70+float64(i%9)), f(0.05)))
	}
	spec, _ := NewWindowSpec(60)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Cycle(ps, nil, spec, testNow)
	}
}
