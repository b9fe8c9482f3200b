package analytics

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

func TestExtract_BoundsAndOrder(t *testing.T) {
	samples := []models.PhysiologicalSample{
		phys(testNow.Add(-30*time.Second), f(71), nil),
		phys(testNow.Add(-90*time.Second), f(60), nil), // too old
		phys(testNow.Add(-60*time.Second), f(70), nil), // exactly on the boundary
		phys(testNow, f(72), nil),
		phys(testNow.Add(time.Second), f(99), nil), // after now
		phys(time.Time{}, f(1), nil),               // unparsed timestamp
	}

	got := Extract(samples, ShortWindow, testNow)

	require.Len(t, got, 3)
	assert.Equal(t, 70.0, *got[0].HeartRate)
	assert.Equal(t, 71.0, *got[1].HeartRate)
	assert.Equal(t, 72.0, *got[2].HeartRate)

	// the input must not be reordered
	assert.Equal(t, 71.0, *samples[0].HeartRate)
}

func TestExtract_Empty(t *testing.T) {
	got := Extract([]models.GlucoseSample(nil), time.Hour, testNow)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	old := []models.GlucoseSample{{Timestamp: testNow.Add(-2 * time.Hour), Value: 100}}
	assert.Empty(t, Extract(old, time.Hour, testNow))
}

func TestExtract_NormalizesTimeZones(t *testing.T) {
	zurich := time.FixedZone("CEST", 2*60*60)
	newYork := time.FixedZone("EDT", -4*60*60)

	samples := []models.GlucoseSample{
		{Timestamp: testNow.Add(-4 * time.Minute).In(zurich), Value: 120},
		{Timestamp: testNow.Add(-9 * time.Minute).In(newYork), Value: 115},
		// same wall clock as now but in Zurich: two hours in the past
		{Timestamp: time.Date(2025, 9, 14, 10, 30, 0, 0, zurich), Value: 80},
	}

	got := Extract(samples, 10*time.Minute, testNow.In(newYork))

	require.Len(t, got, 2)
	assert.Equal(t, 115.0, got[0].Value)
	assert.Equal(t, 120.0, got[1].Value)
}

func TestExtract_KeepsDuplicates(t *testing.T) {
	ts := testNow.Add(-10 * time.Second)
	samples := []models.PhysiologicalSample{
		phys(ts, f(70), nil),
		phys(testNow.Add(-20*time.Second), f(60), nil),
		phys(ts, f(80), nil),
	}

	got := Extract(samples, ShortWindow, testNow)

	require.Len(t, got, 3)
	assert.Equal(t, 60.0, *got[0].HeartRate)
	// stable order for equal timestamps
	assert.Equal(t, 70.0, *got[1].HeartRate)
	assert.Equal(t, 80.0, *got[2].HeartRate)
}

func TestExtract_ShortWindowIsSubsetOfLong(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	samples := make([]models.PhysiologicalSample, 0, 2000)
	for i := 0; i < 2000; i++ {
		offset := time.Duration(rng.Int63n(int64(70 * time.Minute)))
		samples = append(samples, phys(testNow.Add(-offset), f(float64(i)), nil))
	}
	// out-of-order duplicates
	samples = append(samples, samples[10], samples[3])

	for minutes := 1; minutes <= 60; minutes++ {
		short := Extract(samples, ShortWindow, testNow)
		long := Extract(samples, time.Duration(minutes)*time.Minute, testNow)

		inLong := make(map[float64]int, len(long))
		for _, s := range long {
			inLong[*s.HeartRate]++
		}
		for _, s := range short {
			if inLong[*s.HeartRate] == 0 {
				t.Fatalf("sample %v in short window missing from %d-minute window", s.Timestamp, minutes)
			}
		}
	}
}

func BenchmarkExtract(b *testing.B) {
	samples := make([]models.PhysiologicalSample, 0, 3600)
	for i := 0; i < 3600; i++ {
		samples = append(samples, phys(testNow.Add(-time.Duration(i)*time.Second), f(70), nil))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Extract(samples, 15*time.Minute, testNow)
	}
}
