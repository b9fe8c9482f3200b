package store

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

// isoBoundLayout - формат строковой границы запроса: без дробной части и смещения,
// поэтому лексически не больше любой строки с той же секундой.
const isoBoundLayout = "2006-01-02T15:04:05"

// ErrMalformedTimestamp - метку времени документа невозможно нормализовать
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// ErrMissingValue - у показания CGM нет допустимого значения sgv
var ErrMissingValue = errors.New("missing glucose value")

var offsetLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

type polarDocument struct {
	Timestamp   bson.RawValue `bson:"timestamp"`
	HeartRate   *float64      `bson:"hr"`
	RMSSD       *float64      `bson:"hrv_rmssd"`
	SDNN        *float64      `bson:"hrv_sdnn"`
	NN50        *float64      `bson:"hrv_nn50"`
	PNN50       *float64      `bson:"hrv_pnn50"`
	StressIndex *float64      `bson:"hrv_stress_index"`
	LFHFRatio   *float64      `bson:"hrv_lf_hf_ratio"`
	VLF         *float64      `bson:"hrv_vlf"`
	LF          *float64      `bson:"hrv_lf"`
	HF          *float64      `bson:"hrv_hf"`
}

type glucoseDocument struct {
	Date       bson.RawValue `bson:"date"`
	DateString string        `bson:"dateString"`
	SGV        *float64      `bson:"sgv"`
	Direction  string        `bson:"direction"`
}

// DecodePhysiological разбирает документ polar_data. Метка времени переводится в UTC,
// нечисловые значения (NaN, Inf) считаются отсутствующими.
func DecodePhysiological(raw bson.Raw, loc *time.Location) (models.PhysiologicalSample, error) {
	var doc polarDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return models.PhysiologicalSample{}, fmt.Errorf("decode polar document: %w", err)
	}

	ts, ok := ParseTimestamp(doc.Timestamp, loc)
	if !ok {
		return models.PhysiologicalSample{}, ErrMalformedTimestamp
	}

	return models.PhysiologicalSample{
		Timestamp:   ts,
		HeartRate:   finite(doc.HeartRate),
		RMSSD:       finite(doc.RMSSD),
		SDNN:        finite(doc.SDNN),
		NN50:        finite(doc.NN50),
		PNN50:       finite(doc.PNN50),
		StressIndex: finite(doc.StressIndex),
		LFHFRatio:   finite(doc.LFHFRatio),
		VLF:         finite(doc.VLF),
		LF:          finite(doc.LF),
		HF:          finite(doc.HF),
	}, nil
}

// DecodeGlucose разбирает запись Nightscout entries. Время берется из date,
// при его отсутствии - из dateString.
func DecodeGlucose(raw bson.Raw, loc *time.Location) (models.GlucoseSample, error) {
	var doc glucoseDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return models.GlucoseSample{}, fmt.Errorf("decode glucose document: %w", err)
	}

	ts, ok := ParseTimestamp(doc.Date, loc)
	if !ok {
		ts, ok = ParseTimeString(doc.DateString, time.UTC)
	}
	if !ok {
		return models.GlucoseSample{}, ErrMalformedTimestamp
	}

	value := finite(doc.SGV)
	if value == nil || *value <= 0 {
		return models.GlucoseSample{}, ErrMissingValue
	}

	return models.GlucoseSample{
		Timestamp: ts,
		Value:     *value,
		Direction: models.ParseGlucoseDirection(doc.Direction),
	}, nil
}

// ParseTimestamp нормализует BSON-значение метки в UTC.
// Поддерживаются date, ISO-строки, epoch в секундах или миллисекундах.
func ParseTimestamp(v bson.RawValue, loc *time.Location) (time.Time, bool) {
	switch v.Type {
	case bson.TypeDateTime:
		return time.UnixMilli(v.DateTime()).UTC(), true
	case bson.TypeString:
		return ParseTimeString(v.StringValue(), loc)
	case bson.TypeInt64:
		return fromEpoch(float64(v.Int64()))
	case bson.TypeInt32:
		return fromEpoch(float64(v.Int32()))
	case bson.TypeDouble:
		return fromEpoch(v.Double())
	case bson.TypeTimestamp:
		secs, _ := v.Timestamp()
		return time.Unix(int64(secs), 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

// ParseTimeString разбирает ISO-строку. Строки без смещения трактуются в поясе loc.
func ParseTimeString(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// fromEpoch: значения больше 1e11 считаются миллисекундами
func fromEpoch(v float64) (time.Time, bool) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, false
	}
	if v > 1e11 {
		return time.UnixMilli(int64(v)).UTC(), true
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}
