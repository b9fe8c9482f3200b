package analytics

import (
	"math"

	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

// Пороги отношения RMSSD(60 с) / RMSSD(базовая линия). Интервалы полуоткрытые:
// граница относится к интервалу, который с нее начинается.
const (
	// MildStressRatio ниже этого значения - сильный стресс
	MildStressRatio = 0.7
	// BalancedRatio ниже этого значения - умеренный стресс
	BalancedRatio = 1.0
	// RecoveryRatio от этого значения и выше - восстановление / поток
	RecoveryRatio = 1.3
)

var stateProfiles = [...]models.StateProfile{
	models.StateInsufficientData: {
		State:       models.StateInsufficientData,
		Name:        "Insufficient data",
		Description: "Warte auf ausreichende HRV-Daten zur Analyse …",
		Color:       "#95a5a6",
	},
	models.StateRecovery: {
		State:          models.StateRecovery,
		Name:           "Recovery / Flow",
		Description:    "Hohe parasympathische Aktivität – du bist im **Erholungsmodus**.",
		Recommendation: "🧘 Meditation oder ruhige Atmung fördern Flow & Regeneration.",
		Color:          "#2ecc71",
	},
	models.StateBalanced: {
		State:          models.StateBalanced,
		Name:           "Balanced",
		Description:    "Dein Nervensystem ist in **Balance**.",
		Recommendation: "☯️ Box Breathing (4-4-4-4) zur Stabilisierung.",
		Color:          "#f1c40f",
	},
	models.StateMildStress: {
		State:          models.StateMildStress,
		Name:           "Mild Stress",
		Description:    "Leichte sympathische Aktivierung – du bist **fokussiert**, aber angespannt.",
		Recommendation: "🫁 Längeres Ausatmen (4 s ein / 8 s aus).",
		Color:          "#f39c12",
	},
	models.StateHighStress: {
		State:          models.StateHighStress,
		Name:           "High Stress",
		Description:    "Stark sympathische Aktivierung – **Fight or Flight**.",
		Recommendation: "🌬️ 4-7-8-Atmung oder 6 Atemzüge/min zur Aktivierung des Vagusnervs.",
		Color:          "#e74c3c",
	},
}

// ClassifyRatio отображает отношение в одно из четырех состояний.
// Для любого r >= 0 результат определен; NaN дает "недостаточно данных".
func ClassifyRatio(r float64) models.State {
	switch {
	case math.IsNaN(r):
		return models.StateInsufficientData
	case r < MildStressRatio:
		return models.StateHighStress
	case r < BalancedRatio:
		return models.StateMildStress
	case r < RecoveryRatio:
		return models.StateBalanced
	default:
		return models.StateRecovery
	}
}

// Ratio возвращает short/baseline или nil, если отношение не определено
func Ratio(short, baseline *float64) *float64 {
	if short == nil || baseline == nil || *baseline <= 0 || math.IsNaN(*baseline) || math.IsNaN(*short) {
		return nil
	}
	r := *short / *baseline
	return &r
}

// Classify определяет состояние по среднему RMSSD короткого окна и базовой линии.
// Память между вызовами отсутствует, гистерезиса нет.
func Classify(short, baseline *float64) (models.State, *float64) {
	r := Ratio(short, baseline)
	if r == nil {
		return models.StateInsufficientData, nil
	}
	return ClassifyRatio(*r), r
}

// Profile возвращает данные отображения состояния
func Profile(s models.State) models.StateProfile {
	if s < 0 || int(s) >= len(stateProfiles) {
		return stateProfiles[models.StateInsufficientData]
	}
	return stateProfiles[s]
}

// Profiles возвращает копию таблицы состояний
func Profiles() []models.StateProfile {
	out := make([]models.StateProfile, len(stateProfiles))
	copy(out, stateProfiles[:])
	return out
}
