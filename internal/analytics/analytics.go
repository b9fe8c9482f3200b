// Package analytics реализует расчет физиологических метрик по скользящим окнам.
// Включает выборку окон по времени, средние HR/HRV, дельты и классификатор состояния ВНС.
// Пакет не хранит состояния между вызовами: все параметры передаются явно.
package analytics

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Длительности окон. Значения эмпирические и могут настраиваться под предметную область.
const (
	// ShortWindow короткое окно (последние 60 секунд)
	ShortWindow = 60 * time.Second
	// MediumWindow среднее окно
	MediumWindow = 5 * time.Minute
	// BaselineWindow окно базовой линии RMSSD для классификатора
	BaselineWindow = 10 * time.Minute

	// MinWindowMinutes минимальная длина длинного окна
	MinWindowMinutes = 5
	// MaxWindowMinutes максимальная длина длинного окна
	MaxWindowMinutes = 60
	// DefaultWindowMinutes длина длинного окна по умолчанию
	DefaultWindowMinutes = 15
)

// ErrWindowOutOfRange возвращается при длине окна вне диапазона 5..60 минут
var ErrWindowOutOfRange = errors.New("window minutes out of range")

// WindowSpec задает длинное окно в минутах; остальные окна фиксированы
type WindowSpec struct {
	minutes int
}

// NewWindowSpec проверяет длину окна и создает спецификацию
func NewWindowSpec(minutes int) (WindowSpec, error) {
	if minutes < MinWindowMinutes || minutes > MaxWindowMinutes {
		return WindowSpec{}, fmt.Errorf("%w: %d not in [%d, %d]",
			ErrWindowOutOfRange, minutes, MinWindowMinutes, MaxWindowMinutes)
	}
	return WindowSpec{minutes: minutes}, nil
}

// DefaultWindowSpec возвращает спецификацию с окном по умолчанию
func DefaultWindowSpec() WindowSpec {
	return WindowSpec{minutes: DefaultWindowMinutes}
}

// Minutes возвращает длину длинного окна в минутах
func (w WindowSpec) Minutes() int {
	return w.minutes
}

// Long возвращает длительность длинного окна
func (w WindowSpec) Long() time.Duration {
	return time.Duration(w.minutes) * time.Minute
}

// FetchSpan возвращает глубину запроса к хранилищу: самое широкое из окон,
// чтобы базовая линия не обрезалась при длинном окне короче 10 минут.
func (w WindowSpec) FetchSpan() time.Duration {
	if long := w.Long(); long > BaselineWindow {
		return long
	}
	return BaselineWindow
}

// accumulator накапливает сумму присутствующих значений одного признака.
// Отсутствующие (nil) и нечисловые значения пропускаются, а не считаются нулем.
type accumulator struct {
	count int
	sum   float64
}

// add добавляет значение, если оно присутствует
func (a *accumulator) add(v *float64) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return
	}
	a.count++
	a.sum += *v
}

// mean возвращает среднее или nil, если значений не было
func (a accumulator) mean() *float64 {
	if a.count == 0 {
		return nil
	}
	m := a.sum / float64(a.count)
	return &m
}
