// Package monitor выполняет цикл обновления: чтение окон из хранилища,
// расчет метрик, кэширование и рассылка снимков.
//
// Ядро расчета (пакет analytics) ничего не знает о сбоях хранилища. Здесь
// при ошибке чтения отдается последний снимок с пометкой Stale, а повторные
// запросы к хранилищу откладываются с экспоненциальной задержкой.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/MCPumpkingz/polar-dashboard/internal/analytics"
	"github.com/MCPumpkingz/polar-dashboard/internal/metrics"
	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

// ErrBackoff - хранилище недавно отказало, запрос не выполнялся
var ErrBackoff = errors.New("store in backoff")

// errCallerGone - вызывающий отменил запрос; это не сбой хранилища
var errCallerGone = errors.New("request canceled by caller")

// SampleStore - источник выборок
type SampleStore interface {
	PhysiologicalSince(ctx context.Context, since time.Time) ([]models.PhysiologicalSample, error)
	GlucoseSince(ctx context.Context, since time.Time) ([]models.GlucoseSample, error)
	Ping(ctx context.Context) error
}

// SnapshotCache - внешний кэш снимков, переживающий рестарт
type SnapshotCache interface {
	SaveSnapshot(ctx context.Context, s models.Snapshot, latest bool) error
	SnapshotFor(ctx context.Context, minutes int) (models.Snapshot, error)
}

// Publisher получает снимок окна по умолчанию после каждого цикла
type Publisher interface {
	Publish(ctx context.Context, s models.Snapshot) error
}

// Options настройки монитора
type Options struct {
	DefaultWindow   int
	RefreshInterval time.Duration
	QueryTimeout    time.Duration
	MaxBackoff      time.Duration
	DisplayLocation *time.Location
	RecentRows      int
}

// Monitor выполняет циклы обновления. Безопасен для конкурентного использования:
// фоновый цикл и HTTP-запросы с другим окном работают одновременно.
type Monitor struct {
	store SampleStore
	cache SnapshotCache
	sinks []Publisher
	log   *zap.Logger
	opts  Options
	now   func() time.Time

	mu          sync.Mutex
	failures    int
	nextAttempt time.Time
	last        map[int]models.Snapshot

	cycles        atomic.Int64
	storeFailures atomic.Int64
	stale         atomic.Int64
	lastState     atomic.Int64
}

// New создает монитор. cache может быть nil: тогда последний снимок хранится только в памяти.
func New(store SampleStore, cache SnapshotCache, log *zap.Logger, opts Options, sinks ...Publisher) *Monitor {
	if opts.DefaultWindow == 0 {
		opts.DefaultWindow = analytics.DefaultWindowMinutes
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 2 * time.Second
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}
	if opts.MaxBackoff < opts.RefreshInterval {
		opts.MaxBackoff = opts.RefreshInterval
	}
	if opts.DisplayLocation == nil {
		opts.DisplayLocation = time.UTC
	}
	if opts.RecentRows <= 0 {
		opts.RecentRows = 10
	}

	m := &Monitor{
		store: store,
		cache: cache,
		sinks: sinks,
		log:   log,
		opts:  opts,
		now:   time.Now,
		last:  make(map[int]models.Snapshot),
	}
	m.lastState.Store(-1)
	return m
}

// DefaultWindow возвращает длину длинного окна по умолчанию в минутах
func (m *Monitor) DefaultWindow() int {
	return m.opts.DefaultWindow
}

// Run выполняет цикл обновления каждые RefreshInterval до отмены ctx
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.RefreshInterval)
	defer ticker.Stop()

	m.log.Info("Refresh loop started",
		zap.Duration("interval", m.opts.RefreshInterval),
		zap.Int("window_minutes", m.opts.DefaultWindow))

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("Refresh loop stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	start := time.Now()
	snap, err := m.Snapshot(ctx, m.opts.DefaultWindow)
	metrics.CycleLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		m.log.Error("Refresh cycle failed", zap.Error(err))
		return
	}

	if snap.StoreAvailable {
		metrics.ObserveSnapshot(snap)
	}

	for _, sink := range m.sinks {
		if err := sink.Publish(ctx, snap); err != nil {
			m.log.Warn("Failed to publish snapshot", zap.Error(err))
		}
	}
}

// Snapshot выполняет один цикл для окна длиной minutes.
// Ошибка возвращается только для недопустимого окна; сбой хранилища дает
// устаревший или пустой снимок со StoreAvailable=false.
func (m *Monitor) Snapshot(ctx context.Context, minutes int) (models.Snapshot, error) {
	spec, err := analytics.NewWindowSpec(minutes)
	if err != nil {
		return models.Snapshot{}, err
	}

	snap, _, _ := m.cycle(ctx, spec)
	return snap, nil
}

// Dashboard выполняет цикл и дополняет снимок рядами для графиков и таблицами
func (m *Monitor) Dashboard(ctx context.Context, minutes int) (models.Dashboard, error) {
	spec, err := analytics.NewWindowSpec(minutes)
	if err != nil {
		return models.Dashboard{}, err
	}

	snap, w, ok := m.cycle(ctx, spec)
	d := models.Dashboard{
		Snapshot:        snap,
		DisplayTimeZone: m.opts.DisplayLocation.String(),
	}
	if !ok {
		return d, nil
	}

	d.HeartRate = analytics.HeartRateSeries(w.Long)
	d.RMSSDMillis = analytics.RMSSDSeries(w.Long)
	d.SDNNMillis = analytics.SDNNSeries(w.Long)
	d.Glucose = analytics.GlucoseSeries(w.Glucose)
	if axis, ok := analytics.GlucoseAxis(w.Glucose); ok {
		d.GlucoseAxis = &axis
	}
	d.StateTimeline = analytics.StateTimeline(w.Long, snap.Baseline.RMSSD)
	d.RecentPolar = m.localizePolar(analytics.Tail(w.Long, m.opts.RecentRows))
	d.RecentGlucose = m.localizeGlucose(analytics.Tail(w.Glucose, m.opts.RecentRows))
	return d, nil
}

// Stats возвращает счетчики циклов
func (m *Monitor) Stats() models.StatsResponse {
	s := models.StatsResponse{
		Cycles:         m.cycles.Load(),
		StoreFailures:  m.storeFailures.Load(),
		StaleSnapshots: m.stale.Load(),
		DefaultWindow:  m.opts.DefaultWindow,
	}
	if st := m.lastState.Load(); st >= 0 {
		s.LastState = models.State(st).String()
	}
	return s
}

// Ping проверяет доступность хранилища
func (m *Monitor) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.QueryTimeout)
	defer cancel()
	return m.store.Ping(ctx)
}

// cycle возвращает снимок и окна. ok=false означает, что хранилище недоступно
// и окна пусты.
func (m *Monitor) cycle(ctx context.Context, spec analytics.WindowSpec) (models.Snapshot, analytics.Windows, bool) {
	m.cycles.Add(1)
	now := m.now()

	phys, glucose, err := m.fetch(ctx, spec, now)
	if errors.Is(err, errCallerGone) {
		metrics.CyclesTotal.WithLabelValues("canceled").Inc()
		return m.fallback(ctx, spec, now, err), analytics.Windows{}, false
	}
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("store_unavailable").Inc()
		return m.fallback(ctx, spec, now, err), analytics.Windows{}, false
	}

	w := spec.Split(phys, glucose, now)
	snap := analytics.NewSnapshot(analytics.Compute(w, spec, now))
	m.remember(ctx, snap)

	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	return snap, w, true
}

// fetch читает оба потока за FetchSpan. Сбой потока глюкозы не прерывает цикл:
// поля глюкозы останутся пустыми.
func (m *Monitor) fetch(ctx context.Context, spec analytics.WindowSpec, now time.Time) ([]models.PhysiologicalSample, []models.GlucoseSample, error) {
	if wait := m.backoffRemaining(now); wait > 0 {
		return nil, nil, fmt.Errorf("%w: retry in %s", ErrBackoff, wait)
	}

	qctx, cancel := context.WithTimeout(ctx, m.opts.QueryTimeout)
	defer cancel()

	since := now.Add(-spec.FetchSpan())

	phys, err := m.store.PhysiologicalSince(qctx, since)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("%w: %v", errCallerGone, err)
		}
		metrics.StoreFailures.WithLabelValues("polar").Inc()
		m.recordFailure(now)
		return nil, nil, err
	}

	glucose, err := m.store.GlucoseSince(qctx, since)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("%w: %v", errCallerGone, err)
		}
		metrics.StoreFailures.WithLabelValues("glucose").Inc()
		m.log.Warn("Glucose query failed, continuing without glucose", zap.Error(err))
		glucose = nil
	}

	m.recordSuccess()
	return phys, glucose, nil
}

// fallback возвращает последний известный снимок окна с пометкой Stale
// или пустой снимок, если его нет
func (m *Monitor) fallback(ctx context.Context, spec analytics.WindowSpec, now time.Time, cause error) models.Snapshot {
	switch {
	case errors.Is(cause, ErrBackoff):
		m.log.Debug("Store query skipped", zap.Error(cause))
	case errors.Is(cause, errCallerGone):
		m.log.Debug("Store query abandoned", zap.Error(cause))
	default:
		m.storeFailures.Add(1)
		m.log.Error("Store query failed", zap.Error(cause), zap.Int("window_minutes", spec.Minutes()))
	}

	if snap, ok := m.cached(ctx, spec.Minutes()); ok {
		snap.Stale = true
		snap.StoreAvailable = false
		if !errors.Is(cause, errCallerGone) {
			m.stale.Add(1)
			metrics.StaleSnapshots.Inc()
		}
		return snap
	}

	snap := analytics.NewSnapshot(analytics.Compute(analytics.Windows{}, spec, now))
	snap.StoreAvailable = false
	return snap
}

func (m *Monitor) remember(ctx context.Context, snap models.Snapshot) {
	m.mu.Lock()
	m.last[snap.WindowMinutes] = snap
	m.mu.Unlock()
	m.lastState.Store(int64(snap.State))

	if m.cache == nil {
		return
	}
	latest := snap.WindowMinutes == m.opts.DefaultWindow
	if err := m.cache.SaveSnapshot(ctx, snap, latest); err != nil {
		m.log.Warn("Failed to cache snapshot", zap.Error(err))
	}
}

func (m *Monitor) cached(ctx context.Context, minutes int) (models.Snapshot, bool) {
	m.mu.Lock()
	snap, ok := m.last[minutes]
	m.mu.Unlock()
	if ok {
		return snap, true
	}

	if m.cache == nil {
		return models.Snapshot{}, false
	}
	snap, err := m.cache.SnapshotFor(ctx, minutes)
	if err != nil {
		return models.Snapshot{}, false
	}
	return snap, true
}

// backoffRemaining возвращает, сколько еще ждать до следующего запроса к хранилищу
func (m *Monitor) backoffRemaining(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == 0 || !now.Before(m.nextAttempt) {
		return 0
	}
	return m.nextAttempt.Sub(now)
}

// recordFailure: задержка interval*2^(n-1), не больше MaxBackoff
func (m *Monitor) recordFailure(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
	m.nextAttempt = now.Add(backoff(m.failures, m.opts.RefreshInterval, m.opts.MaxBackoff))
}

func (m *Monitor) recordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.log.Info("Store recovered", zap.Int("failed_attempts", m.failures))
	}
	m.failures = 0
	m.nextAttempt = time.Time{}
}

func backoff(failures int, interval, limit time.Duration) time.Duration {
	d := interval
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

func (m *Monitor) localizePolar(samples []models.PhysiologicalSample) []models.PhysiologicalSample {
	for i := range samples {
		samples[i].Timestamp = samples[i].Timestamp.In(m.opts.DisplayLocation)
	}
	return samples
}

func (m *Monitor) localizeGlucose(samples []models.GlucoseSample) []models.GlucoseSample {
	for i := range samples {
		samples[i].Timestamp = samples[i].Timestamp.In(m.opts.DisplayLocation)
	}
	return samples
}
