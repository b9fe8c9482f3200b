// Package main запускает сервис биообратной связи Polar + CGM.
// Сервис реализует:
// - цикл обновления: окна 60 с / 5 мин / 10 мин / N мин по данным из MongoDB
// - средние HR и HRV, дельты и классификацию состояния ВНС
// - кэширование снимков в Redis и отдачу устаревшего снимка при сбое хранилища
// - рассылку снимков по websocket и публикацию в NATS
// - экспорт метрик в Prometheus
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MCPumpkingz/polar-dashboard/internal/cache"
	"github.com/MCPumpkingz/polar-dashboard/internal/config"
	"github.com/MCPumpkingz/polar-dashboard/internal/handlers"
	"github.com/MCPumpkingz/polar-dashboard/internal/hub"
	"github.com/MCPumpkingz/polar-dashboard/internal/logging"
	"github.com/MCPumpkingz/polar-dashboard/internal/metrics"
	"github.com/MCPumpkingz/polar-dashboard/internal/monitor"
	"github.com/MCPumpkingz/polar-dashboard/internal/store"
	"github.com/MCPumpkingz/polar-dashboard/internal/stream"
)

func main() {
	configPath := flag.String("config", "", "path to config file (yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Логгер еще не создан
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting polar-dashboard",
		zap.String("go_version", runtime.Version()),
		zap.Int("num_cpu", runtime.NumCPU()),
		zap.Int("default_window_minutes", cfg.Monitor.DefaultWindowMinutes))

	// Хранилище выборок обязательно
	client, err := store.Connect(cfg.Mongo.URI, cfg.Mongo.ConnectTimeout)
	if err != nil {
		log.Fatal("MongoDB unavailable", zap.Error(err))
	}
	sampleStore, err := store.NewMongoStore(client, cfg.Mongo, log.Named("store"))
	if err != nil {
		log.Fatal("Invalid store configuration", zap.Error(err))
	}
	defer sampleStore.Close()
	log.Info("Connected to MongoDB",
		zap.String("polar", cfg.Mongo.PolarDatabase+"."+cfg.Mongo.PolarCollection),
		zap.String("glucose", cfg.Mongo.GlucoseDatabase+"."+cfg.Mongo.GlucoseCollection))

	redisCache := connectRedis(cfg.Redis, log)
	if redisCache != nil {
		defer redisCache.Close()
	}

	liveHub := hub.New(log.Named("hub"))
	defer liveHub.Close()

	sinks, nc := setupPublishing(cfg.NATS, liveHub, log)
	if nc != nil {
		defer nc.Drain()
	}

	displayLoc, err := time.LoadLocation(cfg.Monitor.DisplayTimeZone)
	if err != nil {
		log.Fatal("Invalid display timezone", zap.Error(err))
	}

	// nil *RedisCache нельзя передавать как интерфейс
	var snapshotCache monitor.SnapshotCache
	var latestReader handlers.LatestReader
	if redisCache != nil {
		snapshotCache = redisCache
		latestReader = redisCache
	}

	mon := monitor.New(sampleStore, snapshotCache, log.Named("monitor"), monitor.Options{
		DefaultWindow:   cfg.Monitor.DefaultWindowMinutes,
		RefreshInterval: cfg.Monitor.RefreshInterval,
		QueryTimeout:    cfg.Monitor.QueryTimeout,
		MaxBackoff:      cfg.Monitor.MaxBackoff,
		DisplayLocation: displayLoc,
		RecentRows:      cfg.Monitor.RecentRows,
	}, sinks...)

	handler := handlers.NewHandler(mon, latestReader, liveHub, log.Named("http"))

	// Настраиваем маршруты
	router := mux.NewRouter()
	handler.Register(router)
	router.HandleFunc("/ws", liveHub.ServeWS).Methods(http.MethodGet)

	// Prometheus метрики
	router.Handle("/prometheus", promhttp.Handler())

	// pprof для профилирования
	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	router.Use(logging.RequestLogger(log.Named("http")))
	router.Use(metricsMiddleware)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(loopDone)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	<-stop
	log.Info("Shutting down server...")

	stopLoop()
	<-loopDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	log.Info("Server stopped")
}

// connectRedis подключается к Redis с повторами; nil - работа без кэша
func connectRedis(cfg config.RedisConfig, log *zap.Logger) *cache.RedisCache {
	if cfg.Addr == "" {
		log.Info("Redis disabled")
		return nil
	}

	var lastErr error
	for i := 0; i < cfg.Retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		c, err := cache.NewRedisCache(ctx, cfg)
		cancel()
		if err == nil {
			log.Info("Connected to Redis", zap.String("addr", cfg.Addr))
			return c
		}
		lastErr = err
		log.Warn("Redis connection attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		if i < cfg.Retries-1 {
			time.Sleep(time.Duration(i+1) * time.Second)
		}
	}

	log.Warn("Running without snapshot cache", zap.Error(lastErr))
	return nil
}

// setupPublishing выбирает получателей снимков. С NATS снимки идут в subject,
// а hub получает их обратно через подписку, поэтому все экземпляры сервиса
// показывают клиентам один поток. Без NATS hub получает снимки напрямую.
func setupPublishing(cfg config.NATSConfig, liveHub *hub.Hub, log *zap.Logger) ([]monitor.Publisher, *nats.Conn) {
	if cfg.URL == "" {
		return []monitor.Publisher{liveHub}, nil
	}

	nc, err := stream.Connect(cfg.URL)
	if err != nil {
		log.Warn("NATS unavailable, broadcasting locally", zap.String("url", cfg.URL), zap.Error(err))
		return []monitor.Publisher{liveHub}, nil
	}

	if _, err := stream.Subscribe(nc, cfg.Subject, liveHub.Broadcast); err != nil {
		log.Warn("NATS subscribe failed, broadcasting locally", zap.Error(err))
		nc.Close()
		return []monitor.Publisher{liveHub}, nil
	}

	log.Info("Publishing snapshots to NATS", zap.String("url", cfg.URL), zap.String("subject", cfg.Subject))
	return []monitor.Publisher{stream.NewPublisher(nc, cfg.Subject)}, nc
}

// untimedRoutes - маршруты без собственного таймера в обработчике
var untimedRoutes = map[string]bool{
	"/health":       true,
	"/ws":           true,
	"/prometheus":   true,
	"/debug/pprof/": true,
}

// metricsMiddleware замеряет длительность запросов к untimedRoutes
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := mux.CurrentRoute(r)
		if current == nil {
			next.ServeHTTP(w, r)
			return
		}
		tpl, err := current.GetPathTemplate()
		if err != nil || !untimedRoutes[tpl] {
			next.ServeHTTP(w, r)
			return
		}

		timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(tpl, r.Method))
		defer timer.ObserveDuration()
		next.ServeHTTP(w, r)
	})
}
