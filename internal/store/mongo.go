// Package store читает выборки датчика и CGM из MongoDB (только чтение)
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/MCPumpkingz/polar-dashboard/internal/config"
	"github.com/MCPumpkingz/polar-dashboard/internal/metrics"
	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

// Названия потоков для логов и метрик
const (
	StreamPolar   = "polar"
	StreamGlucose = "glucose"
)

// MongoStore читает два независимых потока выборок.
// Соединение переиспользуется между циклами обновления.
type MongoStore struct {
	client  *mongo.Client
	polar   *mongo.Collection
	glucose *mongo.Collection
	loc     *time.Location
	log     *zap.Logger
}

// Connect подключается к MongoDB и проверяет соединение
func Connect(uri string, timeout time.Duration) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetAppName("polar-dashboard"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// NewMongoStore создает хранилище поверх готового клиента
func NewMongoStore(client *mongo.Client, cfg config.MongoConfig, log *zap.Logger) (*MongoStore, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid store timezone %q: %w", cfg.TimeZone, err)
	}

	return &MongoStore{
		client:  client,
		polar:   client.Database(cfg.PolarDatabase).Collection(cfg.PolarCollection),
		glucose: client.Database(cfg.GlucoseDatabase).Collection(cfg.GlucoseCollection),
		loc:     loc,
		log:     log,
	}, nil
}

// PhysiologicalSince возвращает записи датчика с timestamp >= since по возрастанию времени
func (m *MongoStore) PhysiologicalSince(ctx context.Context, since time.Time) ([]models.PhysiologicalSample, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})

	cursor, err := m.polar.Find(ctx, polarFilter(since, m.loc), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query polar samples: %w", err)
	}
	defer cursor.Close(ctx)

	samples := make([]models.PhysiologicalSample, 0, 256)
	excluded := 0
	for cursor.Next(ctx) {
		s, err := DecodePhysiological(cursor.Current, m.loc)
		if err != nil {
			excluded++
			m.log.Debug("Skipping polar document", zap.Error(err))
			continue
		}
		samples = append(samples, s)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read polar samples: %w", err)
	}

	m.reportExcluded(StreamPolar, excluded)
	return samples, nil
}

// GlucoseSince возвращает показания CGM с временем >= since по возрастанию времени
func (m *MongoStore) GlucoseSince(ctx context.Context, since time.Time) ([]models.GlucoseSample, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})

	cursor, err := m.glucose.Find(ctx, glucoseFilter(since), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query glucose entries: %w", err)
	}
	defer cursor.Close(ctx)

	samples := make([]models.GlucoseSample, 0, 32)
	excluded := 0
	for cursor.Next(ctx) {
		s, err := DecodeGlucose(cursor.Current, m.loc)
		if err != nil {
			excluded++
			m.log.Debug("Skipping glucose document", zap.Error(err))
			continue
		}
		samples = append(samples, s)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read glucose entries: %w", err)
	}

	m.reportExcluded(StreamGlucose, excluded)
	return samples, nil
}

// Ping проверяет соединение с MongoDB
func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close закрывает соединение
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoStore) reportExcluded(stream string, n int) {
	if n == 0 {
		return
	}
	metrics.ExcludedDocuments.WithLabelValues(stream).Add(float64(n))
	m.log.Warn("Excluded malformed documents", zap.String("stream", stream), zap.Int("count", n))
}

// polarFilter сравнивает timestamp с границей в каждом представлении, которое встречается
// в коллекции: BSON date, epoch millis и ISO-строка в часовом поясе хранилища.
// MongoDB сравнивает значения только внутри одного типа, поэтому условия объединены через $or.
func polarFilter(since time.Time, loc *time.Location) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"timestamp": bson.M{"$gte": since.UTC()}},
		bson.M{"timestamp": bson.M{"$gte": since.UnixMilli()}},
		bson.M{"timestamp": bson.M{"$gte": stringBound(since, loc)}},
	}}
}

// stringBoundHorizon - самое длинное окно выборки
const stringBoundHorizon = time.Hour

// stringBound переводит since в локальное время пояса хранилища для лексического
// сравнения. После перевода часов назад записи позже since имеют меньшее локальное
// время, поэтому берется наименьшее смещение пояса на отрезке выборки. Лишние
// записи отбрасывает разбиение на окна.
func stringBound(since time.Time, loc *time.Location) string {
	_, before := since.In(loc).Zone()
	_, after := since.Add(stringBoundHorizon).In(loc).Zone()
	offset := min(before, after)
	return since.UTC().Add(time.Duration(offset) * time.Second).Format(isoBoundLayout)
}

// glucoseFilter использует поле date (epoch millis, UTC); dateString - запасной вариант
// для записей без date, Nightscout пишет его в UTC.
func glucoseFilter(since time.Time) bson.M {
	return bson.M{
		"sgv": bson.M{"$exists": true},
		"$or": bson.A{
			bson.M{"date": bson.M{"$gte": since.UnixMilli()}},
			bson.M{"date": bson.M{"$exists": false}, "dateString": bson.M{"$gte": since.UTC().Format(isoBoundLayout)}},
		},
	}
}
