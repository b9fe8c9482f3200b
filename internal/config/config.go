// Package config загружает конфигурацию сервиса из файла и переменных окружения
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/MCPumpkingz/polar-dashboard/internal/analytics"
)

// EnvPrefix префикс переменных окружения (POLAR_MONGO_URI и т.д.)
const EnvPrefix = "POLAR"

// Config содержит конфигурацию сервиса
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Redis   RedisConfig   `mapstructure:"redis"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig настройки HTTP сервера
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MongoConfig настройки хранилища выборок
type MongoConfig struct {
	URI               string `mapstructure:"uri"`
	PolarDatabase     string `mapstructure:"polar_database"`
	PolarCollection   string `mapstructure:"polar_collection"`
	GlucoseDatabase   string `mapstructure:"glucose_database"`
	GlucoseCollection string `mapstructure:"glucose_collection"`
	// TimeZone - пояс строковых меток коллекции polar. Граница запроса для строк
	// задается в нем же, поэтому строки в UTC ("Z") не поддерживаются.
	TimeZone       string        `mapstructure:"timezone"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig настройки кэша снимков
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
	Retries     int           `mapstructure:"retries"`
}

// NATSConfig настройки публикации снимков; пустой URL отключает публикацию
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// MonitorConfig настройки цикла обновления
type MonitorConfig struct {
	RefreshInterval      time.Duration `mapstructure:"refresh_interval"`
	QueryTimeout         time.Duration `mapstructure:"query_timeout"`
	MaxBackoff           time.Duration `mapstructure:"max_backoff"`
	DefaultWindowMinutes int           `mapstructure:"default_window_minutes"`
	DisplayTimeZone      string        `mapstructure:"display_timezone"`
	RecentRows           int           `mapstructure:"recent_rows"`
}

// LoggingConfig настройки логгера
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// setDefaults задает значения по умолчанию
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.polar_database", "nightscout-db")
	v.SetDefault("mongo.polar_collection", "polar_data")
	v.SetDefault("mongo.glucose_database", "nightscout")
	v.SetDefault("mongo.glucose_collection", "entries")
	v.SetDefault("mongo.timezone", "Europe/Zurich")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.snapshot_ttl", 5*time.Minute)
	v.SetDefault("redis.retries", 5)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "biofeedback.snapshot")

	v.SetDefault("monitor.refresh_interval", 2*time.Second)
	v.SetDefault("monitor.query_timeout", 5*time.Second)
	v.SetDefault("monitor.max_backoff", 30*time.Second)
	v.SetDefault("monitor.default_window_minutes", analytics.DefaultWindowMinutes)
	v.SetDefault("monitor.display_timezone", "Europe/Zurich")
	v.SetDefault("monitor.recent_rows", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 7)
	v.SetDefault("logging.compress", true)
}

// Load читает конфигурацию: значения по умолчанию, затем файл (если указан), затем окружение.
// Отсутствующий файл не является ошибкой.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// без явного пути отсутствие файла допустимо: работают defaults и окружение
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения, от которых зависит запуск
func (c *Config) Validate() error {
	if _, err := analytics.NewWindowSpec(c.Monitor.DefaultWindowMinutes); err != nil {
		return fmt.Errorf("monitor.default_window_minutes: %w", err)
	}
	if c.Monitor.RefreshInterval <= 0 {
		return errors.New("monitor.refresh_interval must be positive")
	}
	if c.Monitor.QueryTimeout <= 0 {
		return errors.New("monitor.query_timeout must be positive")
	}
	if c.Mongo.URI == "" {
		return errors.New("mongo.uri is required")
	}
	if _, err := time.LoadLocation(c.Mongo.TimeZone); err != nil {
		return fmt.Errorf("mongo.timezone: %w", err)
	}
	if _, err := time.LoadLocation(c.Monitor.DisplayTimeZone); err != nil {
		return fmt.Errorf("monitor.display_timezone: %w", err)
	}
	return nil
}
