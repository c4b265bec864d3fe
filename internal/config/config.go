package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ストアの実装
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config はアプリケーション設定を表す
type Config struct {
	AppEnv      string
	StoreDriver string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	AMQP        AMQPConfig
	Hold        HoldConfig
	Sweeper     SweeperConfig
	Idempotency IdempotencyConfig
	Cache       CacheConfig
	Admin       BasicAuthConfig
	Metrics     BasicAuthConfig
	RateLimit   RateLimitConfig
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MigrationsPath string
}

// RedisConfig はRedis設定（Host が空なら無効）
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// AMQPConfig はRabbitMQ設定（URL が空なら無効）
type AMQPConfig struct {
	URL   string
	Queue string
}

// HoldConfig はホールドのポリシー
type HoldConfig struct {
	TTL            time.Duration
	CheckoutTTL    time.Duration
	MaxSeats       int
	ExtendOnRehold bool
}

// SweeperConfig は期限切れホールド回収の設定
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// IdempotencyConfig は冪等性レコードの保持期間
type IdempotencyConfig struct {
	Retention time.Duration
}

// CacheConfig は座席スナップショットキャッシュの設定
type CacheConfig struct {
	SnapshotTTL time.Duration
}

// RouteLimit は1ルートのレート制限（PerMinute が0以下なら無制限）
type RouteLimit struct {
	PerMinute int
	Burst     int
}

// RateLimitConfig は座席APIのルート別レート制限
// セッション単位（ヘッダーがなければIP単位）で数える
type RateLimitConfig struct {
	Query   RouteLimit
	Hold    RouteLimit
	Release RouteLimit
	Confirm RouteLimit
}

// BasicAuthConfig はBasic認証の資格情報（User が空なら認証なし）
type BasicAuthConfig struct {
	User     string
	Password string
}

// Enabled は資格情報が設定されているかを返す
func (c BasicAuthConfig) Enabled() bool {
	return c.User != "" && c.Password != ""
}

// Load は環境変数から設定を読み込む
// カレントディレクトリに .env があれば先に読み込む（既存の環境変数は上書きしない）
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "seating"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:   getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		AMQP: AMQPConfig{
			URL:   getEnv("AMQP_URL", ""),
			Queue: getEnv("AMQP_QUEUE", "seats.sold"),
		},
		Hold: HoldConfig{
			TTL:            getDurationEnv("HOLD_TTL", 10*time.Minute),
			CheckoutTTL:    getDurationEnv("HOLD_CHECKOUT_TTL", 15*time.Minute),
			MaxSeats:       getIntEnv("HOLD_MAX_SEATS", 10),
			ExtendOnRehold: getBoolEnv("HOLD_EXTEND_ON_REHOLD", false),
		},
		Sweeper: SweeperConfig{
			Interval:  getDurationEnv("SWEEPER_INTERVAL", 5*time.Second),
			BatchSize: getIntEnv("SWEEPER_BATCH_SIZE", 500),
			LockTTL:   getDurationEnv("SWEEPER_LOCK_TTL", 30*time.Second),
		},
		Idempotency: IdempotencyConfig{
			Retention: getDurationEnv("IDEMPOTENCY_RETENTION", 24*time.Hour),
		},
		Cache: CacheConfig{
			SnapshotTTL: getDurationEnv("SEAT_SNAPSHOT_TTL", 2*time.Second),
		},
		Admin: BasicAuthConfig{
			User:     getEnv("ADMIN_USER", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
		Metrics: BasicAuthConfig{
			User:     getEnv("METRICS_USER", ""),
			Password: getEnv("METRICS_PASSWORD", ""),
		},
		RateLimit: RateLimitConfig{
			Query:   routeLimitEnv("RATE_LIMIT_QUERY", 120, 20),
			Hold:    routeLimitEnv("RATE_LIMIT_HOLD", 30, 10),
			Release: routeLimitEnv("RATE_LIMIT_RELEASE", 30, 10),
			Confirm: routeLimitEnv("RATE_LIMIT_CONFIRM", 10, 5),
		},
	}

	// DATABASE_URL / REDIS_URL が設定されていれば個別設定より優先する
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		applyDatabaseURL(&cfg.Database, raw)
	}
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		applyRedisURL(&cfg.Redis, raw)
	}
	return cfg
}

func applyDatabaseURL(c *DatabaseConfig, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}
	c.Host = u.Hostname()
	if p := u.Port(); p != "" {
		c.Port = p
	}
	if u.User != nil {
		c.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	c.DBName = strings.TrimPrefix(u.Path, "/")
	c.SSLMode = "require"
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.SSLMode = mode
	}
}

func applyRedisURL(c *RedisConfig, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}
	c.Host = u.Hostname()
	if p := u.Port(); p != "" {
		c.Port = p
	}
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// Enabled はRedisが設定されているかを返す
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// routeLimitEnv は <prefix>_PER_MIN と <prefix>_BURST を読む
func routeLimitEnv(prefix string, perMinute, burst int) RouteLimit {
	return RouteLimit{
		PerMinute: getIntEnv(prefix+"_PER_MIN", perMinute),
		Burst:     getIntEnv(prefix+"_BURST", burst),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
