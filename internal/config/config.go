package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Бэкенды присутствия и шины
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	AppEnv  string `mapstructure:"APP_ENV"`
	AppPort string `mapstructure:"APP_PORT"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBScheme   string `mapstructure:"DB_SCHEME"`

	// --- Redis ---
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// --- S3 ---
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3Region    string `mapstructure:"S3_REGION"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`
	S3UseSSL    bool   `mapstructure:"S3_USE_SSL"`
	S3PathStyle bool   `mapstructure:"S3_PATH_STYLE"`

	// --- Auth ---
	AuthJWTSecret string        `mapstructure:"AUTH_JWT_SECRET"`
	AuthIssuer    string        `mapstructure:"AUTH_ISSUER"`
	AuthTokenTTL  time.Duration `mapstructure:"AUTH_TOKEN_TTL"`

	// --- Real-time ---
	PresenceBackend   string        `mapstructure:"PRESENCE_BACKEND"`
	PresenceTTL       time.Duration `mapstructure:"PRESENCE_TTL"`
	BusBackend        string        `mapstructure:"BUS_BACKEND"`
	BusQueueSize      int           `mapstructure:"BUS_QUEUE_SIZE"`
	BusPublishTimeout time.Duration `mapstructure:"BUS_PUBLISH_TIMEOUT"`

	// --- WebSocket ---
	WSMaxMessageBytes int64         `mapstructure:"WS_MAX_MESSAGE_BYTES"`
	WSWriteTimeout    time.Duration `mapstructure:"WS_WRITE_TIMEOUT"`
	WSPongTimeout     time.Duration `mapstructure:"WS_PONG_TIMEOUT"`
	WSRateLimit       float64       `mapstructure:"WS_RATE_LIMIT"`
	WSRateBurst       int           `mapstructure:"WS_RATE_BURST"`
	WSAllowedOrigins  []string      `mapstructure:"WS_ALLOWED_ORIGINS"`
}

var defaults = map[string]any{
	"APP_ENV":              "dev",
	"APP_PORT":             "8080",
	"DB_PORT":              5432,
	"DB_SCHEME":            "public",
	"REDIS_ADDR":           "localhost:6379",
	"REDIS_DB":             0,
	"S3_PATH_STYLE":        true,
	"AUTH_ISSUER":          "collab-notes",
	"AUTH_TOKEN_TTL":       "24h",
	"PRESENCE_BACKEND":     BackendRedis,
	"PRESENCE_TTL":         "1h",
	"BUS_BACKEND":          BackendRedis,
	"BUS_QUEUE_SIZE":       256,
	"BUS_PUBLISH_TIMEOUT":  "2s",
	"WS_MAX_MESSAGE_BYTES": 64 << 10,
	"WS_WRITE_TIMEOUT":     "10s",
	"WS_PONG_TIMEOUT":      "60s",
	"WS_RATE_LIMIT":        50.0,
	"WS_RATE_BURST":        100,
	"WS_ALLOWED_ORIGINS":   "",
}

var keys = []string{
	"APP_ENV", "APP_PORT",
	"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SCHEME",
	"REDIS_ADDR", "REDIS_DB", "REDIS_PASSWORD",
	"S3_ENDPOINT", "S3_REGION", "S3_BUCKET", "S3_ACCESS_KEY", "S3_SECRET_KEY",
	"S3_USE_SSL", "S3_PATH_STYLE",
	"AUTH_JWT_SECRET", "AUTH_ISSUER", "AUTH_TOKEN_TTL",
	"PRESENCE_BACKEND", "PRESENCE_TTL",
	"BUS_BACKEND", "BUS_QUEUE_SIZE", "BUS_PUBLISH_TIMEOUT",
	"WS_MAX_MESSAGE_BYTES", "WS_WRITE_TIMEOUT", "WS_PONG_TIMEOUT",
	"WS_RATE_LIMIT", "WS_RATE_BURST", "WS_ALLOWED_ORIGINS",
}

// String реализует интерфейс Stringer
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  AppEnv: %s\n", c.AppEnv))
	sb.WriteString(fmt.Sprintf("  AppPort: %s\n", c.AppPort))
	sb.WriteString(fmt.Sprintf("  DBHost: %s\n", c.DBHost))
	sb.WriteString(fmt.Sprintf("  DBPort: %d\n", c.DBPort))
	sb.WriteString(fmt.Sprintf("  DBUser: %s\n", c.DBUser))
	sb.WriteString(fmt.Sprintf("  DBName: %s\n", c.DBName))
	sb.WriteString(fmt.Sprintf("  DBScheme: %s\n", c.DBScheme))
	sb.WriteString(fmt.Sprintf("  DBPassword: %s\n", mask(c.DBPassword)))

	sb.WriteString(fmt.Sprintf("  RedisAddr: %s\n", c.RedisAddr))
	sb.WriteString(fmt.Sprintf("  RedisDB: %d\n", c.RedisDB))
	sb.WriteString(fmt.Sprintf("  RedisPassword: %s\n", mask(c.RedisPassword)))

	// S3
	sb.WriteString(fmt.Sprintf("  S3Endpoint: %s\n", c.S3Endpoint))
	sb.WriteString(fmt.Sprintf("  S3Region: %s\n", c.S3Region))
	sb.WriteString(fmt.Sprintf("  S3Bucket: %s\n", c.S3Bucket))
	sb.WriteString(fmt.Sprintf("  S3AccessKey: %s\n", mask(c.S3AccessKey)))
	sb.WriteString(fmt.Sprintf("  S3SecretKey: %s\n", mask(c.S3SecretKey)))
	sb.WriteString(fmt.Sprintf("  S3UseSSL: %v\n", c.S3UseSSL))
	sb.WriteString(fmt.Sprintf("  S3PathStyle: %v\n", c.S3PathStyle))

	sb.WriteString(fmt.Sprintf("  AuthJWTSecret: %s\n", mask(c.AuthJWTSecret)))
	sb.WriteString(fmt.Sprintf("  AuthIssuer: %s\n", c.AuthIssuer))
	sb.WriteString(fmt.Sprintf("  AuthTokenTTL: %s\n", c.AuthTokenTTL))

	sb.WriteString(fmt.Sprintf("  PresenceBackend: %s (ttl %s)\n", c.PresenceBackend, c.PresenceTTL))
	sb.WriteString(fmt.Sprintf("  BusBackend: %s (queue %d, publish timeout %s)\n", c.BusBackend, c.BusQueueSize, c.BusPublishTimeout))
	sb.WriteString(fmt.Sprintf("  WS: max %d bytes, write %s, pong %s, rate %.1f/s burst %d, origins %v\n",
		c.WSMaxMessageBytes, c.WSWriteTimeout, c.WSPongTimeout, c.WSRateLimit, c.WSRateBurst, c.WSAllowedOrigins))

	return sb.String()
}

func mask(s string) string {
	if s == "" {
		return "(empty)"
	}
	return "********"
}

// Load читает .env (если есть), окружение и флаги командной строки.
// Флаг перекрывает переменную окружения только если задан явно.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("collab-notes", pflag.ContinueOnError)
	envFile := fs.String("env-file", ".env", "path to .env file (local development)")
	fs.String("port", "", "HTTP port (APP_PORT)")
	fs.String("presence-backend", "", "presence registry backend: redis|memory (PRESENCE_BACKEND)")
	fs.String("bus-backend", "", "broadcast bus backend: redis|memory (BUS_BACKEND)")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Загружаем .env только для локальной разработки
	if _, err := os.Stat(*envFile); err == nil {
		if err := godotenv.Load(*envFile); err != nil {
			return nil, errors.New("failed to load .env")
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	flagKeys := map[string]string{
		"port":             "APP_PORT",
		"presence-backend": "PRESENCE_BACKEND",
		"bus-backend":      "BUS_BACKEND",
	}
	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.WSAllowedOrigins = compact(cfg.WSAllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	if c.AuthJWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.PresenceBackend != BackendRedis && c.PresenceBackend != BackendMemory {
		errs = append(errs, fmt.Errorf("PRESENCE_BACKEND %q: want redis or memory", c.PresenceBackend))
	}
	if c.BusBackend != BackendRedis && c.BusBackend != BackendMemory {
		errs = append(errs, fmt.Errorf("BUS_BACKEND %q: want redis or memory", c.BusBackend))
	}
	if c.AuthTokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL must be positive"))
	}
	if c.BusQueueSize <= 0 {
		errs = append(errs, errors.New("BUS_QUEUE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

// NeedsRedis: нужен ли Redis хотя бы одному из бэкендов реального времени.
func (c *Config) NeedsRedis() bool {
	return c.PresenceBackend == BackendRedis || c.BusBackend == BackendRedis
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBScheme,
	)
}
