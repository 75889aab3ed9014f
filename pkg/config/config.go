package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "YSJ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "YSJ_DB_DSN"
	EnvDBHost = "YSJ_DB_HOST"
	EnvDBUser = "YSJ_DB_USER"
	EnvDBName = "YSJ_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	Stock StockConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"YSJ_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"YSJ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"YSJ_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"YSJ_DB_DSN"`
	Driver string `envconfig:"YSJ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"YSJ_DB_HOST"`
	LegacyPort     int    `envconfig:"YSJ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"YSJ_DB_USER"`
	LegacyPassword string `envconfig:"YSJ_DB_PASSWORD"`
	LegacyName     string `envconfig:"YSJ_DB_NAME"`
	LegacySSLMode  string `envconfig:"YSJ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"YSJ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"YSJ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"YSJ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"YSJ_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"YSJ_DB_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	// URL empty disables the snapshot cache and redis-backed worker lock.
	URL          string        `envconfig:"YSJ_REDIS_URL"`
	Address      string        `envconfig:"YSJ_REDIS_ADDR"`
	Password     string        `envconfig:"YSJ_REDIS_PASSWORD"`
	DB           int           `envconfig:"YSJ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"YSJ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"YSJ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"YSJ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"YSJ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"YSJ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type StockConfig struct {
	LockAcquireTimeout time.Duration `envconfig:"YSJ_STOCK_LOCK_ACQUIRE_TIMEOUT" default:"3s"`
	ReservationTTL     time.Duration `envconfig:"YSJ_STOCK_RESERVATION_TTL" default:"30m"`
	SnapshotCacheTTL   time.Duration `envconfig:"YSJ_STOCK_SNAPSHOT_CACHE_TTL" default:"5s"`
	WorkerInterval     time.Duration `envconfig:"YSJ_STOCK_WORKER_INTERVAL" default:"1m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
