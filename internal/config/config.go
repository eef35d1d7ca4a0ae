package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig     `mapstructure:"server"`
	BiddingServer ServerConfig     `mapstructure:"bidding_server"`
	Session       SessionConfig    `mapstructure:"session"`
	Storage       StorageConfig    `mapstructure:"storage"`
	MySQL         MySQLConfig      `mapstructure:"mysql"`
	SQLite        SQLiteConfig     `mapstructure:"sqlite"`
	Redis         RedisConfig      `mapstructure:"redis"`
	Arbiter       ArbiterConfig    `mapstructure:"arbiter"`
	Auth          AuthConfig       `mapstructure:"auth"`
	Stats         StatsConfig      `mapstructure:"stats"`
	Reconciler    ReconcilerConfig `mapstructure:"reconciler"`
	Log           LogConfig        `mapstructure:"log"`
	Instance      InstanceConfig   `mapstructure:"instance"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig configures the line-oriented TCP command listener.
type SessionConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Port        int           `mapstructure:"port"`
	Host        string        `mapstructure:"host"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	MaxSessions int64         `mapstructure:"max_sessions"`
}

func (s SessionConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"` // mysql, sqlite or memory
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type SQLiteConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ArbiterConfig holds the bid arbitration policy.
type ArbiterConfig struct {
	RawMinIncrement string          `mapstructure:"min_increment"`
	LockWaitTimeout time.Duration   `mapstructure:"lock_wait_timeout"`
	TxnTimeout      time.Duration   `mapstructure:"txn_timeout"`
	MinIncrement    decimal.Decimal `mapstructure:"-"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type StatsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// ReconcilerConfig schedules the job that refreshes the price cache from the
// store. Only the instance holding the leader lease runs it.
type ReconcilerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Schedule  string        `mapstructure:"schedule"`
	LeaderTTL time.Duration `mapstructure:"leader_ttl"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

var envBindings = map[string]string{
	"server.port":               "SERVER_PORT",
	"server.host":               "SERVER_HOST",
	"bidding_server.port":       "BIDDING_SERVER_PORT",
	"bidding_server.host":       "BIDDING_SERVER_HOST",
	"session.enabled":           "SESSION_ENABLED",
	"session.port":              "SESSION_PORT",
	"storage.driver":            "STORAGE_DRIVER",
	"storage.auto_migrate":      "STORAGE_AUTO_MIGRATE",
	"mysql.dsn":                 "MYSQL_DSN",
	"mysql.max_open_conns":      "MYSQL_MAX_OPEN_CONNS",
	"mysql.max_idle_conns":      "MYSQL_MAX_IDLE_CONNS",
	"mysql.conn_max_lifetime":   "MYSQL_CONN_MAX_LIFETIME",
	"sqlite.path":               "SQLITE_PATH",
	"redis.enabled":             "REDIS_ENABLED",
	"redis.address":             "REDIS_ADDRESS",
	"redis.password":            "REDIS_PASSWORD",
	"redis.db":                  "REDIS_DB",
	"arbiter.min_increment":     "ARBITER_MIN_INCREMENT",
	"arbiter.lock_wait_timeout": "ARBITER_LOCK_WAIT_TIMEOUT",
	"arbiter.txn_timeout":       "ARBITER_TXN_TIMEOUT",
	"auth.jwt_secret":           "AUTH_JWT_SECRET",
	"auth.token_ttl":            "AUTH_TOKEN_TTL",
	"stats.enabled":             "STATS_ENABLED",
	"stats.schedule":            "STATS_SCHEDULE",
	"reconciler.enabled":        "RECONCILER_ENABLED",
	"reconciler.schedule":       "RECONCILER_SCHEDULE",
	"log.level":                 "LOG_LEVEL",
	"instance.id":               "INSTANCE_ID",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("bidding_server.port", 8081)
	v.SetDefault("bidding_server.host", "0.0.0.0")
	v.SetDefault("session.enabled", true)
	v.SetDefault("session.port", 9090)
	v.SetDefault("session.host", "0.0.0.0")
	v.SetDefault("session.idle_timeout", 10*time.Minute)
	v.SetDefault("session.max_sessions", 256)
	v.SetDefault("storage.driver", "mysql")
	v.SetDefault("storage.auto_migrate", true)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("sqlite.path", "auction.db")
	v.SetDefault("sqlite.busy_timeout", 5*time.Second)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("arbiter.min_increment", "10.00")
	v.SetDefault("arbiter.lock_wait_timeout", 3*time.Second)
	v.SetDefault("arbiter.txn_timeout", 5*time.Second)
	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.schedule", "@every 1m")
	v.SetDefault("reconciler.enabled", true)
	v.SetDefault("reconciler.schedule", "@every 30s")
	v.SetDefault("reconciler.leader_ttl", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("instance.id", "auction-service-1")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return v
}

func Load() (*Config, error) {
	v := newViper()

	// Configuration file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/auction-marketplace/")

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	inc, err := decimal.NewFromString(config.Arbiter.RawMinIncrement)
	if err != nil {
		return nil, fmt.Errorf("config: arbiter.min_increment %q: %w", config.Arbiter.RawMinIncrement, err)
	}
	config.Arbiter.MinIncrement = inc

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if !c.Arbiter.MinIncrement.IsPositive() {
		return fmt.Errorf("config: arbiter.min_increment must be positive, got %s", c.Arbiter.MinIncrement)
	}
	if c.Arbiter.LockWaitTimeout <= 0 {
		return fmt.Errorf("config: arbiter.lock_wait_timeout must be positive, got %s", c.Arbiter.LockWaitTimeout)
	}
	if c.Arbiter.TxnTimeout <= 0 {
		return fmt.Errorf("config: arbiter.txn_timeout must be positive, got %s", c.Arbiter.TxnTimeout)
	}
	switch c.Storage.Driver {
	case "mysql", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Reconciler.Enabled && c.Reconciler.LeaderTTL < time.Second {
		return fmt.Errorf("config: reconciler.leader_ttl must be at least 1s, got %s", c.Reconciler.LeaderTTL)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config: auth.token_ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s, Bidding: %s, Storage: %s, Redis: %s (enabled=%t), MinIncrement: %s, LockWait: %s, Txn: %s, Instance: %s",
		c.Server.Addr(),
		c.BiddingServer.Addr(),
		c.Storage.Driver,
		c.Redis.Address,
		c.Redis.Enabled,
		c.Arbiter.MinIncrement.StringFixed(2),
		c.Arbiter.LockWaitTimeout,
		c.Arbiter.TxnTimeout,
		c.Instance.ID,
	)
}
