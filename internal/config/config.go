package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the global service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	VNPay    VNPayConfig    `mapstructure:"vnpay"`
	Listing  ListingConfig  `mapstructure:"listing"`
	Lock     LockConfig     `mapstructure:"lock"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port     int `mapstructure:"port"`
	WorkerID int `mapstructure:"worker_id"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// BalanceTTLSeconds bounds how long a cached balance may be served.
	BalanceTTLSeconds int `mapstructure:"balance_ttl_seconds"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	BalanceUpdate        string `mapstructure:"balance_update"`
	TransactionCompleted string `mapstructure:"transaction_completed"`
}

type BusinessConfig struct {
	DepositExpireMinutes     int `mapstructure:"deposit_expire_minutes"`
	MaxRetryCount            int `mapstructure:"max_retry_count"`
	OptimisticRetries        int `mapstructure:"optimistic_retries"`
	ReconcileIntervalSeconds int `mapstructure:"reconcile_interval_seconds"`
}

type VNPayConfig struct {
	HashSecret string `mapstructure:"hash_secret"`
}

type ListingConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

func (c ListingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

const (
	LockDriverRedis = "redis"
	LockDriverLocal = "local"
)

type LockConfig struct {
	Driver          string `mapstructure:"driver"`
	TTLSeconds      int    `mapstructure:"ttl_seconds"`
	RetryIntervalMS int    `mapstructure:"retry_interval_ms"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.database", "wallet")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.log_level", "warn")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.balance_ttl_seconds", 300)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.balance_update", "wallet.balance.update")
	v.SetDefault("kafka.topic.transaction_completed", "wallet.transaction.completed")

	v.SetDefault("business.deposit_expire_minutes", 30)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.optimistic_retries", 3)
	v.SetDefault("business.reconcile_interval_seconds", 300)

	// keys without a real default are still registered so AutomaticEnv sees them
	v.SetDefault("mysql.password", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("vnpay.hash_secret", "")
	v.SetDefault("listing.base_url", "")
	v.SetDefault("listing.timeout_ms", 3000)

	v.SetDefault("lock.driver", LockDriverRedis)
	v.SetDefault("lock.ttl_seconds", 30)
	v.SetDefault("lock.retry_interval_ms", 100)
	v.SetDefault("lock.max_retries", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads an optional .env file, then the YAML file at configPath.
// Any key can be overridden with a WALLET_ prefixed environment variable,
// e.g. WALLET_VNPAY_HASH_SECRET.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("WALLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.VNPay.HashSecret == "" {
		return errors.New("vnpay.hash_secret is required")
	}
	if c.Listing.BaseURL == "" {
		return errors.New("listing.base_url is required")
	}
	if c.Listing.TimeoutMS <= 0 {
		return errors.New("listing.timeout_ms must be positive")
	}
	if c.Business.DepositExpireMinutes <= 0 {
		return errors.New("business.deposit_expire_minutes must be positive")
	}
	if c.Business.MaxRetryCount <= 0 {
		return errors.New("business.max_retry_count must be positive")
	}
	if c.Business.OptimisticRetries <= 0 {
		return errors.New("business.optimistic_retries must be positive")
	}
	if c.Business.ReconcileIntervalSeconds <= 0 {
		return errors.New("business.reconcile_interval_seconds must be positive")
	}
	switch c.Lock.Driver {
	case LockDriverRedis, LockDriverLocal:
	default:
		return fmt.Errorf("unknown lock.driver %q", c.Lock.Driver)
	}
	return nil
}
