package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	DeadLetter DeadLetterConfig `mapstructure:"deadletter"`
	Ranking    RankingConfig    `mapstructure:"ranking"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Platform   PlatformConfig   `mapstructure:"platform"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type OutboxConfig struct {
	BatchSize         int           `mapstructure:"batch_size"`
	MaxRetry          int           `mapstructure:"max_retry"`
	RetentionDays     int           `mapstructure:"retention_days"`
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
	RelayInterval     time.Duration `mapstructure:"relay_interval"`
	RetryInterval     time.Duration `mapstructure:"retry_interval"`
	StuckInterval     time.Duration `mapstructure:"stuck_interval"`
	CleanupCron       string        `mapstructure:"cleanup_cron"`
	PublishTimeout    time.Duration `mapstructure:"publish_timeout"`
}

type DeadLetterConfig struct {
	MaxRetry      int           `mapstructure:"max_retry"`
	BatchSize     int           `mapstructure:"batch_size"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	CleanupCron   string        `mapstructure:"cleanup_cron"`
}

type RankingConfig struct {
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
	DailyTTL     time.Duration `mapstructure:"daily_ttl"`
	WeeklyTTL    time.Duration `mapstructure:"weekly_ttl"`
}

type CacheConfig struct {
	RefreshCron string        `mapstructure:"refresh_cron"`
	TTL         time.Duration `mapstructure:"ttl"`
}

type SchedulerConfig struct {
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
}

// PlatformConfig points at the downstream HTTP services. Empty URLs disable
// the corresponding client. The retry/breaker knobs are shared by both
// resilient wrappers.
type PlatformConfig struct {
	DataPlatformURL  string        `mapstructure:"data_platform_url"`
	NotificationURL  string        `mapstructure:"notification_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RetryAttempts    uint          `mapstructure:"retry_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("CARTFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

func setDefaults() {
	viper.SetDefault("server.environment", "dev")
	viper.SetDefault("server.port", ":8080")

	viper.SetDefault("outbox.batch_size", 100)
	viper.SetDefault("outbox.max_retry", 3)
	viper.SetDefault("outbox.retention_days", 7)
	viper.SetDefault("outbox.processing_timeout", 10*time.Minute)
	viper.SetDefault("outbox.relay_interval", 5*time.Second)
	viper.SetDefault("outbox.retry_interval", time.Minute)
	viper.SetDefault("outbox.stuck_interval", 5*time.Minute)
	viper.SetDefault("outbox.cleanup_cron", "0 0 4 * * *")
	viper.SetDefault("outbox.publish_timeout", 10*time.Second)

	viper.SetDefault("deadletter.max_retry", 5)
	viper.SetDefault("deadletter.batch_size", 100)
	viper.SetDefault("deadletter.retry_interval", 5*time.Minute)
	viper.SetDefault("deadletter.cleanup_cron", "0 30 4 * * *")

	viper.SetDefault("ranking.default_limit", 10)
	viper.SetDefault("ranking.max_limit", 50)
	viper.SetDefault("ranking.daily_ttl", 25*time.Hour)
	viper.SetDefault("ranking.weekly_ttl", 8*24*time.Hour)

	viper.SetDefault("cache.refresh_cron", "0 0 2 * * *")
	viper.SetDefault("cache.ttl", 48*time.Hour)

	viper.SetDefault("scheduler.lock_ttl", time.Minute)

	viper.SetDefault("ratelimit.requests_per_second", 50)

	viper.SetDefault("platform.data_platform_url", "")
	viper.SetDefault("platform.notification_url", "")
	viper.SetDefault("platform.timeout", 5*time.Second)
	viper.SetDefault("platform.retry_attempts", 3)
	viper.SetDefault("platform.retry_delay", 200*time.Millisecond)
	viper.SetDefault("platform.failure_threshold", 5)
	viper.SetDefault("platform.breaker_cooldown", 30*time.Second)
}
