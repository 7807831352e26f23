package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvProduction is the app.env value of live deployments.
const EnvProduction = "production"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Outbox    OutboxSettings    `mapstructure:"outbox"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	RateLimit RateLimitSettings `mapstructure:"ratelimit"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// AllowedOrigins lists browser origins granted CORS access. Empty disables CORS headers.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// SPDSchema and SISSchema name the schema holding each tenant's tables.
	SPDSchema string `mapstructure:"spd_schema"`
	SISSchema string `mapstructure:"sis_schema"`
}

// DSN renders a libpq style connection string.
func (p PostgresSettings) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Database,
		p.SSLMode,
	)
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	DB          int    `mapstructure:"db"`
	Password    string `mapstructure:"password"`
	TLSEnabled  bool   `mapstructure:"tls_enabled"`
	CachePrefix string `mapstructure:"cache_prefix"`
}

// KafkaSettings configures the outbox channel producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	ClientID    string   `mapstructure:"client_id"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// RateLimitSettings configures the credential throttle and the per-IP burst guard
type RateLimitSettings struct {
	CredentialAttempts int           `mapstructure:"credential_attempts"`
	CredentialWindow   time.Duration `mapstructure:"credential_window"`
	KeyPrefix          string        `mapstructure:"key_prefix"`
	PerSecond          float64       `mapstructure:"per_second"`
	Burst              int           `mapstructure:"burst"`
}

type JWTSettings struct {
	AccessKeyDirectory  string        `mapstructure:"access_key_directory"`
	RefreshKeyDirectory string        `mapstructure:"refresh_key_directory"`
	Issuer              string        `mapstructure:"issuer"`
	AccessTokenTTL      time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL     time.Duration `mapstructure:"refresh_token_ttl"`
	// RefreshLookupLimit bounds how many active rows a rotation compares against.
	RefreshLookupLimit int `mapstructure:"refresh_lookup_limit"`
}

type OutboxSettings struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

type TelemetrySettings struct {
	MetricsPort  int     `mapstructure:"metrics_port"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("IAM")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"postgres.spd_schema",
		"postgres.sis_schema",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.cache_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.client_id",
		"jwt.access_key_directory",
		"jwt.refresh_key_directory",
		"jwt.issuer",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"jwt.refresh_lookup_limit",
		"outbox.interval",
		"outbox.batch_size",
		"telemetry.metrics_port",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"ratelimit.credential_attempts",
		"ratelimit.credential_window",
		"ratelimit.key_prefix",
		"ratelimit.per_second",
		"ratelimit.burst",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.JWT.AccessTokenTTL <= 0 {
		return fmt.Errorf("jwt.access_token_ttl must be positive")
	}
	if c.JWT.RefreshTokenTTL <= c.JWT.AccessTokenTTL {
		return fmt.Errorf("jwt.refresh_token_ttl must exceed jwt.access_token_ttl")
	}
	if c.JWT.AccessKeyDirectory == c.JWT.RefreshKeyDirectory {
		return fmt.Errorf("access and refresh tokens must use distinct key directories")
	}
	if c.Outbox.Interval <= 0 {
		return fmt.Errorf("outbox.interval must be positive")
	}
	if c.App.Env == EnvProduction && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must be set in production, the stub channel acknowledges without delivering")
	}
	if c.RateLimit.CredentialAttempts > 0 && c.RateLimit.CredentialWindow <= 0 {
		return fmt.Errorf("ratelimit.credential_window must be positive when attempts are limited")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tenant-access")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "access")
	v.SetDefault("postgres.password", "access_password")
	v.SetDefault("postgres.database", "access")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.spd_schema", "spd")
	v.SetDefault("postgres.sis_schema", "sis")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.cache_prefix", "access:permissions")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "access")
	v.SetDefault("kafka.client_id", "tenant-access-outbox")

	v.SetDefault("jwt.access_key_directory", "./secrets/access")
	v.SetDefault("jwt.refresh_key_directory", "./secrets/refresh")
	v.SetDefault("jwt.issuer", "tenant-access")
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.refresh_token_ttl", "720h")
	v.SetDefault("jwt.refresh_lookup_limit", 20)

	v.SetDefault("outbox.interval", "5s")
	v.SetDefault("outbox.batch_size", 100)

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "tenant-access")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("ratelimit.credential_attempts", 10)
	v.SetDefault("ratelimit.credential_window", "1m")
	v.SetDefault("ratelimit.key_prefix", "access:attempts")
	v.SetDefault("ratelimit.per_second", 20.0)
	v.SetDefault("ratelimit.burst", 40)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "IAM_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
