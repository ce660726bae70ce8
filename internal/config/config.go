package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

type HTTPConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
	TrustedProxies []string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	BucketStudies string
	UseSSL        bool
	Region        string
}

type SecurityConfig struct {
	JWTSecret       string
	TokenTTL        time.Duration
	SignatureSecret string
	SignatureSkew   time.Duration
}

type QuotaConfig struct {
	FreeLimit    int
	PremiumLimit int
	Timeout      time.Duration
}

type ModelsConfig struct {
	BaseURL   string
	Primary   string
	Secondary string
	Workers   int
	Timeout   time.Duration
}

type SubscriptionConfig struct {
	Duration   time.Duration
	PaymentURL string
	AppID      string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type JobsConfig struct {
	SweepSchedule   string
	CleanupSchedule string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	TLS              TLSConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Quota            QuotaConfig
	Models           ModelsConfig
	Subscription     SubscriptionConfig
	RateLimit        RateLimitConfig
	Jobs             JobsConfig
	AllowCORSOrigins []string
}

// Load reads config.yaml from the working directory or ./config, then DIAGNOAI_* environment overrides.
func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("DIAGNOAI")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	bindEnv(v, appSecretKeys...)

	setDefaults(v)

	var cfg AppConfig
	if err := read(v, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	var errs []error
	if c.Security.JWTSecret == "" {
		errs = append(errs, errors.New("security.jwtsecret is required"))
	}
	if c.Models.BaseURL == "" {
		errs = append(errs, errors.New("models.baseurl is required"))
	}
	if c.Quota.FreeLimit <= 0 || c.Quota.PremiumLimit <= 0 {
		errs = append(errs, errors.New("quota limits must be positive"))
	}
	if c.Subscription.Duration <= 0 {
		errs = append(errs, errors.New("subscription.duration must be positive"))
	}
	return errors.Join(errs...)
}

// appSecretKeys have no defaults, so they must be bound explicitly for environment overrides to unmarshal.
var appSecretKeys = []string{
	"postgres.dsn",
	"redis.password",
	"storage.endpoint",
	"storage.accesskey",
	"storage.secretkey",
	"security.jwtsecret",
	"security.signaturesecret",
	"models.baseurl",
	"subscription.paymenturl",
	"subscription.appid",
	"allowcorsorigins",
}

func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

func read(v *viper.Viper, out any) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("load config file: %w", err)
		}
	}

	if err := v.Unmarshal(out, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "60s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.maxuploadbytes", 20<<20)

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "diagnoai:jobs")

	v.SetDefault("storage.bucketstudies", "diagnoai-studies")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.tokenttl", "24h")
	v.SetDefault("security.signatureskew", "5m")

	v.SetDefault("quota.freelimit", 6)
	v.SetDefault("quota.premiumlimit", 20)
	v.SetDefault("quota.timeout", "5s")

	v.SetDefault("models.primary", "chest-xray")
	v.SetDefault("models.secondary", "edema")
	v.SetDefault("models.workers", 2)
	v.SetDefault("models.timeout", "20s")

	v.SetDefault("subscription.duration", "24h")

	v.SetDefault("ratelimit.requests", 10)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("jobs.sweepschedule", "0 0 * * * *")
	v.SetDefault("jobs.cleanupschedule", "0 30 3 * * *")
}
