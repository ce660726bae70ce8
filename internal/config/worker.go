package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

type QueueConfig struct {
	ClaimInterval time.Duration
}

type RetentionConfig struct {
	StudyTTL  time.Duration
	BatchSize int
}

type LoggingConfig struct {
	Level string
}

type WorkerConfig struct {
	Environment string
	Postgres    PostgresConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Queues      QueueConfig
	Quota       QuotaConfig
	Retention   RetentionConfig
	Logging     LoggingConfig
}

// LoadWorker reads worker.yaml, then DIAGNOAI_WORKER_* environment overrides.
func LoadWorker() (*WorkerConfig, error) {
	v := viper.New()
	v.SetConfigName("worker")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../../config")

	v.SetEnvPrefix("DIAGNOAI_WORKER")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	bindEnv(v, "postgres.dsn", "redis.password", "storage.endpoint", "storage.accesskey", "storage.secretkey")

	setWorkerDefaults(v)

	var cfg WorkerConfig
	if err := read(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setWorkerDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("postgres.maxopen", 5)
	v.SetDefault("postgres.maxidle", 1)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "diagnoai:jobs")
	v.SetDefault("redis.group", "diagnoai-workers")
	v.SetDefault("redis.consumer", "worker-1")

	v.SetDefault("storage.bucketstudies", "diagnoai-studies")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("queues.claiminterval", "30s")

	v.SetDefault("quota.premiumlimit", 20)

	v.SetDefault("retention.studyttl", "2160h") // 90 days
	v.SetDefault("retention.batchsize", 200)

	v.SetDefault("logging.level", "info")
}
