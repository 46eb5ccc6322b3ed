// Package config loads process configuration from the environment (§6
// Configuration), grounded on the teacher's own internal/config package:
// same envconfig-tagged struct-per-concern layout, generalized from a
// transcoding worker's ffmpeg/temp-dir settings to this proxy's transform-
// client/cache/KV sections.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full process configuration, loaded once at startup.
type Config struct {
	Server    ServerConfig
	Worker    WorkerConfig
	Database  DatabaseConfig
	MinIO     MinIOConfig
	RabbitMQ  RabbitMQConfig
	Redis     RedisConfig
	Transform TransformConfig
	Cache     CacheConfig
}

// ServerConfig controls the HTTP listener cmd/proxy binds.
type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
}

// WorkerConfig controls cmd/worker's background-job consumer (§5, §9
// "background tasks": version-write and store-back jobs, not video
// transcoding — that work moved to the external transform service).
// cmd/proxy also sizes its in-process background scheduler from Concurrency.
type WorkerConfig struct {
	Concurrency     int           `envconfig:"WORKER_CONCURRENCY" default:"8"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig points at the Postgres instance backing ConfigStore
// (origins, derivatives, runtime_settings).
type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"videocache"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"videocache"`
	DBName   string `envconfig:"POSTGRES_DB" default:"videocache"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// MinIOConfig points at the object store backing R2-type sources.
type MinIOConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"videos"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

// RabbitMQConfig points at the out-of-process background job transport
// (alternative to internal/background.Pool's in-process queue).
type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"videocache"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"videocache"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

// RedisConfig points at the Redis instance backing CACHE_KV and VERSION_KV
// (§6: two logical KV namespaces). They are kept on separate DB indices of
// the same Redis instance rather than separate instances, since nothing in
// this deployment's scale needs more than that.
type RedisConfig struct {
	Host       string `envconfig:"REDIS_HOST" default:"localhost"`
	Port       int    `envconfig:"REDIS_PORT" default:"6379"`
	Password   string `envconfig:"REDIS_PASSWORD" default:""`
	CacheDB    int    `envconfig:"REDIS_CACHE_DB" default:"0"`
	VersionDB  int    `envconfig:"REDIS_VERSION_DB" default:"1"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TransformConfig points at the external media transform CDN (§1, §6).
type TransformConfig struct {
	CDNPrefix        string        `envconfig:"TRANSFORM_CDN_PREFIX" required:"true"`
	Timeout          time.Duration `envconfig:"TRANSFORM_TIMEOUT" default:"60s"`
	HeadTimeout      time.Duration `envconfig:"TRANSFORM_HEAD_TIMEOUT" default:"5s"`
	CeilingBytes     int64         `envconfig:"TRANSFORM_CEILING_BYTES" default:"268435456"`
}

// CacheConfig seeds repository.CacheSettings defaults when runtime_settings
// has no row yet (a fresh deployment, §7 ConfigError fallback behavior).
type CacheConfig struct {
	KVCacheEnabled    bool `envconfig:"CACHE_KV_ENABLED" default:"true"`
	EnableCacheTags   bool `envconfig:"CACHE_ENABLE_TAGS" default:"true"`
	DefaultMaxAgeSecs int  `envconfig:"CACHE_DEFAULT_MAX_AGE" default:"3600"`
	ReadCacheTTLSecs  int  `envconfig:"CACHE_KV_READ_TTL" default:"60"`
	StoreIndefinitely bool `envconfig:"CACHE_STORE_INDEFINITELY" default:"false"`
}

// Load reads configuration from the environment, applying the defaults and
// required markers declared above.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
