package config

import (
	"fmt"
	"time"

	"chatcall-backend/pkg/constants"
	"chatcall-backend/pkg/env"
)

// Config holds all configuration for the realtime service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cassandra CassandraConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	Push      PushConfig
	JWT       JWTConfig
	RabbitMQ  RabbitMQConfig
	Tracing   TracingConfig
	Realtime  RealtimeConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	Environment     string // development, staging, production
	ServiceName     string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	TrustedProxies  []string
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
	Migrate  bool
}

// CassandraConfig holds Cassandra configuration
type CassandraConfig struct {
	Hosts       []string
	Keyspace    string
	Username    string
	Password    string
	Consistency string
	Timeout     time.Duration
	Migrate     bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host                string
	Port                int
	Password            string
	DB                  int
	PoolSize            int
	Timeout             time.Duration
	HealthCheckInterval time.Duration
}

// MinIOConfig holds attachment storage configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	// PublicURL is the base of download links handed to clients
	PublicURL string
}

// PushConfig selects the push gateways
type PushConfig struct {
	Provider string // log, live

	FCMCredentialsPath string
	FCMProjectID       string

	APNsKeyPath             string
	APNsKeyID               string
	APNsTeamID              string
	APNsCertificatePath     string
	APNsCertificatePassword string
	APNsBundleID            string
	APNsProduction          bool
}

// JWTConfig holds bearer token validation settings
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// RabbitMQConfig holds the domain event broker settings. An empty URL disables publishing.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// TracingConfig holds OpenTelemetry export settings
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// RealtimeConfig holds WebSocket and call settings
type RealtimeConfig struct {
	RingTimeout    time.Duration
	MaxConnections int
	AllowedOrigins []string
	// RequireAuth rejects WebSocket upgrades without a valid token
	RequireAuth bool
}

// RateLimitConfig bounds REST requests per client
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, console
	Output   string // stdout, file
	FilePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            env.GetInt("PORT", 8080),
			Environment:     env.GetString("ENV", "development"),
			ServiceName:     env.GetString("SERVICE_NAME", "realtime-service"),
			RequestTimeout:  env.GetDuration("REQUEST_TIMEOUT", constants.DefaultTimeout),
			ShutdownTimeout: env.GetDuration("SHUTDOWN_TIMEOUT", constants.GracefulShutdownTimeout),
			TrustedProxies:  env.GetList("TRUSTED_PROXIES", nil),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 26257),
			User:     env.GetString("DB_USER", "root"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "chatcall"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 25),
			MinConns: env.GetInt("DB_MIN_CONNS", 5),
			Migrate:  env.GetBool("DB_MIGRATE", true),
		},
		Cassandra: CassandraConfig{
			Hosts:       env.GetList("CASSANDRA_HOSTS", []string{"localhost"}),
			Keyspace:    env.GetString("CASSANDRA_KEYSPACE", "chatcall"),
			Username:    env.GetStringFromFile("CASSANDRA_USER", ""),
			Password:    env.GetStringFromFile("CASSANDRA_PASSWORD", ""),
			Consistency: env.GetString("CASSANDRA_CONSISTENCY", "LOCAL_QUORUM"),
			Timeout:     env.GetDuration("CASSANDRA_TIMEOUT", 5*time.Second),
			Migrate:     env.GetBool("CASSANDRA_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:                env.GetString("REDIS_HOST", "localhost"),
			Port:                env.GetInt("REDIS_PORT", 6379),
			Password:            env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:                  env.GetInt("REDIS_DB", 0),
			PoolSize:            env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:             env.GetDuration("REDIS_TIMEOUT", 3*time.Second),
			HealthCheckInterval: env.GetDuration("REDIS_HEALTH_CHECK_INTERVAL", 10*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:  env.GetString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Region:    env.GetString("MINIO_REGION", ""),
			Bucket:    env.GetString("MINIO_BUCKET", "attachments"),
			PublicURL: env.GetString("MINIO_PUBLIC_URL", "http://localhost:9000"),
		},
		Push: PushConfig{
			Provider:                env.GetString("PUSH_PROVIDER", "log"),
			FCMCredentialsPath:      env.GetString("FCM_CREDENTIALS_PATH", ""),
			FCMProjectID:            env.GetStringFromFile("FCM_PROJECT_ID", ""),
			APNsKeyPath:             env.GetString("APNS_KEY_PATH", ""),
			APNsKeyID:               env.GetString("APNS_KEY_ID", ""),
			APNsTeamID:              env.GetString("APNS_TEAM_ID", ""),
			APNsCertificatePath:     env.GetString("APNS_CERT_PATH", ""),
			APNsCertificatePassword: env.GetStringFromFile("APNS_CERT_PASSWORD", ""),
			APNsBundleID:            env.GetString("APNS_BUNDLE_ID", ""),
			APNsProduction:          env.GetBool("APNS_PRODUCTION", false),
		},
		JWT: JWTConfig{
			Secret:   env.GetStringFromFile("JWT_SECRET", ""),
			Issuer:   env.GetString("JWT_ISSUER", ""),
			Audience: env.GetString("JWT_AUDIENCE", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      env.GetStringFromFile("RABBITMQ_URL", ""),
			Exchange: env.GetString("RABBITMQ_EXCHANGE", "chatcall.events"),
		},
		Tracing: TracingConfig{
			Enabled:     env.GetBool("OTEL_ENABLED", false),
			Endpoint:    env.GetString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    env.GetBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio: float64(env.GetInt("OTEL_SAMPLE_PERCENT", 100)) / 100,
		},
		Realtime: RealtimeConfig{
			RingTimeout:    env.GetDuration("CALL_RING_TIMEOUT", constants.CallRingTimeout),
			MaxConnections: env.GetInt("WS_MAX_CONNECTIONS", 1000),
			AllowedOrigins: env.GetList("ALLOWED_ORIGINS", nil),
			RequireAuth:    env.GetBool("WS_REQUIRE_AUTH", false),
		},
		RateLimit: RateLimitConfig{
			Enabled:  env.GetBool("RATE_LIMIT_ENABLED", true),
			Requests: env.GetInt("RATE_LIMIT_REQUESTS", 100),
			Window:   env.GetDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/app.log"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Realtime.RingTimeout <= 0 {
		return fmt.Errorf("CALL_RING_TIMEOUT must be positive")
	}
	if c.Realtime.MaxConnections <= 0 {
		return fmt.Errorf("WS_MAX_CONNECTIONS must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_PERCENT must be between 0 and 100")
	}
	if c.Push.Provider != "log" && c.Push.Provider != "live" {
		return fmt.Errorf("PUSH_PROVIDER must be log or live, got %q", c.Push.Provider)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}

	if c.IsProduction() {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if len(c.Realtime.AllowedOrigins) == 0 {
			return fmt.Errorf("ALLOWED_ORIGINS must be set in production")
		}
		if c.Push.Provider != "live" {
			return fmt.Errorf("PUSH_PROVIDER=log is not allowed in production")
		}
	}
	return nil
}
