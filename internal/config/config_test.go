package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, 30*time.Second, cfg.Realtime.RingTimeout)
	assert.Equal(t, 1000, cfg.Realtime.MaxConnections)
	assert.Equal(t, []string{"localhost"}, cfg.Cassandra.Hosts)
	assert.Equal(t, "log", cfg.Push.Provider)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
	assert.Empty(t, cfg.RabbitMQ.URL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("CALL_RING_TIMEOUT", "45s")
	t.Setenv("CASSANDRA_HOSTS", "cass-1, cass-2,,")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("OTEL_SAMPLE_PERCENT", "25")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Realtime.RingTimeout)
	assert.Equal(t, []string{"cass-1", "cass-2"}, cfg.Cassandra.Hosts)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Realtime.AllowedOrigins)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: 8080, Environment: "development"},
			Push:      PushConfig{Provider: "log"},
			JWT:       JWTConfig{Secret: "dev-secret"},
			Realtime:  RealtimeConfig{RingTimeout: time.Second, MaxConnections: 10},
			RateLimit: RateLimitConfig{Enabled: true, Requests: 10, Window: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid development", func(*Config) {}, ""},
		{"missing secret", func(c *Config) { c.JWT.Secret = "" }, "JWT_SECRET must be set"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "PORT"},
		{"zero ring timeout", func(c *Config) { c.Realtime.RingTimeout = 0 }, "CALL_RING_TIMEOUT"},
		{"unknown push provider", func(c *Config) { c.Push.Provider = "mock" }, "PUSH_PROVIDER"},
		{"short secret in production", func(c *Config) {
			c.Server.Environment = "production"
		}, "at least 32 characters"},
		{"production without origins", func(c *Config) {
			c.Server.Environment = "production"
			c.JWT.Secret = "0123456789abcdef0123456789abcdef"
			c.Push.Provider = "live"
		}, "ALLOWED_ORIGINS"},
		{"production log push", func(c *Config) {
			c.Server.Environment = "production"
			c.JWT.Secret = "0123456789abcdef0123456789abcdef"
			c.Realtime.AllowedOrigins = []string{"https://app.example.com"}
		}, "PUSH_PROVIDER=log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
