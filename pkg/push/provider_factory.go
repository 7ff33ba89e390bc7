package push

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"chatcall-backend/pkg/logger"
)

// ProviderType selects how notifications leave the process
type ProviderType string

const (
	ProviderTypeLog  ProviderType = "log"
	ProviderTypeLive ProviderType = "live"
)

// Config selects and configures the push gateways
type Config struct {
	Type ProviderType
	FCM  *FCMConfig  // nil disables FCM
	APNs *APNsConfig // nil disables APNs
}

// NewProviders builds one provider per configured platform. In log mode, or
// when a gateway fails to initialize, the platform falls back to LogProvider
// so call flows keep working without credentials.
func NewProviders(ctx context.Context, cfg *Config) map[Platform]Provider {
	providers := map[Platform]Provider{
		PlatformFCM:  &LogProvider{},
		PlatformAPNs: &LogProvider{},
	}
	if cfg == nil || cfg.Type != ProviderTypeLive {
		logger.Info("Using log push provider")
		return providers
	}

	if cfg.FCM != nil {
		fcm, err := NewFCMProvider(ctx, cfg.FCM)
		if err != nil {
			logger.Warn("FCM unavailable, falling back to log provider", zap.Error(err))
		} else {
			providers[PlatformFCM] = fcm
		}
	}
	if cfg.APNs != nil {
		apns, err := NewAPNsProvider(cfg.APNs)
		if err != nil {
			logger.Warn("APNs unavailable, falling back to log provider", zap.Error(err))
		} else {
			providers[PlatformAPNs] = apns
		}
	}
	return providers
}

// LogProvider logs notifications instead of sending them
type LogProvider struct {
	sent atomic.Int64
}

// Send implements Provider
func (p *LogProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	p.sent.Add(1)
	logger.Debug("Push notification (log provider)",
		zap.String("title", notification.Title),
		zap.String("body", notification.Body),
		zap.Int("token_count", len(tokens)))

	return &SendResult{SuccessCount: len(tokens)}, nil
}

// NotificationsSent returns how many notifications went through Send
func (p *LogProvider) NotificationsSent() int64 {
	return p.sent.Load()
}
