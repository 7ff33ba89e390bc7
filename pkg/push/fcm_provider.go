package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"chatcall-backend/pkg/logger"
)

// fcmBatchLimit is the maximum number of tokens per multicast request
const fcmBatchLimit = 500

// FCMProvider implements Provider for Firebase Cloud Messaging
type FCMProvider struct {
	client *messaging.Client
}

// FCMConfig contains configuration for FCM provider
type FCMConfig struct {
	CredentialsPath string // Path to service account JSON file
	CredentialsJSON []byte // Service account JSON content (alternative to file path)
	ProjectID       string
}

// NewFCMProvider creates a new FCM provider
func NewFCMProvider(ctx context.Context, config *FCMConfig) (*FCMProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("FCM config is required")
	}

	var opts []option.ClientOption
	switch {
	case len(config.CredentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(config.CredentialsJSON))
	case config.CredentialsPath != "":
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	default:
		return nil, fmt.Errorf("either CredentialsPath or CredentialsJSON must be provided")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: config.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	logger.Info("FCM provider initialized",
		zap.String("project_id", config.ProjectID))

	return &FCMProvider{client: client}, nil
}

// Send implements Provider
func (f *FCMProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	result := &SendResult{}
	for start := 0; start < len(tokens); start += fcmBatchLimit {
		end := start + fcmBatchLimit
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		response, err := f.client.SendEachForMulticast(ctx, buildFCMMessage(notification, batch))
		if err != nil {
			logger.Error("Failed to send FCM multicast message",
				zap.Int("token_count", len(batch)),
				zap.Error(err))
			return result, fmt.Errorf("failed to send FCM message: %w", err)
		}

		result.SuccessCount += response.SuccessCount
		result.FailureCount += response.FailureCount
		for i, resp := range response.Responses {
			if resp.Success || resp.Error == nil {
				continue
			}
			result.Errors = append(result.Errors, resp.Error)
			if messaging.IsUnregistered(resp.Error) || messaging.IsInvalidArgument(resp.Error) {
				result.InvalidTokens = append(result.InvalidTokens, batch[i])
			}
			logger.Warn("FCM send failed for token",
				zap.String("token", MaskToken(batch[i])),
				zap.Error(resp.Error))
		}
	}

	logger.Debug("FCM message sent",
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount),
		zap.Int("invalid_tokens", len(result.InvalidTokens)))
	return result, nil
}

func buildFCMMessage(n *Notification, tokens []string) *messaging.MulticastMessage {
	android := &messaging.AndroidConfig{
		Priority:    "normal",
		CollapseKey: n.CollapseKey,
		Notification: &messaging.AndroidNotification{
			Sound:             n.Sound,
			ChannelID:         n.Category,
			NotificationCount: n.Badge,
		},
	}
	if n.Priority == PriorityHigh {
		android.Priority = "high"
	}
	if n.TTL > 0 {
		ttl := n.TTL
		android.TTL = &ttl
	}

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data:    n.Data,
		Android: android,
	}
}
