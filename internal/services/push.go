package services

import (
	"context"
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// PushSender delivers a notification to a device
type PushSender interface {
	Push(ctx context.Context, deviceToken string, n Notification) error
}

// APNsConfig holds what is needed for token based APNs auth
type APNsConfig struct {
	KeyFile    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

// APNsSender pushes notifications through Apple Push Notification service
type APNsSender struct {
	client *apns2.Client
	topic  string
}

// NewAPNsSender creates an APNs sender from a .p8 key file
func NewAPNsSender(cfg APNsConfig) (*APNsSender, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNsSender{client: client, topic: cfg.Topic}, nil
}

// Push sends one alert. Buttons travel as custom payload data.
func (s *APNsSender) Push(ctx context.Context, deviceToken string, n Notification) error {
	p := payload.NewPayload().
		AlertTitle("Parking").
		AlertBody(n.Text).
		Sound("default")
	if len(n.Buttons) > 0 {
		p = p.Custom("buttons", n.Buttons)
	}

	res, err := s.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       s.topic,
		Payload:     p,
	})
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("apns rejected notification: %d %s", res.StatusCode, res.Reason)
	}
	return nil
}
