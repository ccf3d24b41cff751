package services

import (
	"context"
	"errors"
	"fmt"

	"parking-bot/internal/metrics"

	"github.com/rs/zerolog/log"
)

// ErrUnreachable is returned when no delivery channel reaches the recipient
var ErrUnreachable = errors.New("recipient unreachable")

// Notifier delivers messages to identities other than the update author
type Notifier interface {
	Notify(ctx context.Context, userID int64, n Notification) error
}

// DeliveryNotifier tries the live websocket first and falls back to push
type DeliveryNotifier struct {
	hub   *WSHub
	push  PushSender
	users UserStore
}

// NewDeliveryNotifier creates a notifier. push may be nil.
func NewDeliveryNotifier(hub *WSHub, push PushSender, users UserStore) *DeliveryNotifier {
	return &DeliveryNotifier{hub: hub, push: push, users: users}
}

// Notify delivers n to userID. Failures are not retried.
func (d *DeliveryNotifier) Notify(ctx context.Context, userID int64, n Notification) error {
	if d.hub != nil && d.hub.IsOnline(userID) {
		err := d.hub.SendToUser(userID, WSMessage{Type: "notification", Notification: &n})
		metrics.RecordNotification("websocket", err)
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Int64("user_id", userID).Msg("Websocket delivery failed, trying push")
	}

	if d.push != nil {
		user, err := d.users.GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to look up push token: %w", err)
		}
		if user.PushToken != nil && *user.PushToken != "" {
			err := d.push.Push(ctx, *user.PushToken, n)
			metrics.RecordNotification("apns", err)
			return err
		}
	}

	metrics.RecordNotification("none", ErrUnreachable)
	return fmt.Errorf("user %d: %w", userID, ErrUnreachable)
}
