package services

import (
	"context"
	"fmt"
	"unicode/utf8"

	"parking-bot/internal/models"

	"github.com/rs/zerolog/log"
)

const minAnnouncementLen = 5

// announce stores the broadcast and delivers it to every approved resident
func (b *Bot) announce(ctx context.Context, in Input) (Result, error) {
	if utf8.RuneCountInString(in.Text) < minAnnouncementLen {
		return stay(in.State, say(fmt.Sprintf("The announcement is too short (at least %d characters). Try again or /cancel:", minAnnouncementLen))), nil
	}

	id, err := b.stores.Announcements.Create(ctx, &models.Announcement{AdminID: in.UserID(), Text: in.Text})
	if err != nil {
		return Result{}, err
	}
	users, err := b.stores.Users.ListByStatus(ctx, models.StatusApproved)
	if err != nil {
		return Result{}, err
	}

	notice := Notification{Text: "📢 Announcement\n\n" + in.Text}
	sent, failed := 0, 0
	for _, u := range users {
		if err := b.notifier.Notify(ctx, u.TelegramID, notice); err != nil {
			log.Debug().Err(err).Int64("user_id", u.TelegramID).Msg("Announcement not delivered")
			failed++
			continue
		}
		sent++
	}
	log.Info().Int64("announcement_id", id).Int("sent", sent).Int("failed", failed).Msg("Announcement sent")

	return done(say(
		"✅ Announcement sent!",
		fmt.Sprintf("Delivered: %d", sent),
		fmt.Sprintf("Failed: %d", failed),
	)), nil
}
