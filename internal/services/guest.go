package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"parking-bot/internal/dialogue"
	"parking-bot/internal/models"
	"parking-bot/internal/repository"

	"github.com/rs/zerolog/log"
)

const (
	minGuestInfoLen = 2
	maxGuestInfoLen = 200
	maxGuestHours   = 72
)

// guestStart lists the active passes of the host and asks for a new one
func (b *Bot) guestStart(ctx context.Context, in Input) (Result, error) {
	active, err := b.stores.GuestPasses.ListActive(ctx, in.UserID(), in.Now)
	if err != nil {
		return Result{}, err
	}

	var replies []Reply
	if len(active) > 0 {
		lines := []string{"Active guest passes:"}
		buttons := make([]Button, 0, len(active))
		for _, p := range active {
			lines = append(lines, fmt.Sprintf("🎫 #%d %s — spot %s — until %s UTC", p.ID, p.GuestInfo, passSpot(p), p.ExpiresAt.UTC().Format(timeLayout)))
			buttons = append(buttons, button(fmt.Sprintf("Deactivate #%d", p.ID), Action{Kind: ActionPassOff, Target: p.ID}))
		}
		replies = append(replies, Reply{Text: strings.Join(lines, "\n"), Buttons: buttons})
	}
	replies = append(replies, say(
		"🎫 New guest pass",
		"",
		"Describe the guest (name, car plate or anything to identify them):",
	))
	return stay(dialogue.AwaitingGuestInfo{}, replies...), nil
}

func (b *Bot) guestInfo(in Input) (Result, error) {
	if n := utf8.RuneCountInString(in.Text); n < minGuestInfoLen || n > maxGuestInfoLen {
		return stay(in.State, say(fmt.Sprintf("The description must be %d to %d characters. Try again:", minGuestInfoLen, maxGuestInfoLen))), nil
	}
	return stay(dialogue.AwaitingGuestSpot{Info: in.Text}, say("Which spot will the guest use? (number)")), nil
}

// guestSpot accepts an own spot, a temporarily free one or an unregistered one
func (b *Bot) guestSpot(ctx context.Context, in Input, st dialogue.AwaitingGuestSpot) (Result, error) {
	spot, err := ParseSpot(in.Text)
	if err != nil {
		return stay(st, say(msgEnterSpot)), nil
	}

	mine, err := b.stores.Spots.ListByUser(ctx, in.UserID())
	if err != nil {
		return Result{}, err
	}
	own := false
	for _, s := range mine {
		if s.SpotNumber == spot {
			own = true
			break
		}
	}
	if !own {
		s, err := b.stores.Spots.Get(ctx, spot)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return Result{}, err
		case !s.IsTemporaryFree:
			return stay(st, say(fmt.Sprintf("Spot %d is neither yours nor free. Your spots: %s", spot, formatSpots(spotNumbers(mine))))), nil
		}
	}

	return stay(dialogue.AwaitingGuestDuration{Info: st.Info, Spot: &spot}, say(fmt.Sprintf("For how many hours? (1 to %d)", maxGuestHours))), nil
}

func (b *Bot) guestDuration(ctx context.Context, in Input, st dialogue.AwaitingGuestDuration) (Result, error) {
	hours, ok := parseBounded(in.Text, 1, maxGuestHours)
	if !ok {
		return stay(st, say(fmt.Sprintf("A pass lasts from 1 to %d hours:", maxGuestHours))), nil
	}

	pass := &models.GuestPass{
		HostUserID: in.UserID(),
		GuestInfo:  st.Info,
		SpotNumber: st.Spot,
		ExpiresAt:  in.Now.Add(time.Duration(hours) * time.Hour),
		IsActive:   true,
	}
	id, err := b.stores.GuestPasses.Create(ctx, pass)
	if err != nil {
		return Result{}, err
	}
	log.Info().Int64("user_id", in.UserID()).Int64("pass_id", id).Int("hours", hours).Msg("Guest pass created")

	return done(say(
		"✅ Guest pass issued!",
		"",
		"Guest: "+st.Info,
		"Spot: "+passSpot(pass),
		"Valid until: "+pass.ExpiresAt.UTC().Format("02.01.2006 15:04")+" UTC",
		fmt.Sprintf("Pass number: #%d", id),
	)), nil
}

func passSpot(p *models.GuestPass) string {
	if p.SpotNumber == nil {
		return "—"
	}
	return fmt.Sprint(*p.SpotNumber)
}
