package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"parking-bot/internal/dialogue"
	"parking-bot/internal/models"
	"parking-bot/internal/repository"

	"github.com/rs/zerolog/log"
)

const (
	maxAwayHours    = 720
	maxMessageLen   = 1000
	maxReminderLen  = 200
	timeLayout      = "02.01 15:04"
	msgEnterSpot    = "Enter the spot number (1-9999):"
	msgNoSpots      = "You have no registered spots."
	msgNotYourSpot  = "Spot %d is not yours. Your spots: %s"
	msgUnregistered = "Spot %d is not registered."
)

var directoryListWords = []string{"all", "free", "все", "свободные"}

// reportSpot handles a blocked-exit or alarm report. An unregistered spot
// records nothing.
func (b *Bot) reportSpot(ctx context.Context, in Input, source models.MessageSource) (Result, error) {
	spot, err := ParseSpot(in.Text)
	if err != nil {
		return stay(in.State, say(msgEnterSpot)), nil
	}

	owners, err := b.stores.Spots.Owners(ctx, spot)
	if err != nil {
		return Result{}, err
	}
	if len(owners) == 0 {
		return done(say(fmt.Sprintf(msgUnregistered, spot), "Try another number from the menu.")), nil
	}

	mine, err := b.stores.Spots.ListByUser(ctx, in.UserID())
	if err != nil {
		return Result{}, err
	}
	senderSpots := "?"
	if len(mine) > 0 {
		senderSpots = formatSpots(spotNumbers(mine))
	}

	var body, notice string
	switch source {
	case models.SourceSOS:
		body = "SOS: car alarm is going off!"
		notice = fmt.Sprintf("🚨 ALARM!\n\nThe car alarm at your spot %d is going off. Please check your car.", spot)
	default:
		body = fmt.Sprintf("Blocked exit (sender spot: %s)", senderSpots)
		notice = fmt.Sprintf("🚫 Please move your car!\n\nYour car at spot %d is blocking an exit.\nReported by the owner of spot: %s", spot, senderSpots)
	}

	from := in.UserID()
	if _, err := b.stores.Messages.Create(ctx, &models.Message{FromUserID: &from, ToSpot: spot, MessageText: body, Source: source}); err != nil {
		return Result{}, err
	}
	log.Info().Int64("user_id", from).Int("spot", spot).Str("source", string(source)).Msg("Spot report")

	sent, _ := b.notifyOwners(ctx, owners, from, Notification{Text: notice})
	if sent == 0 {
		return done(say(fmt.Sprintf("⚠️ Could not notify the owner of spot %d.", spot))), nil
	}
	return done(say(fmt.Sprintf("✅ The owner of spot %d has been notified!", spot))), nil
}

func (b *Bot) awayToggle(ctx context.Context, in Input) (Result, error) {
	spots, err := b.stores.Spots.ListByUser(ctx, in.UserID())
	if err != nil {
		return Result{}, err
	}
	switch len(spots) {
	case 0:
		return done(say(msgNoSpots)), nil
	case 1:
		return b.toggleSpot(ctx, in, spots[0])
	}

	lines := []string{"Choose a spot (enter its number):"}
	for _, s := range spots {
		lines = append(lines, fmt.Sprintf("  %d — %s", s.SpotNumber, freeLabel(s)))
	}
	return stay(dialogue.AwaitingAwaySpot{}, say(lines...)), nil
}

func (b *Bot) awaySpot(ctx context.Context, in Input) (Result, error) {
	spot, err := ParseSpot(in.Text)
	if err != nil {
		return stay(in.State, say(msgEnterSpot)), nil
	}
	spots, err := b.stores.Spots.ListByUser(ctx, in.UserID())
	if err != nil {
		return Result{}, err
	}
	for _, s := range spots {
		if s.SpotNumber == spot {
			return b.toggleSpot(ctx, in, s)
		}
	}
	return stay(in.State, say(fmt.Sprintf(msgNotYourSpot, spot, formatSpots(spotNumbers(spots))))), nil
}

// toggleSpot marks a free spot occupied, or asks how long an occupied one stays free
func (b *Bot) toggleSpot(ctx context.Context, in Input, s *models.ParkingSpot) (Result, error) {
	if s.IsTemporaryFree {
		if err := b.stores.Spots.SetFree(ctx, s.SpotNumber, false, nil); err != nil {
			return Result{}, err
		}
		return done(say(fmt.Sprintf("🔵 Spot %d is marked occupied. Welcome back!", s.SpotNumber))), nil
	}
	return stay(dialogue.AwaitingAwayDuration{Spot: s.SpotNumber}, say(
		fmt.Sprintf("For how many hours are you leaving? (1 to %d)", maxAwayHours),
		"Or send 0 to leave it open-ended.",
	)), nil
}

func (b *Bot) awayDuration(ctx context.Context, in Input, st dialogue.AwaitingAwayDuration) (Result, error) {
	hours, ok := parseBounded(in.Text, 0, maxAwayHours)
	if !ok {
		return stay(st, say(fmt.Sprintf("Enter a number of hours from 0 to %d:", maxAwayHours))), nil
	}

	var until *time.Time
	info := ""
	if hours > 0 {
		t := in.Now.Add(time.Duration(hours) * time.Hour)
		until = &t
		info = " until " + t.UTC().Format(timeLayout) + " UTC"
	}
	if err := b.stores.Spots.SetFree(ctx, st.Spot, true, until); err != nil {
		return Result{}, err
	}
	log.Info().Int64("user_id", in.UserID()).Int("spot", st.Spot).Int("hours", hours).Msg("Spot marked free")

	return done(say(
		fmt.Sprintf("🟢 Spot %d is marked free%s.", st.Spot, info),
		fmt.Sprintf("When you are back, press \"%s\" again.", MenuAway.Label()),
	)), nil
}

// directoryLookup shows a spot status without revealing its owner, or lists free spots
func (b *Bot) directoryLookup(ctx context.Context, in Input) (Result, error) {
	word := strings.ToLower(in.Text)
	for _, w := range directoryListWords {
		if word == w {
			return b.freeSpots(ctx)
		}
	}

	spot, err := ParseSpot(in.Text)
	if err != nil {
		return stay(in.State, say("Enter a spot number or \"all\":")), nil
	}
	s, err := b.stores.Spots.Get(ctx, spot)
	if errors.Is(err, repository.ErrNotFound) {
		return done(say(fmt.Sprintf(msgUnregistered, spot))), nil
	}
	if err != nil {
		return Result{}, err
	}
	if s.IsTemporaryFree {
		return done(say(fmt.Sprintf("🟢 Spot %d is temporarily free%s", spot, untilLabel(s.FreeUntil)))), nil
	}
	return done(say(fmt.Sprintf("🔵 Spot %d is occupied", spot))), nil
}

func (b *Bot) freeSpots(ctx context.Context) (Result, error) {
	free, err := b.stores.Spots.ListFree(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(free) == 0 {
		return done(say("No spots are temporarily free.")), nil
	}
	lines := []string{"🟢 Free spots:"}
	for _, s := range free {
		lines = append(lines, fmt.Sprintf("Spot %d%s", s.SpotNumber, untilLabel(s.FreeUntil)))
	}
	return done(say(lines...)), nil
}

func (b *Bot) mySpots(ctx context.Context, in Input) (Result, error) {
	spots, err := b.stores.Spots.ListByUser(ctx, in.UserID())
	if err != nil {
		return Result{}, err
	}
	if len(spots) == 0 {
		return done(say(msgNoSpots)), nil
	}
	lines := []string{"📍 Your spots:"}
	for _, s := range spots {
		lines = append(lines, fmt.Sprintf("Spot %d — %s%s", s.SpotNumber, freeLabel(s), untilLabel(s.FreeUntil)))
	}
	return done(say(lines...)), nil
}

// addSpot sends a request for one more spot to staff
func (b *Bot) addSpot(ctx context.Context, in Input) (Result, error) {
	spot, err := ParseSpot(in.Text)
	if err != nil {
		return stay(in.State, say(msgEnterSpot)), nil
	}
	owners, err := b.stores.Spots.Owners(ctx, spot)
	if err != nil {
		return Result{}, err
	}
	for _, o := range owners {
		if o.TelegramID == in.UserID() {
			return done(say(fmt.Sprintf("Spot %d is already yours.", spot))), nil
		}
	}

	id := in.UserID()
	lines := []string{
		"➕ Spot request",
		"",
		"From: " + in.Sender.FullName + " (" + handle(in.Sender.Username) + ")",
		"ID: " + strconv.FormatInt(id, 10),
		fmt.Sprintf("Spot: %d", spot),
	}
	if len(owners) > 0 {
		lines = append(lines, "⚠️ Already registered to another resident")
	}
	notice := Notification{
		Text: strings.Join(lines, "\n"),
		Buttons: []Button{
			button(fmt.Sprintf("Grant %d", spot), Action{Kind: ActionGrant, Target: id, Spots: []int{spot}}),
			button(fmt.Sprintf("Deny %d", spot), Action{Kind: ActionDeny, Target: id, Spots: []int{spot}}),
		},
	}

	staff, err := b.access.StaffIDs(ctx)
	if err != nil {
		return Result{}, err
	}
	failed := b.notifyAll(ctx, staff, notice)
	reply := []string{fmt.Sprintf("✅ Request for spot %d sent to staff.", spot)}
	if len(staff) == 0 || failed == len(staff) {
		reply = append(reply, "⚠️ Staff could not be notified right now.")
	}
	return done(say(reply...)), nil
}

func (b *Bot) removeSpotStart(ctx context.Context, in Input) (Result, error) {
	spots, err := b.stores.Spots.ListByUser(ctx, in.UserID())
	if err != nil {
		return Result{}, err
	}
	if len(spots) == 0 {
		return done(say(msgNoSpots)), nil
	}
	return stay(dialogue.AwaitingRemoveSpot{}, say(
		"Which spot do you want to remove? Your spots: "+formatSpots(spotNumbers(spots)),
	)), nil
}

func (b *Bot) removeSpot(ctx context.Context, in Input) (Result, error) {
	spot, err := ParseSpot(in.Text)
	if err != nil {
		return stay(in.State, say(msgEnterSpot)), nil
	}
	removed, err := b.stores.Spots.Remove(ctx, spot, in.UserID())
	if err != nil {
		return Result{}, err
	}
	if !removed {
		spots, err := b.stores.Spots.ListByUser(ctx, in.UserID())
		if err != nil {
			return Result{}, err
		}
		return stay(in.State, say(fmt.Sprintf(msgNotYourSpot, spot, formatSpots(spotNumbers(spots))))), nil
	}
	log.Info().Int64("user_id", in.UserID()).Int("spot", spot).Msg("Spot removed by owner")
	return done(say(fmt.Sprintf("➖ Spot %d removed from your account.", spot))), nil
}

func (b *Bot) messageSpot(ctx context.Context, in Input) (Result, error) {
	spot, err := ParseSpot(in.Text)
	if err != nil {
		return stay(in.State, say(msgEnterSpot)), nil
	}
	owners, err := b.stores.Spots.Owners(ctx, spot)
	if err != nil {
		return Result{}, err
	}
	if len(owners) == 0 {
		return done(say(fmt.Sprintf(msgUnregistered, spot))), nil
	}
	return stay(dialogue.AwaitingMessageText{Spot: spot}, say(fmt.Sprintf("Type your message for the owner of spot %d:", spot))), nil
}

// messageText relays a private message to the owners with a reply button
func (b *Bot) messageText(ctx context.Context, in Input, st dialogue.AwaitingMessageText) (Result, error) {
	if n := utf8.RuneCountInString(in.Text); n == 0 || n > maxMessageLen {
		return stay(st, say(fmt.Sprintf("The message must be 1 to %d characters:", maxMessageLen))), nil
	}
	owners, err := b.stores.Spots.Owners(ctx, st.Spot)
	if err != nil {
		return Result{}, err
	}
	if len(owners) == 0 {
		return done(say(fmt.Sprintf(msgUnregistered, st.Spot))), nil
	}

	from := in.UserID()
	id, err := b.stores.Messages.Create(ctx, &models.Message{FromUserID: &from, ToSpot: st.Spot, MessageText: in.Text, Source: models.SourcePrivate})
	if err != nil {
		return Result{}, err
	}

	notice := Notification{
		Text:    fmt.Sprintf("✉️ Message about your spot %d:\n«%s»", st.Spot, in.Text),
		Buttons: []Button{button("↩️ Reply", Action{Kind: ActionReply, Target: id})},
	}
	sent, _ := b.notifyOwners(ctx, owners, from, notice)
	if sent == 0 {
		return done(say(fmt.Sprintf("⚠️ Could not deliver the message to the owner of spot %d.", st.Spot))), nil
	}
	return done(say(fmt.Sprintf("✅ Message sent to the owner of spot %d.", st.Spot))), nil
}

// ownerReply stores the owner's answer and relays it to the original sender
func (b *Bot) ownerReply(ctx context.Context, in Input, st dialogue.AwaitingReply) (Result, error) {
	if n := utf8.RuneCountInString(in.Text); n == 0 || n > maxMessageLen {
		return stay(st, say(fmt.Sprintf("The reply must be 1 to %d characters:", maxMessageLen))), nil
	}
	msg, err := b.stores.Messages.GetByID(ctx, st.MessageID)
	if errors.Is(err, repository.ErrNotFound) {
		return done(say("This message no longer exists.")), nil
	}
	if err != nil {
		return Result{}, err
	}
	if err := b.stores.Messages.SetReply(ctx, msg.ID, in.Text); err != nil {
		return Result{}, err
	}
	if msg.FromUserID == nil {
		return done(say("Reply saved.")), nil
	}

	notice := Notification{Text: fmt.Sprintf("↩️ Reply from the owner of spot %d:\n«%s»", msg.ToSpot, in.Text)}
	if err := b.notifier.Notify(ctx, *msg.FromUserID, notice); err != nil {
		log.Warn().Err(err).Int64("user_id", *msg.FromUserID).Msg("Failed to relay reply")
		return done(say("Reply saved, but the sender could not be notified.")), nil
	}
	return done(say("✅ Reply sent.")), nil
}

func (b *Bot) reminderStart(ctx context.Context, in Input) (Result, error) {
	pending, err := b.stores.Reminders.ListPending(ctx, in.UserID())
	if err != nil {
		return Result{}, err
	}
	var replies []Reply
	if len(pending) > 0 {
		lines := []string{"⏰ Your reminders:"}
		for _, r := range pending {
			lines = append(lines, fmt.Sprintf("#%d spot %d at %s UTC: %s", r.ID, r.SpotNumber, r.RemindAt.UTC().Format(timeLayout), r.Text))
		}
		replies = append(replies, say(lines...))
	}
	replies = append(replies, say("Which spot is the reminder about?"))
	return stay(dialogue.AwaitingReminderSpot{}, replies...), nil
}

func (b *Bot) reminderSpot(in Input) (Result, error) {
	spot, err := ParseSpot(in.Text)
	if err != nil {
		return stay(in.State, say(msgEnterSpot)), nil
	}
	return stay(dialogue.AwaitingReminderDelay{Spot: spot}, say(fmt.Sprintf("In how many hours? (1 to %d)", maxAwayHours))), nil
}

func (b *Bot) reminderDelay(in Input, st dialogue.AwaitingReminderDelay) (Result, error) {
	hours, ok := parseBounded(in.Text, 1, maxAwayHours)
	if !ok {
		return stay(st, say(fmt.Sprintf("Enter a number of hours from 1 to %d:", maxAwayHours))), nil
	}
	return stay(dialogue.AwaitingReminderText{Spot: st.Spot, Hours: hours}, say("What should I remind you about?")), nil
}

func (b *Bot) reminderText(ctx context.Context, in Input, st dialogue.AwaitingReminderText) (Result, error) {
	if n := utf8.RuneCountInString(in.Text); n == 0 || n > maxReminderLen {
		return stay(st, say(fmt.Sprintf("The reminder must be 1 to %d characters:", maxReminderLen))), nil
	}
	at := in.Now.Add(time.Duration(st.Hours) * time.Hour)
	id, err := b.stores.Reminders.Create(ctx, &models.Reminder{
		UserID:     in.UserID(),
		SpotNumber: st.Spot,
		Text:       in.Text,
		RemindAt:   at,
	})
	if err != nil {
		return Result{}, err
	}
	return done(say(fmt.Sprintf("⏰ Reminder #%d set for %s UTC.", id, at.UTC().Format(timeLayout)))), nil
}

func spotNumbers(spots []*models.ParkingSpot) []int {
	out := make([]int, len(spots))
	for i, s := range spots {
		out[i] = s.SpotNumber
	}
	return out
}

func freeLabel(s *models.ParkingSpot) string {
	if s.IsTemporaryFree {
		return "🟢 free (away)"
	}
	return "🔵 occupied"
}

func untilLabel(t *time.Time) string {
	if t == nil {
		return ""
	}
	return " until " + t.UTC().Format(timeLayout)
}
