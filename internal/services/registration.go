package services

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"parking-bot/internal/dialogue"
	"parking-bot/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	minNameLen = 2
	maxNameLen = 50
)

var finishWords = []string{"done", "finish", "готово"}

func (b *Bot) start(_ context.Context, in Input) (Result, error) {
	switch in.Access.Status {
	case models.StatusApproved:
		return done(Reply{Text: "You are already registered! Use the menu below.", Menu: true}), nil
	case models.StatusPending:
		return done(say("⏳ Your request is under review. Please wait for approval.")), nil
	case models.StatusRejected:
		return done(say("❌ Your request was rejected.")), nil
	case models.StatusBanned:
		return done(say(msgBanned)), nil
	}
	return stay(dialogue.AwaitingName{}, say(
		"🅿️ Parking bot for residents",
		"",
		"To register, enter your name (how neighbours should address you):",
	)), nil
}

func (b *Bot) registrationName(in Input) (Result, error) {
	name := in.Text
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return stay(in.State, say(fmt.Sprintf("The name must be %d to %d characters. Try again:", minNameLen, maxNameLen))), nil
	}
	return stay(dialogue.AwaitingSpots{Name: name}, say(
		fmt.Sprintf("Great, %s! Now enter your parking spot numbers one per message.", name),
		"Send \"done\" when finished.",
	)), nil
}

func (b *Bot) registrationSpot(ctx context.Context, in Input, st dialogue.AwaitingSpots) (Result, error) {
	if slices.Contains(finishWords, strings.ToLower(in.Text)) {
		if len(st.Spots) == 0 {
			return stay(st, say("Enter at least one spot number before finishing:")), nil
		}
		return b.finishRegistration(ctx, in, st)
	}

	spot, err := ParseSpot(in.Text)
	if err != nil {
		return stay(st, say(fmt.Sprintf("The spot number must be between %d and %d, or send \"done\":", minSpot, maxSpot))), nil
	}
	if slices.Contains(st.Spots, spot) {
		return stay(st, say(fmt.Sprintf("Spot %d is already in your list: %s", spot, formatSpots(st.Spots)))), nil
	}

	owners, err := b.stores.Spots.Owners(ctx, spot)
	if err != nil {
		return Result{}, fmt.Errorf("failed to check spot owners: %w", err)
	}

	next := dialogue.AwaitingSpots{
		Name:      st.Name,
		Spots:     append(slices.Clone(st.Spots), spot),
		Conflicts: slices.Clone(st.Conflicts),
	}
	msg := fmt.Sprintf("Spot %d added.", spot)
	if ownedByOthers(owners, in.UserID()) {
		next.Conflicts = append(next.Conflicts, spot)
		msg = fmt.Sprintf("Spot %d is already registered to another resident. It is added and will be reviewed by staff.", spot)
	}
	return stay(next, say(msg, "Your spots: "+formatSpots(next.Spots), "Enter another number or send \"done\".")), nil
}

func (b *Bot) finishRegistration(ctx context.Context, in Input, st dialogue.AwaitingSpots) (Result, error) {
	id := in.UserID()
	status := models.StatusPending
	if in.Access.IsStaff() {
		status = models.StatusApproved
	}

	user := &models.User{
		TelegramID: id,
		Username:   optional(in.Sender.Username),
		Name:       st.Name,
		Status:     status,
	}
	if err := b.stores.Users.Upsert(ctx, user); err != nil {
		return Result{}, err
	}
	if err := b.stores.Users.SetStatus(ctx, id, status); err != nil {
		return Result{}, err
	}

	if in.Access.IsStaff() {
		for _, spot := range st.Spots {
			if _, err := b.stores.Spots.AddOwner(ctx, spot, id); err != nil {
				return Result{}, err
			}
		}
		log.Info().Int64("user_id", id).Ints("spots", st.Spots).Msg("Staff registered")
		return done(Reply{
			Text: fmt.Sprintf("👑 Registered as staff.\nName: %s\nSpots: %s", st.Name, formatSpots(st.Spots)),
			Menu: true,
		}), nil
	}

	staff, err := b.access.StaffIDs(ctx)
	if err != nil {
		return Result{}, err
	}
	failed := b.notifyAll(ctx, staff, registrationNotice(in, st))
	log.Info().Int64("user_id", id).Ints("spots", st.Spots).Ints("conflicts", st.Conflicts).Msg("Registration submitted")

	lines := []string{
		"✅ Request sent!",
		"",
		"Name: " + st.Name,
		"Spots: " + formatSpots(st.Spots),
	}
	if len(st.Conflicts) > 0 {
		lines = append(lines, "Needs review (already registered): "+formatSpots(st.Conflicts))
	}
	lines = append(lines, "", "Wait for approval by staff.")
	if len(staff) == 0 || failed == len(staff) {
		lines = append(lines, "⚠️ Staff could not be notified right now. Your request stays in the review queue.")
	}
	return done(say(lines...)), nil
}

// registrationNotice is the staff message for a new request
func registrationNotice(in Input, st dialogue.AwaitingSpots) Notification {
	id := in.UserID()
	clean := withoutSpots(st.Spots, st.Conflicts)

	lines := []string{
		"📋 New registration request",
		"",
		"Name: " + st.Name,
		"Username: " + handle(in.Sender.Username),
		"ID: " + strconv.FormatInt(id, 10),
		"Spots: " + formatSpots(st.Spots),
	}
	if len(st.Conflicts) > 0 {
		lines = append(lines, "⚠️ Already registered to someone else: "+formatSpots(st.Conflicts))
	}

	buttons := []Button{
		button("✅ Approve", Action{Kind: ActionApprove, Target: id, Spots: clean}),
		button("❌ Reject", Action{Kind: ActionReject, Target: id}),
		button("🚫 Ban", Action{Kind: ActionBan, Target: id}),
	}
	for _, spot := range st.Conflicts {
		buttons = append(buttons,
			button(fmt.Sprintf("Grant %d", spot), Action{Kind: ActionGrant, Target: id, Spots: []int{spot}}),
			button(fmt.Sprintf("Deny %d", spot), Action{Kind: ActionDeny, Target: id, Spots: []int{spot}}),
		)
	}
	return Notification{Text: strings.Join(lines, "\n"), Buttons: buttons}
}

func formatSpots(spots []int) string {
	if len(spots) == 0 {
		return "—"
	}
	parts := make([]string, len(spots))
	for i, s := range spots {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ", ")
}

func withoutSpots(spots, drop []int) []int {
	var out []int
	for _, s := range spots {
		if !slices.Contains(drop, s) {
			out = append(out, s)
		}
	}
	return out
}

func ownedByOthers(owners []*models.User, id int64) bool {
	for _, o := range owners {
		if o.TelegramID != id {
			return true
		}
	}
	return false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func handle(username string) string {
	if username == "" {
		return "—"
	}
	return "@" + username
}
