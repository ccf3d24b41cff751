package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"parking-bot/internal/access"
	"parking-bot/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	spotUsage = "Usage:\n/spot info N\n/spot add N USER_ID\n/spot force N USER_ID\n/spot remove N [USER_ID]"
	modUsage  = "Usage:\n/mod add USER_ID\n/mod remove USER_ID\n/mod list"
)

var statusIcons = map[models.UserStatus]string{
	models.StatusApproved: "✅",
	models.StatusPending:  "⏳",
	models.StatusRejected: "❌",
	models.StatusBanned:   "🚫",
}

// pending lists registration requests with decision buttons
func (b *Bot) pending(ctx context.Context, in Input) (Result, error) {
	users, err := b.stores.Users.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		return Result{}, err
	}
	if len(users) == 0 {
		return stay(in.State, say("No pending requests.")), nil
	}

	replies := []Reply{say(fmt.Sprintf("📋 Pending requests: %d", len(users)))}
	for _, u := range users {
		replies = append(replies, Reply{
			Text: fmt.Sprintf("👤 %s (%s)\nID: %d\nSince: %s UTC", u.Name, u.DisplayHandle(), u.TelegramID, u.CreatedAt.UTC().Format(timeLayout)),
			Buttons: []Button{
				button("✅ Approve", Action{Kind: ActionApprove, Target: u.TelegramID}),
				button("❌ Reject", Action{Kind: ActionReject, Target: u.TelegramID}),
				button("🚫 Ban", Action{Kind: ActionBan, Target: u.TelegramID}),
			},
		})
	}
	return stay(in.State, replies...), nil
}

func (b *Bot) users(ctx context.Context, in Input) (Result, error) {
	users, err := b.stores.Users.ListAll(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(users) == 0 {
		return stay(in.State, say("No users yet.")), nil
	}

	lines := []string{fmt.Sprintf("👥 Users: %d", len(users)), ""}
	for _, u := range users {
		spots, err := b.stores.Spots.ListByUser(ctx, u.TelegramID)
		if err != nil {
			return Result{}, err
		}
		icon, ok := statusIcons[u.Status]
		if !ok {
			icon = "?"
		}
		lines = append(lines, fmt.Sprintf("%s %s (%s) [%s] id %d", icon, u.Name, u.DisplayHandle(), formatSpots(spotNumbers(spots)), u.TelegramID))
	}
	return stay(in.State, say(lines...)), nil
}

func (b *Bot) stats(ctx context.Context, in Input) (Result, error) {
	s, err := b.stores.Stats.Stats(ctx, in.Now)
	if err != nil {
		return Result{}, err
	}
	return stay(in.State, say(
		"📊 Statistics",
		"",
		fmt.Sprintf("Users: %d (approved %d, pending %d)", s.UsersTotal, s.UsersApproved, s.UsersPending),
		fmt.Sprintf("Spots: %d (free now %d)", s.SpotsTotal, s.SpotsFree),
		fmt.Sprintf("Messages: %d", s.MessagesTotal),
		fmt.Sprintf("Active guest passes: %d", s.GuestsActive),
		fmt.Sprintf("Pending reminders: %d", s.RemindersPending),
	)), nil
}

func (b *Bot) backup(ctx context.Context, in Input) (Result, error) {
	doc, err := b.backups.Build(ctx, in.Now)
	if err != nil {
		return Result{}, err
	}
	log.Info().Int64("user_id", in.UserID()).Int("bytes", len(doc.Content)).Msg("Manual backup")
	return stay(in.State, Reply{Text: "📦 Database backup", Document: doc}), nil
}

// restore replays an uploaded backup. Rows imported before a failure stay.
func (b *Bot) restore(ctx context.Context, in Input) (Result, error) {
	if in.Document == nil {
		return stay(in.State, say("Send the backup as a JSON file, or /cancel.")), nil
	}

	counts, err := b.backups.Restore(ctx, in.Document.Content)
	if errors.Is(err, ErrBadSnapshot) {
		return stay(in.State, say("❌ This is not a valid backup file. Send another one or /cancel.")), nil
	}

	lines := []string{
		fmt.Sprintf("Users: %d", counts.Users),
		fmt.Sprintf("Spots: %d", counts.ParkingSpots),
		fmt.Sprintf("Messages: %d", counts.Messages),
		fmt.Sprintf("Guest passes: %d", counts.GuestPasses),
		fmt.Sprintf("Announcements: %d", counts.Announcements),
		fmt.Sprintf("Reminders: %d", counts.Reminders),
		fmt.Sprintf("Moderators: %d", counts.Moderators),
	}
	if err != nil {
		log.Error().Err(err).Int64("user_id", in.UserID()).Msg("Restore failed")
		return done(say(append([]string{"❌ Restore stopped with an error: " + err.Error(), "Imported so far:"}, lines...)...)), nil
	}
	log.Info().Int64("user_id", in.UserID()).Msg("Backup restored")
	return done(say(append([]string{"✅ Backup restored:"}, lines...)...)), nil
}

// spotCommand lets staff inspect and edit spot ownership directly
func (b *Bot) spotCommand(ctx context.Context, in Input, args []string) (Result, error) {
	if len(args) < 2 {
		return stay(in.State, say(spotUsage)), nil
	}
	spot, err := ParseSpot(args[1])
	if err != nil {
		return stay(in.State, say(fmt.Sprintf("The spot number must be between %d and %d.", minSpot, maxSpot))), nil
	}
	var target int64
	if len(args) > 2 {
		target, err = strconv.ParseInt(args[2], 10, 64)
		if err != nil || target <= 0 {
			return stay(in.State, say("Invalid user id.")), nil
		}
	}

	switch strings.ToLower(args[0]) {
	case "info":
		owners, err := b.stores.Spots.Owners(ctx, spot)
		if err != nil {
			return Result{}, err
		}
		if len(owners) == 0 {
			return stay(in.State, say(fmt.Sprintf(msgUnregistered, spot))), nil
		}
		lines := []string{fmt.Sprintf("Spot %d owners:", spot)}
		for _, o := range owners {
			lines = append(lines, fmt.Sprintf("%s (%s) id %d", o.Name, o.DisplayHandle(), o.TelegramID))
		}
		return stay(in.State, say(lines...)), nil

	case "add":
		if target == 0 {
			return stay(in.State, say(spotUsage)), nil
		}
		result, err := b.stores.Spots.AssignExclusive(ctx, spot, target)
		if err != nil {
			return Result{}, err
		}
		switch result {
		case models.AssignTaken:
			return stay(in.State, say(fmt.Sprintf("Spot %d belongs to someone else. Use /spot force to add a co-owner.", spot))), nil
		case models.AssignAlreadyOwned:
			return stay(in.State, say(fmt.Sprintf("Spot %d already belongs to %d.", spot, target))), nil
		}
		log.Info().Int64("staff_id", in.UserID()).Int64("user_id", target).Int("spot", spot).Msg("Spot assigned")
		return stay(in.State, say(fmt.Sprintf("✅ Spot %d assigned to %d.", spot, target))), nil

	case "force":
		if target == 0 {
			return stay(in.State, say(spotUsage)), nil
		}
		added, err := b.stores.Spots.AddOwner(ctx, spot, target)
		if err != nil {
			return Result{}, err
		}
		if !added {
			return stay(in.State, say(fmt.Sprintf("Spot %d already belongs to %d.", spot, target))), nil
		}
		log.Info().Int64("staff_id", in.UserID()).Int64("user_id", target).Int("spot", spot).Msg("Co-owner added")
		return stay(in.State, say(fmt.Sprintf("✅ %d added as an owner of spot %d.", target, spot))), nil

	case "remove":
		if target == 0 {
			n, err := b.stores.Spots.RemoveAll(ctx, spot)
			if err != nil {
				return Result{}, err
			}
			return stay(in.State, say(fmt.Sprintf("Removed %d owner(s) of spot %d.", n, spot))), nil
		}
		removed, err := b.stores.Spots.Remove(ctx, spot, target)
		if err != nil {
			return Result{}, err
		}
		if !removed {
			return stay(in.State, say(fmt.Sprintf("%d does not own spot %d.", target, spot))), nil
		}
		return stay(in.State, say(fmt.Sprintf("Spot %d removed from %d.", spot, target))), nil
	}
	return stay(in.State, say(spotUsage)), nil
}

// modCommand manages the persisted moderator set
func (b *Bot) modCommand(ctx context.Context, in Input, args []string) (Result, error) {
	if len(args) == 0 {
		return stay(in.State, say(modUsage)), nil
	}

	if strings.ToLower(args[0]) == "list" {
		mods, err := b.stores.Moderators.List(ctx)
		if err != nil {
			return Result{}, err
		}
		if len(mods) == 0 {
			return stay(in.State, say("No moderators added.")), nil
		}
		lines := []string{"🛡 Moderators:"}
		for _, m := range mods {
			lines = append(lines, fmt.Sprintf("%d (added by %d)", m.TelegramID, m.AddedBy))
		}
		return stay(in.State, say(lines...)), nil
	}

	if len(args) < 2 {
		return stay(in.State, say(modUsage)), nil
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return stay(in.State, say("Invalid user id.")), nil
	}

	switch strings.ToLower(args[0]) {
	case "add":
		added, err := b.stores.Moderators.Add(ctx, id, in.UserID())
		if err != nil {
			return Result{}, err
		}
		if !added {
			return stay(in.State, say(fmt.Sprintf("%d is already a moderator.", id))), nil
		}
		log.Info().Int64("staff_id", in.UserID()).Int64("user_id", id).Msg("Moderator added")
		lines := []string{fmt.Sprintf("✅ %d is now a moderator.", id)}
		if err := b.notifier.Notify(ctx, id, Notification{Text: "🛡 You are now a moderator. Send /help for staff commands."}); err != nil {
			log.Warn().Err(err).Int64("user_id", id).Msg("Failed to notify new moderator")
			lines = append(lines, msgDeliveryWarning)
		}
		return stay(in.State, say(lines...)), nil
	case "remove":
		removed, err := b.stores.Moderators.Remove(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if !removed {
			return stay(in.State, say(fmt.Sprintf("%d is not a moderator.", id))), nil
		}
		log.Info().Int64("staff_id", in.UserID()).Int64("user_id", id).Msg("Moderator removed")
		return stay(in.State, say(fmt.Sprintf("%d is no longer a moderator.", id))), nil
	}
	return stay(in.State, say(modUsage)), nil
}

func helpReply(acc access.Access) Reply {
	lines := []string{
		"🅿️ Parking bot",
		"",
		MenuBlocked.Label() + " - tell the owner their car blocks you",
		MenuSOS.Label() + " - tell the owner their alarm is going off",
		MenuAway.Label() + " - mark your spot free while you are away",
		MenuGuest.Label() + " - issue a guest pass",
		MenuDirectory.Label() + " - check whether a spot is free",
		MenuMySpots.Label() + " - list your spots",
		MenuAddSpot.Label() + " / " + MenuRemoveSpot.Label() + " - manage your spots",
		MenuMessage.Label() + " - write to the owner of a spot",
		MenuReminder.Label() + " - set a reminder",
		"",
		"In the group chat mention the bot with a spot number to reach its owner.",
		"",
		"/start - register",
		"/cancel - cancel the current action",
	}
	if acc.IsStaff() {
		lines = append(lines, "", "Staff:", "/pending - registration requests", "/spot - manage spot owners")
	}
	if acc.IsAdmin {
		lines = append(lines,
			"/users - all users",
			"/stats - statistics",
			"/announce - message all residents",
			"/backup - download a backup",
			"/restore - restore from a backup",
			"/mod - manage moderators",
		)
	}
	return Reply{Text: strings.Join(lines, "\n"), Menu: acc.IsApproved}
}
