package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"parking-bot/internal/dialogue"
	"parking-bot/internal/models"
	"parking-bot/internal/repository"

	"github.com/rs/zerolog/log"
)

const msgDeliveryWarning = "⚠️ The resident could not be notified."

func (b *Bot) handleAction(ctx context.Context, in Input, data string) (Result, error) {
	action, err := ParseAction(data)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", in.UserID()).Msg("Malformed action")
		return stay(in.State, say("This button is no longer valid.")), nil
	}

	switch action.Kind {
	case ActionReply:
		return b.replyAction(ctx, in, action)
	case ActionPassOff:
		return b.passOffAction(ctx, in, action)
	}

	if !in.Access.IsStaff() {
		return stay(in.State, say(msgStaffOnly)), nil
	}

	var res Result
	switch action.Kind {
	case ActionApprove:
		res, err = b.approve(ctx, in, action)
	case ActionReject:
		res, err = b.reject(ctx, in, action)
	case ActionBan:
		res, err = b.ban(ctx, in, action)
	case ActionGrant:
		res, err = b.grant(ctx, in, action)
	case ActionDeny:
		res, err = b.deny(ctx, in, action)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return stay(in.State, say("User not found.")), nil
	}
	return res, err
}

// approve marks the user approved and claims each requested spot exclusively.
// Spots already owned by others are reported, not assigned.
func (b *Bot) approve(ctx context.Context, in Input, a Action) (Result, error) {
	if err := b.stores.Users.SetStatus(ctx, a.Target, models.StatusApproved); err != nil {
		return Result{}, err
	}

	var assigned, taken []int
	for _, spot := range a.Spots {
		result, err := b.stores.Spots.AssignExclusive(ctx, spot, a.Target)
		if err != nil {
			return Result{}, err
		}
		if result == models.AssignTaken {
			taken = append(taken, spot)
			continue
		}
		assigned = append(assigned, spot)
	}
	log.Info().Int64("user_id", a.Target).Int64("staff_id", in.UserID()).Ints("assigned", assigned).Ints("taken", taken).Msg("User approved")

	note := []string{"🎉 Your registration is approved!"}
	if len(assigned) > 0 {
		note = append(note, "Spots assigned to you: "+formatSpots(assigned))
	}
	if len(taken) > 0 {
		note = append(note, "Already taken, not assigned: "+formatSpots(taken))
	}
	note = append(note, "", "Use the menu to manage your parking.")

	lines := []string{fmt.Sprintf("✅ Approved %d.", a.Target)}
	if len(a.Spots) > 0 {
		lines = append(lines, "Assigned: "+formatSpots(assigned))
	}
	if len(taken) > 0 {
		lines = append(lines, "⚠️ Already taken: "+formatSpots(taken))
	}
	if err := b.notifier.Notify(ctx, a.Target, Notification{Text: strings.Join(note, "\n"), Menu: true}); err != nil {
		log.Warn().Err(err).Int64("user_id", a.Target).Msg("Failed to notify approved user")
		lines = append(lines, msgDeliveryWarning)
	}
	return stay(in.State, say(lines...)), nil
}

func (b *Bot) reject(ctx context.Context, in Input, a Action) (Result, error) {
	if err := b.stores.Users.SetStatus(ctx, a.Target, models.StatusRejected); err != nil {
		return Result{}, err
	}
	log.Info().Int64("user_id", a.Target).Int64("staff_id", in.UserID()).Msg("User rejected")

	lines := []string{fmt.Sprintf("❌ Rejected %d.", a.Target)}
	if err := b.notifier.Notify(ctx, a.Target, Notification{Text: "❌ Your registration request was rejected."}); err != nil {
		log.Warn().Err(err).Int64("user_id", a.Target).Msg("Failed to notify rejected user")
		lines = append(lines, msgDeliveryWarning)
	}
	return stay(in.State, say(lines...)), nil
}

func (b *Bot) ban(ctx context.Context, in Input, a Action) (Result, error) {
	if err := b.stores.Users.SetStatus(ctx, a.Target, models.StatusBanned); err != nil {
		return Result{}, err
	}
	log.Info().Int64("user_id", a.Target).Int64("staff_id", in.UserID()).Msg("User banned")
	return stay(in.State, say(fmt.Sprintf("🚫 Banned %d.", a.Target))), nil
}

// grant adds the requester as co-owner. Only a new ownership row notifies anyone.
func (b *Bot) grant(ctx context.Context, in Input, a Action) (Result, error) {
	if len(a.Spots) != 1 {
		return stay(in.State, say("This button is no longer valid.")), nil
	}
	spot := a.Spots[0]

	requester, err := b.stores.Users.GetByID(ctx, a.Target)
	if err != nil {
		return Result{}, err
	}
	prior, err := b.stores.Spots.Owners(ctx, spot)
	if err != nil {
		return Result{}, err
	}
	added, err := b.stores.Spots.AddOwner(ctx, spot, a.Target)
	if err != nil {
		return Result{}, err
	}
	if !added {
		return stay(in.State, say(fmt.Sprintf("Spot %d is already granted to %s.", spot, requester.Name))), nil
	}
	log.Info().Int64("user_id", a.Target).Int("spot", spot).Int64("staff_id", in.UserID()).Msg("Spot granted")

	lines := []string{fmt.Sprintf("✅ Spot %d granted to %s.", spot, requester.Name)}
	if err := b.notifier.Notify(ctx, a.Target, Notification{Text: fmt.Sprintf("✅ Spot %d is now registered to you.", spot)}); err != nil {
		log.Warn().Err(err).Int64("user_id", a.Target).Msg("Failed to notify grantee")
		lines = append(lines, msgDeliveryWarning)
	}
	notice := Notification{Text: fmt.Sprintf("ℹ️ %s was added as a co-owner of spot %d.", requester.Name, spot)}
	if _, failed := b.notifyOwners(ctx, prior, a.Target, notice); failed > 0 {
		lines = append(lines, fmt.Sprintf("⚠️ %d previous owner(s) could not be notified.", failed))
	}
	return stay(in.State, say(lines...)), nil
}

// deny refuses a spot to the requester. Only the requester is told.
func (b *Bot) deny(ctx context.Context, in Input, a Action) (Result, error) {
	if len(a.Spots) != 1 {
		return stay(in.State, say("This button is no longer valid.")), nil
	}
	spot := a.Spots[0]
	log.Info().Int64("user_id", a.Target).Int("spot", spot).Int64("staff_id", in.UserID()).Msg("Spot denied")

	lines := []string{fmt.Sprintf("❌ Spot %d denied for %d.", spot, a.Target)}
	if err := b.notifier.Notify(ctx, a.Target, Notification{Text: fmt.Sprintf("❌ Your request for spot %d was denied.", spot)}); err != nil {
		log.Warn().Err(err).Int64("user_id", a.Target).Msg("Failed to notify requester")
		lines = append(lines, msgDeliveryWarning)
	}
	return stay(in.State, say(lines...)), nil
}

// replyAction lets an owner answer a relayed message
func (b *Bot) replyAction(ctx context.Context, in Input, a Action) (Result, error) {
	if !in.Access.IsApproved {
		return done(say(msgNotRegistered)), nil
	}
	msg, err := b.stores.Messages.GetByID(ctx, a.Target)
	if errors.Is(err, repository.ErrNotFound) {
		return stay(in.State, say("This message no longer exists.")), nil
	}
	if err != nil {
		return Result{}, err
	}
	if msg.FromUserID == nil {
		return stay(in.State, say("The sender of this message cannot receive replies.")), nil
	}
	owns, err := b.ownsSpot(ctx, in.UserID(), msg.ToSpot)
	if err != nil {
		return Result{}, err
	}
	if !owns {
		return stay(in.State, say("Only the owner of the spot can reply.")), nil
	}
	return stay(dialogue.AwaitingReply{MessageID: msg.ID}, say(fmt.Sprintf("Type your reply about spot %d:", msg.ToSpot))), nil
}

func (b *Bot) passOffAction(ctx context.Context, in Input, a Action) (Result, error) {
	ok, err := b.stores.GuestPasses.Deactivate(ctx, a.Target, in.UserID())
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return stay(in.State, say("This guest pass is not active.")), nil
	}
	log.Info().Int64("user_id", in.UserID()).Int64("pass_id", a.Target).Msg("Guest pass deactivated")
	return stay(in.State, say(fmt.Sprintf("🎫 Guest pass #%d deactivated.", a.Target))), nil
}

func (b *Bot) ownsSpot(ctx context.Context, userID int64, spot int) (bool, error) {
	spots, err := b.stores.Spots.ListByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, s := range spots {
		if s.SpotNumber == spot {
			return true, nil
		}
	}
	return false, nil
}
