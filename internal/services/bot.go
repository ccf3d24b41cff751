package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"parking-bot/internal/access"
	"parking-bot/internal/dialogue"
	"parking-bot/internal/metrics"
	"parking-bot/internal/models"
	"parking-bot/internal/ratelimit"

	"github.com/rs/zerolog/log"
)

// ErrNoSender is returned for updates without an author
var ErrNoSender = errors.New("update has no sender")

const (
	msgRateLimited    = "Too many messages. Wait a minute."
	msgFailure        = "Something went wrong. Please try again later."
	msgBanned         = "🚫 You are blocked."
	msgNotRegistered  = "You are not registered. Use /start"
	msgNotAvailable   = "This command is not available."
	msgUnknownCommand = "Unknown command. Send /help for the list."
	msgUseMenu        = "Use the menu below."
	msgStaffOnly      = "Only for staff."
)

// BotDeps are the collaborators of the bot
type BotDeps struct {
	Stores   Stores
	Access   *access.Resolver
	States   dialogue.Store
	Limiter  *ratelimit.Limiter
	Notifier Notifier
	Backups  *BackupService
	// Username is the bot handle used to recognise group mentions
	Username string
	Now      func() time.Time
}

// Bot turns inbound updates into replies and notifications
type Bot struct {
	stores   Stores
	access   *access.Resolver
	states   dialogue.Store
	limiter  *ratelimit.Limiter
	notifier Notifier
	backups  *BackupService
	username string
	mention  *regexp.Regexp
	now      func() time.Time
	locks    keyedMutex
}

// NewBot creates a bot
func NewBot(deps BotDeps) *Bot {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	username := strings.TrimPrefix(deps.Username, "@")
	return &Bot{
		stores:   deps.Stores,
		access:   deps.Access,
		states:   deps.States,
		limiter:  deps.Limiter,
		notifier: deps.Notifier,
		backups:  deps.Backups,
		username: username,
		mention:  mentionPattern(username),
		now:      now,
		locks:    keyedMutex{locks: make(map[int64]*keyedEntry)},
	}
}

// Handle processes one update and returns the replies for its author.
// Updates of the same identity are processed one at a time.
func (b *Bot) Handle(ctx context.Context, upd Update) ([]Reply, error) {
	if upd.From.ID == 0 {
		return nil, ErrNoSender
	}
	if upd.Kind == "" {
		upd.Kind = UpdateMessage
	}
	if upd.Chat == "" {
		upd.Chat = ChatPrivate
	}
	metrics.UpdatesTotal.WithLabelValues(string(upd.Kind)).Inc()

	id := upd.From.ID
	now := b.now()
	if upd.Kind != UpdateAction && !b.limiter.Allow(id, now) {
		metrics.RateLimitedTotal.Inc()
		log.Debug().Int64("user_id", id).Msg("Rate limited")
		return []Reply{say(msgRateLimited)}, nil
	}

	unlock := b.locks.Lock(id)
	defer unlock()

	acc, err := b.access.Resolve(ctx, id)
	if err != nil {
		log.Error().Err(err).Int64("user_id", id).Msg("Failed to resolve access")
		return []Reply{say(msgFailure)}, nil
	}

	in := Input{
		Sender:   upd.From,
		Access:   acc,
		Text:     strings.TrimSpace(upd.Text),
		Document: upd.Document,
		Now:      now,
	}

	if upd.Chat == ChatGroup {
		res, err := b.handleGroup(ctx, in, upd.Mentioned)
		if err != nil {
			log.Error().Err(err).Int64("user_id", id).Msg("Failed to handle group message")
			return []Reply{say(msgFailure)}, nil
		}
		return res.Replies, nil
	}

	state, err := b.states.Get(ctx, id)
	if err != nil {
		log.Error().Err(err).Int64("user_id", id).Msg("Failed to load dialogue state")
		return []Reply{say(msgFailure)}, nil
	}
	in.State = state

	res, err := b.dispatch(ctx, upd, in)
	if err != nil {
		log.Error().Err(err).Int64("user_id", id).Str("kind", string(upd.Kind)).Msg("Failed to handle update")
		return []Reply{say(msgFailure)}, nil
	}

	if err := b.states.Set(ctx, id, res.Next); err != nil {
		log.Error().Err(err).Int64("user_id", id).Msg("Failed to save dialogue state")
	}
	return res.Replies, nil
}

// dispatch routes a private update: action, slash command, active dialogue, menu item
func (b *Bot) dispatch(ctx context.Context, upd Update, in Input) (Result, error) {
	if in.Access.Status == models.StatusBanned && !in.Access.IsStaff() {
		return done(say(msgBanned)), nil
	}

	if upd.Kind == UpdateAction {
		return b.handleAction(ctx, in, upd.Data)
	}

	if cmd, args, known, ok := ParseCommand(in.Text); ok {
		if !known {
			return stay(in.State, say(msgUnknownCommand)), nil
		}
		if in.Access.Role() < cmd.MinRole() {
			return stay(in.State, say(msgNotAvailable)), nil
		}
		return b.handleCommand(ctx, in, cmd, args)
	}

	if in.State != nil && !menuInterrupts(in.State, in.Text) {
		return b.handleState(ctx, in)
	}

	if item := ParseMenuItem(in.Text); item != MenuNone {
		if item == MenuHelp {
			return done(helpReply(in.Access)), nil
		}
		if !in.Access.IsApproved {
			return done(say(msgNotRegistered)), nil
		}
		return b.handleMenu(ctx, in, item)
	}

	if !in.Access.IsApproved {
		return done(say(msgNotRegistered)), nil
	}
	return done(Reply{Text: msgUseMenu, Menu: true}), nil
}

// menuInterrupts reports whether a menu button pressed mid-dialogue starts its
// own flow. Registration keeps its prompts until finished or cancelled.
func menuInterrupts(state dialogue.State, text string) bool {
	switch state.(type) {
	case dialogue.AwaitingName, dialogue.AwaitingSpots:
		return false
	}
	return MenuButton(text) != MenuNone
}

func (b *Bot) handleCommand(ctx context.Context, in Input, cmd Command, args []string) (Result, error) {
	switch cmd {
	case CmdStart:
		return b.start(ctx, in)
	case CmdHelp:
		return stay(in.State, helpReply(in.Access)), nil
	case CmdCancel:
		return done(Reply{Text: "Cancelled.", Menu: in.Access.IsApproved}), nil
	case CmdPending:
		return b.pending(ctx, in)
	case CmdUsers:
		return b.users(ctx, in)
	case CmdStats:
		return b.stats(ctx, in)
	case CmdAnnounce:
		return stay(dialogue.AwaitingAnnouncement{}, say("📢 Enter the announcement text for all residents:")), nil
	case CmdBackup:
		return b.backup(ctx, in)
	case CmdRestore:
		return stay(dialogue.AwaitingRestoreFile{}, say("Send the JSON backup file:")), nil
	case CmdSpot:
		return b.spotCommand(ctx, in, args)
	case CmdMod:
		return b.modCommand(ctx, in, args)
	}
	return stay(in.State, say(msgUnknownCommand)), nil
}

func (b *Bot) handleState(ctx context.Context, in Input) (Result, error) {
	switch st := in.State.(type) {
	case dialogue.AwaitingName:
		return b.registrationName(in)
	case dialogue.AwaitingSpots:
		return b.registrationSpot(ctx, in, st)
	case dialogue.AwaitingAnnouncement:
		if !in.Access.IsAdmin {
			return done(say(msgNotAvailable)), nil
		}
		return b.announce(ctx, in)
	case dialogue.AwaitingRestoreFile:
		if !in.Access.IsAdmin {
			return done(say(msgNotAvailable)), nil
		}
		return b.restore(ctx, in)
	}

	if !in.Access.IsApproved {
		return done(say(msgNotRegistered)), nil
	}

	switch st := in.State.(type) {
	case dialogue.AwaitingBlockedSpot:
		return b.reportSpot(ctx, in, models.SourceBlocked)
	case dialogue.AwaitingSOSSpot:
		return b.reportSpot(ctx, in, models.SourceSOS)
	case dialogue.AwaitingAwaySpot:
		return b.awaySpot(ctx, in)
	case dialogue.AwaitingAwayDuration:
		return b.awayDuration(ctx, in, st)
	case dialogue.AwaitingDirectory:
		return b.directoryLookup(ctx, in)
	case dialogue.AwaitingGuestInfo:
		return b.guestInfo(in)
	case dialogue.AwaitingGuestSpot:
		return b.guestSpot(ctx, in, st)
	case dialogue.AwaitingGuestDuration:
		return b.guestDuration(ctx, in, st)
	case dialogue.AwaitingAddSpot:
		return b.addSpot(ctx, in)
	case dialogue.AwaitingRemoveSpot:
		return b.removeSpot(ctx, in)
	case dialogue.AwaitingMessageSpot:
		return b.messageSpot(ctx, in)
	case dialogue.AwaitingMessageText:
		return b.messageText(ctx, in, st)
	case dialogue.AwaitingReply:
		return b.ownerReply(ctx, in, st)
	case dialogue.AwaitingReminderSpot:
		return b.reminderSpot(in)
	case dialogue.AwaitingReminderDelay:
		return b.reminderDelay(in, st)
	case dialogue.AwaitingReminderText:
		return b.reminderText(ctx, in, st)
	}

	log.Warn().Str("kind", in.State.Kind()).Msg("Unhandled dialogue state")
	return done(Reply{Text: msgUseMenu, Menu: in.Access.IsApproved}), nil
}

func (b *Bot) handleMenu(ctx context.Context, in Input, item MenuItem) (Result, error) {
	switch item {
	case MenuBlocked:
		return stay(dialogue.AwaitingBlockedSpot{}, say("🚫 Blocked in?", "Enter the spot number of the car blocking you:")), nil
	case MenuSOS:
		return stay(dialogue.AwaitingSOSSpot{}, say("🚨 SOS alarm", "Enter the spot number of the car with the alarm going off:")), nil
	case MenuAway:
		return b.awayToggle(ctx, in)
	case MenuGuest:
		return b.guestStart(ctx, in)
	case MenuDirectory:
		return stay(dialogue.AwaitingDirectory{}, say("📋 Directory", "Enter a spot number to check its status, or send \"all\" to list free spots.")), nil
	case MenuMySpots:
		return b.mySpots(ctx, in)
	case MenuAddSpot:
		return stay(dialogue.AwaitingAddSpot{}, say("Enter the number of the spot you want to add:")), nil
	case MenuRemoveSpot:
		return b.removeSpotStart(ctx, in)
	case MenuMessage:
		return stay(dialogue.AwaitingMessageSpot{}, say("Enter the spot number of the owner you want to message:")), nil
	case MenuReminder:
		return b.reminderStart(ctx, in)
	}
	return done(helpReply(in.Access)), nil
}

// notifyAll sends n to every id and returns how many deliveries failed
func (b *Bot) notifyAll(ctx context.Context, ids []int64, n Notification) int {
	failed := 0
	for _, id := range ids {
		if err := b.notifier.Notify(ctx, id, n); err != nil {
			log.Warn().Err(err).Int64("user_id", id).Msg("Failed to deliver notification")
			failed++
		}
	}
	return failed
}

// notifyOwners notifies every owner of a spot except skip
func (b *Bot) notifyOwners(ctx context.Context, owners []*models.User, skip int64, n Notification) (sent, failed int) {
	for _, owner := range owners {
		if owner.TelegramID == skip {
			continue
		}
		if err := b.notifier.Notify(ctx, owner.TelegramID, n); err != nil {
			log.Warn().Err(err).Int64("user_id", owner.TelegramID).Msg("Failed to notify spot owner")
			failed++
			continue
		}
		sent++
	}
	return sent, failed
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex serializes work per identity
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedEntry
}

// Lock blocks until id is free and returns the matching unlock
func (k *keyedMutex) Lock(id int64) func() {
	k.mu.Lock()
	entry, ok := k.locks[id]
	if !ok {
		entry = &keyedEntry{}
		k.locks[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
