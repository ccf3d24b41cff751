package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"parking-bot/internal/models"

	"github.com/rs/zerolog/log"
)

const defaultGroupText = "A neighbour is asking about your spot"

var groupSpotPattern = regexp.MustCompile(`\b(\d{1,4})\b`)

// handleGroup relays a group message that mentions the bot to the owners of
// the first spot number found in it
func (b *Bot) handleGroup(ctx context.Context, in Input, mentioned bool) (Result, error) {
	text, found := b.stripMention(in.Text)
	if !mentioned && !found {
		return Result{}, nil
	}

	loc := groupSpotPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return done(say(
			"Please include a parking spot number.",
			fmt.Sprintf("Example: @%s 142 is blocking the exit", b.username),
		)), nil
	}
	spot, _ := strconv.Atoi(text[loc[2]:loc[3]])

	body := strings.Join(strings.Fields(text[:loc[0]]+text[loc[1]:]), " ")
	if body == "" {
		body = defaultGroupText
	}

	owners, err := b.stores.Spots.Owners(ctx, spot)
	if err != nil {
		return Result{}, err
	}
	if len(owners) == 0 {
		return done(say(fmt.Sprintf("Spot %d is not registered.", spot))), nil
	}

	var from *int64
	if in.Access.Status != models.StatusNew {
		id := in.UserID()
		from = &id
	}
	if _, err := b.stores.Messages.Create(ctx, &models.Message{FromUserID: from, ToSpot: spot, MessageText: body, Source: models.SourceGroup}); err != nil {
		return Result{}, err
	}

	sender := in.Sender.FullName
	if sender == "" {
		sender = "A neighbour"
	}
	notice := Notification{Text: fmt.Sprintf("💬 Message from the group\n\nAbout your spot %d:\n«%s»\n\nFrom: %s", spot, body, sender)}
	sent, failed := b.notifyOwners(ctx, owners, 0, notice)
	log.Info().Int64("user_id", in.UserID()).Int("spot", spot).Int("sent", sent).Int("failed", failed).Msg("Group message relayed")

	if sent == 0 {
		return done(say(fmt.Sprintf("⚠️ Could not reach the owner of spot %d. Ask them to open a private chat with the bot.", spot))), nil
	}
	return done(say(fmt.Sprintf("✅ The owner of spot %d has been notified.", spot))), nil
}

// stripMention removes every @botname mention, ignoring case
func (b *Bot) stripMention(text string) (string, bool) {
	if b.mention == nil || !b.mention.MatchString(text) {
		return text, false
	}
	return strings.TrimSpace(b.mention.ReplaceAllString(text, " ")), true
}

func mentionPattern(username string) *regexp.Regexp {
	if username == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(username) + `\b`)
}
