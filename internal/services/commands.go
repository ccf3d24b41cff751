package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"parking-bot/internal/access"
)

// Command is a slash command the bot understands
type Command string

const (
	CmdStart    Command = "start"
	CmdHelp     Command = "help"
	CmdCancel   Command = "cancel"
	CmdPending  Command = "pending"
	CmdUsers    Command = "users"
	CmdStats    Command = "stats"
	CmdAnnounce Command = "announce"
	CmdBackup   Command = "backup"
	CmdRestore  Command = "restore"
	CmdSpot     Command = "spot"
	CmdMod      Command = "mod"
)

// commandRoles is the minimum role per command
var commandRoles = map[Command]access.Role{
	CmdStart:    access.RoleGuest,
	CmdHelp:     access.RoleGuest,
	CmdCancel:   access.RoleGuest,
	CmdPending:  access.RoleModerator,
	CmdUsers:    access.RoleAdmin,
	CmdStats:    access.RoleAdmin,
	CmdAnnounce: access.RoleAdmin,
	CmdBackup:   access.RoleAdmin,
	CmdRestore:  access.RoleAdmin,
	CmdSpot:     access.RoleModerator,
	CmdMod:      access.RoleAdmin,
}

// MinRole returns the lowest role allowed to run the command
func (c Command) MinRole() access.Role {
	return commandRoles[c]
}

// ParseCommand splits "/cmd@bot arg1 arg2". ok is false for text that is not a
// slash command; known is false for commands outside the closed set.
func ParseCommand(text string) (cmd Command, args []string, known, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false, false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil, false, false
	}
	name, _, _ := strings.Cut(fields[0], "@")
	cmd = Command(strings.ToLower(name))
	_, known = commandRoles[cmd]
	return cmd, fields[1:], known, true
}

// ErrSpotRange is returned for spot numbers outside 1..9999
var ErrSpotRange = errors.New("spot number out of range")

const (
	minSpot = 1
	maxSpot = 9999
)

// ParseSpot parses a spot number in 1..9999
func ParseSpot(s string) (int, error) {
	s = strings.TrimSpace(s)
	if !isDigits(s) {
		return 0, fmt.Errorf("invalid spot number %q", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid spot number %q: %w", s, err)
	}
	if n < minSpot || n > maxSpot {
		return 0, fmt.Errorf("%w: %d", ErrSpotRange, n)
	}
	return n, nil
}

// parseBounded parses an integer in [lo, hi]
func parseBounded(s string, lo, hi int) (int, bool) {
	s = strings.TrimSpace(s)
	if !isDigits(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

// isDigits reports whether s is a non-empty run of ASCII digits
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MenuItem is one entry of the resident menu
type MenuItem int

const (
	MenuNone MenuItem = iota
	MenuBlocked
	MenuSOS
	MenuAway
	MenuGuest
	MenuDirectory
	MenuMySpots
	MenuAddSpot
	MenuRemoveSpot
	MenuMessage
	MenuReminder
	MenuHelp
)

var menuOrder = []MenuItem{
	MenuBlocked, MenuSOS,
	MenuAway, MenuGuest,
	MenuDirectory, MenuMySpots,
	MenuAddSpot, MenuRemoveSpot,
	MenuMessage, MenuReminder,
	MenuHelp,
}

var menuLabels = map[MenuItem]string{
	MenuBlocked:    "🚫 Blocked in",
	MenuSOS:        "🚨 SOS alarm",
	MenuAway:       "🚗 Away / Back",
	MenuGuest:      "🎫 Guest pass",
	MenuDirectory:  "📋 Directory",
	MenuMySpots:    "📍 My spots",
	MenuAddSpot:    "➕ Add spot",
	MenuRemoveSpot: "➖ Remove spot",
	MenuMessage:    "✉️ Message owner",
	MenuReminder:   "⏰ Reminder",
	MenuHelp:       "❓ Help",
}

// extra keywords accepted besides the normalized labels
var menuKeywords = map[string]MenuItem{
	"blocked":      MenuBlocked,
	"перегородили": MenuBlocked,
	"sos":          MenuSOS,
	"away":         MenuAway,
	"back":         MenuAway,
	"guest":        MenuGuest,
	"directory":    MenuDirectory,
	"справочник":   MenuDirectory,
	"my spot":      MenuMySpots,
	"message":      MenuMessage,
	"remind":       MenuReminder,
	"help":         MenuHelp,
	"помощь":       MenuHelp,
}

// Label returns the button text of the item
func (m MenuItem) Label() string {
	return menuLabels[m]
}

// MenuLabels returns the menu button texts in display order
func MenuLabels() []string {
	labels := make([]string, 0, len(menuOrder))
	for _, item := range menuOrder {
		labels = append(labels, menuLabels[item])
	}
	return labels
}

// ParseMenuItem maps a button text or keyword to a menu item
func ParseMenuItem(text string) MenuItem {
	key := normalizeLabel(text)
	if key == "" {
		return MenuNone
	}
	for item, label := range menuLabels {
		if normalizeLabel(label) == key {
			return item
		}
	}
	if item, ok := menuKeywords[key]; ok {
		return item
	}
	return MenuNone
}

// MenuButton maps an exact button text to a menu item. Keywords are not
// matched so free text typed inside a dialogue is left alone.
func MenuButton(text string) MenuItem {
	text = strings.TrimSpace(text)
	if text == "" {
		return MenuNone
	}
	for item, label := range menuLabels {
		if label == text {
			return item
		}
	}
	return MenuNone
}

// normalizeLabel lowercases and drops leading symbols such as emoji
func normalizeLabel(s string) string {
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.ToLower(strings.TrimSpace(s))
}

// ActionKind is the verb of a button action
type ActionKind string

const (
	ActionApprove ActionKind = "approve"
	ActionReject  ActionKind = "reject"
	ActionBan     ActionKind = "ban"
	ActionGrant   ActionKind = "grant"
	ActionDeny    ActionKind = "deny"
	ActionReply   ActionKind = "reply"
	ActionPassOff ActionKind = "passoff"
)

var actionKinds = map[ActionKind]bool{
	ActionApprove: true,
	ActionReject:  true,
	ActionBan:     true,
	ActionGrant:   true,
	ActionDeny:    true,
	ActionReply:   true,
	ActionPassOff: true,
}

// ErrBadAction is returned for callback data that does not decode
var ErrBadAction = errors.New("malformed action")

// Action is decoded button data: kind:target[:spot,spot]. Target is a user ID,
// a message ID or a guest pass ID depending on the kind.
type Action struct {
	Kind   ActionKind
	Target int64
	Spots  []int
}

// Encode renders the action as button data
func (a Action) Encode() string {
	data := fmt.Sprintf("%s:%d", a.Kind, a.Target)
	if len(a.Spots) > 0 {
		parts := make([]string, len(a.Spots))
		for i, s := range a.Spots {
			parts[i] = strconv.Itoa(s)
		}
		data += ":" + strings.Join(parts, ",")
	}
	return data
}

// ParseAction decodes button data
func ParseAction(data string) (Action, error) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Action{}, fmt.Errorf("%w: %q", ErrBadAction, data)
	}
	kind := ActionKind(parts[0])
	if !actionKinds[kind] {
		return Action{}, fmt.Errorf("%w: unknown kind %q", ErrBadAction, parts[0])
	}
	target, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Action{}, fmt.Errorf("%w: target %q", ErrBadAction, parts[1])
	}
	a := Action{Kind: kind, Target: target}
	if len(parts) == 3 && parts[2] != "" {
		for _, p := range strings.Split(parts[2], ",") {
			spot, err := ParseSpot(p)
			if err != nil {
				return Action{}, fmt.Errorf("%w: %v", ErrBadAction, err)
			}
			a.Spots = append(a.Spots, spot)
		}
	}
	return a, nil
}

// button builds an action button
func button(label string, a Action) Button {
	return Button{Label: label, Data: a.Encode()}
}
