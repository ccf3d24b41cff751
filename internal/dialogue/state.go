// Package dialogue holds the per-identity conversation state.
package dialogue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// State is one step of a multi-message conversation. A nil State means idle.
type State interface {
	Kind() string
}

// AwaitingName waits for the resident's display name
type AwaitingName struct{}

// AwaitingSpots collects spot numbers until a terminator
type AwaitingSpots struct {
	Name      string `json:"name"`
	Spots     []int  `json:"spots"`
	Conflicts []int  `json:"conflicts"`
}

// AwaitingBlockedSpot waits for the spot whose car blocks the sender
type AwaitingBlockedSpot struct{}

// AwaitingSOSSpot waits for the spot whose alarm is going off
type AwaitingSOSSpot struct{}

// AwaitingAwaySpot waits for the own spot to mark as free
type AwaitingAwaySpot struct{}

// AwaitingAwayDuration waits for how many hours the spot stays free
type AwaitingAwayDuration struct {
	Spot int `json:"spot"`
}

// AwaitingDirectory waits for a spot number or a list keyword
type AwaitingDirectory struct{}

// AwaitingGuestInfo waits for the guest car description
type AwaitingGuestInfo struct{}

// AwaitingGuestSpot waits for the spot the guest may use
type AwaitingGuestSpot struct {
	Info string `json:"info"`
}

// AwaitingGuestDuration waits for the pass length in hours
type AwaitingGuestDuration struct {
	Info string `json:"info"`
	Spot *int   `json:"spot"`
}

// AwaitingAnnouncement waits for the broadcast text
type AwaitingAnnouncement struct{}

// AwaitingRestoreFile waits for a snapshot document
type AwaitingRestoreFile struct{}

// AwaitingAddSpot waits for a spot to request
type AwaitingAddSpot struct{}

// AwaitingRemoveSpot waits for an own spot to release
type AwaitingRemoveSpot struct{}

// AwaitingMessageSpot waits for the recipient spot of a private message
type AwaitingMessageSpot struct{}

// AwaitingMessageText waits for the private message body
type AwaitingMessageText struct {
	Spot int `json:"spot"`
}

// AwaitingReply waits for an owner's answer to a relayed message
type AwaitingReply struct {
	MessageID int64 `json:"message_id"`
}

// AwaitingReminderSpot waits for the spot a reminder is about
type AwaitingReminderSpot struct{}

// AwaitingReminderDelay waits for the delay in hours
type AwaitingReminderDelay struct {
	Spot int `json:"spot"`
}

// AwaitingReminderText waits for the reminder text
type AwaitingReminderText struct {
	Spot  int `json:"spot"`
	Hours int `json:"hours"`
}

func (AwaitingName) Kind() string          { return "awaiting_name" }
func (AwaitingSpots) Kind() string         { return "awaiting_spots" }
func (AwaitingBlockedSpot) Kind() string   { return "awaiting_blocked_spot" }
func (AwaitingSOSSpot) Kind() string       { return "awaiting_sos_spot" }
func (AwaitingAwaySpot) Kind() string      { return "awaiting_away_spot" }
func (AwaitingAwayDuration) Kind() string  { return "awaiting_away_duration" }
func (AwaitingDirectory) Kind() string     { return "awaiting_directory" }
func (AwaitingGuestInfo) Kind() string     { return "awaiting_guest_info" }
func (AwaitingGuestSpot) Kind() string     { return "awaiting_guest_spot" }
func (AwaitingGuestDuration) Kind() string { return "awaiting_guest_duration" }
func (AwaitingAnnouncement) Kind() string  { return "awaiting_announcement" }
func (AwaitingRestoreFile) Kind() string   { return "awaiting_restore_file" }
func (AwaitingAddSpot) Kind() string       { return "awaiting_add_spot" }
func (AwaitingRemoveSpot) Kind() string    { return "awaiting_remove_spot" }
func (AwaitingMessageSpot) Kind() string   { return "awaiting_message_spot" }
func (AwaitingMessageText) Kind() string   { return "awaiting_message_text" }
func (AwaitingReply) Kind() string         { return "awaiting_reply" }
func (AwaitingReminderSpot) Kind() string  { return "awaiting_reminder_spot" }
func (AwaitingReminderDelay) Kind() string { return "awaiting_reminder_delay" }
func (AwaitingReminderText) Kind() string  { return "awaiting_reminder_text" }

// ErrUnknownKind is returned when decoding a state with an unregistered kind
var ErrUnknownKind = errors.New("unknown dialogue state")

var factories = map[string]func() State{}

func register(newState func() State) {
	factories[newState().Kind()] = newState
}

func init() {
	register(func() State { return &AwaitingName{} })
	register(func() State { return &AwaitingSpots{} })
	register(func() State { return &AwaitingBlockedSpot{} })
	register(func() State { return &AwaitingSOSSpot{} })
	register(func() State { return &AwaitingAwaySpot{} })
	register(func() State { return &AwaitingAwayDuration{} })
	register(func() State { return &AwaitingDirectory{} })
	register(func() State { return &AwaitingGuestInfo{} })
	register(func() State { return &AwaitingGuestSpot{} })
	register(func() State { return &AwaitingGuestDuration{} })
	register(func() State { return &AwaitingAnnouncement{} })
	register(func() State { return &AwaitingRestoreFile{} })
	register(func() State { return &AwaitingAddSpot{} })
	register(func() State { return &AwaitingRemoveSpot{} })
	register(func() State { return &AwaitingMessageSpot{} })
	register(func() State { return &AwaitingMessageText{} })
	register(func() State { return &AwaitingReply{} })
	register(func() State { return &AwaitingReminderSpot{} })
	register(func() State { return &AwaitingReminderDelay{} })
	register(func() State { return &AwaitingReminderText{} })
}

type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode serializes a state with its kind tag
func Encode(s State) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return json.Marshal(envelope{Kind: s.Kind(), Data: data})
}

// Decode restores a state written by Encode. Variants are returned by value.
func Decode(raw []byte) (State, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	newState, ok := factories[env.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	ptr := newState()
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, ptr); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", env.Kind, err)
		}
	}
	return deref(ptr), nil
}

func deref(s State) State {
	switch v := s.(type) {
	case *AwaitingName:
		return *v
	case *AwaitingSpots:
		return *v
	case *AwaitingBlockedSpot:
		return *v
	case *AwaitingSOSSpot:
		return *v
	case *AwaitingAwaySpot:
		return *v
	case *AwaitingAwayDuration:
		return *v
	case *AwaitingDirectory:
		return *v
	case *AwaitingGuestInfo:
		return *v
	case *AwaitingGuestSpot:
		return *v
	case *AwaitingGuestDuration:
		return *v
	case *AwaitingAnnouncement:
		return *v
	case *AwaitingRestoreFile:
		return *v
	case *AwaitingAddSpot:
		return *v
	case *AwaitingRemoveSpot:
		return *v
	case *AwaitingMessageSpot:
		return *v
	case *AwaitingMessageText:
		return *v
	case *AwaitingReply:
		return *v
	case *AwaitingReminderSpot:
		return *v
	case *AwaitingReminderDelay:
		return *v
	case *AwaitingReminderText:
		return *v
	}
	return s
}
