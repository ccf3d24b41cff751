package models

import "time"

// UserStatus is the registration status of a resident
type UserStatus string

const (
	// StatusNew is reported for identities that have no user row yet
	StatusNew      UserStatus = "new"
	StatusPending  UserStatus = "pending"
	StatusApproved UserStatus = "approved"
	StatusRejected UserStatus = "rejected"
	StatusBanned   UserStatus = "banned"
)

// Valid reports whether s is one of the persisted statuses
func (s UserStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusBanned:
		return true
	}
	return false
}

// MessageSource tags where a relayed message came from
type MessageSource string

const (
	SourceGroup   MessageSource = "group"
	SourcePrivate MessageSource = "private"
	SourceBlocked MessageSource = "blocked"
	SourceSOS     MessageSource = "sos"
)

// User represents a resident known to the bot
type User struct {
	TelegramID int64      `json:"telegram_id"`
	Username   *string    `json:"username"`
	Name       string     `json:"name"`
	Status     UserStatus `json:"status"`
	PushToken  *string    `json:"push_token,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// DisplayHandle returns "@username" or a dash
func (u *User) DisplayHandle() string {
	if u.Username == nil || *u.Username == "" {
		return "—"
	}
	return "@" + *u.Username
}

// ParkingSpot is one ownership row of a spot; co-owners have one row each
type ParkingSpot struct {
	ID              int64      `json:"id"`
	SpotNumber      int        `json:"spot_number"`
	UserID          int64      `json:"user_id"`
	IsTemporaryFree bool       `json:"is_temporary_free"`
	FreeUntil       *time.Time `json:"free_until"`
	CreatedAt       time.Time  `json:"created_at"`
}

// AssignResult is the outcome of an exclusive spot claim
type AssignResult int

const (
	// AssignCreated means a new ownership row was written
	AssignCreated AssignResult = iota
	// AssignAlreadyOwned means the same user already owns the spot
	AssignAlreadyOwned
	// AssignTaken means another user owns the spot
	AssignTaken
)

// Message is a relayed note addressed to the owners of a spot
type Message struct {
	ID          int64         `json:"id"`
	FromUserID  *int64        `json:"from_user_id"`
	ToSpot      int           `json:"to_spot"`
	MessageText string        `json:"message_text"`
	ReplyText   *string       `json:"reply_text"`
	Source      MessageSource `json:"source"`
	CreatedAt   time.Time     `json:"created_at"`
}

// GuestPass is a time-boxed permission for a visitor's car
type GuestPass struct {
	ID         int64     `json:"id"`
	HostUserID int64     `json:"host_user_id"`
	GuestInfo  string    `json:"guest_info"`
	SpotNumber *int      `json:"spot_number"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reminder fires a notification to its owner at RemindAt
type Reminder struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	SpotNumber int       `json:"spot_number"`
	Text       string    `json:"text"`
	RemindAt   time.Time `json:"remind_at"`
	Fired      bool      `json:"fired"`
	CreatedAt  time.Time `json:"created_at"`
}

// Announcement is a broadcast sent by an admin
type Announcement struct {
	ID        int64     `json:"id"`
	AdminID   int64     `json:"admin_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Moderator is a persisted member of the moderator set
type Moderator struct {
	TelegramID int64     `json:"telegram_id"`
	AddedBy    int64     `json:"added_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stats holds aggregate counters for the admin /stats command
type Stats struct {
	UsersTotal       int `json:"users_total"`
	UsersApproved    int `json:"users_approved"`
	UsersPending     int `json:"users_pending"`
	SpotsTotal       int `json:"spots_total"`
	SpotsFree        int `json:"spots_free"`
	MessagesTotal    int `json:"messages_total"`
	GuestsActive     int `json:"guests_active"`
	RemindersPending int `json:"reminders_pending"`
}

// Snapshot is the full-database backup document
type Snapshot struct {
	ExportedAt    time.Time       `json:"exported_at"`
	Users         []*User         `json:"users"`
	ParkingSpots  []*ParkingSpot  `json:"parking_spots"`
	Messages      []*Message      `json:"messages"`
	GuestPasses   []*GuestPass    `json:"guest_passes"`
	Announcements []*Announcement `json:"announcements"`
	Reminders     []*Reminder     `json:"reminders,omitempty"`
	Moderators    []*Moderator    `json:"moderators,omitempty"`
}

// ImportCounts reports how many rows of each table an import processed
type ImportCounts struct {
	Users         int `json:"users"`
	ParkingSpots  int `json:"parking_spots"`
	Messages      int `json:"messages"`
	GuestPasses   int `json:"guest_passes"`
	Announcements int `json:"announcements"`
	Reminders     int `json:"reminders"`
	Moderators    int `json:"moderators"`
}
