package services

import (
	"context"
	"time"

	"parking-bot/internal/models"
)

// UserStore persists residents
type UserStore interface {
	Upsert(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	SetStatus(ctx context.Context, id int64, status models.UserStatus) error
	SetPushToken(ctx context.Context, id int64, pushToken *string) error
	ListByStatus(ctx context.Context, status models.UserStatus) ([]*models.User, error)
	ListAll(ctx context.Context) ([]*models.User, error)
}

// SpotStore persists spot ownership
type SpotStore interface {
	AssignExclusive(ctx context.Context, spotNumber int, userID int64) (models.AssignResult, error)
	AddOwner(ctx context.Context, spotNumber int, userID int64) (bool, error)
	Get(ctx context.Context, spotNumber int) (*models.ParkingSpot, error)
	Owners(ctx context.Context, spotNumber int) ([]*models.User, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.ParkingSpot, error)
	ListFree(ctx context.Context) ([]*models.ParkingSpot, error)
	Remove(ctx context.Context, spotNumber int, userID int64) (bool, error)
	RemoveAll(ctx context.Context, spotNumber int) (int64, error)
	SetFree(ctx context.Context, spotNumber int, free bool, until *time.Time) error
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
}

// MessageStore persists relayed messages
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) (int64, error)
	SetReply(ctx context.Context, id int64, reply string) error
	GetByID(ctx context.Context, id int64) (*models.Message, error)
}

// GuestPassStore persists guest passes
type GuestPassStore interface {
	Create(ctx context.Context, pass *models.GuestPass) (int64, error)
	ListActive(ctx context.Context, hostUserID int64, now time.Time) ([]*models.GuestPass, error)
	Deactivate(ctx context.Context, id, hostUserID int64) (bool, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// ReminderStore persists reminders
type ReminderStore interface {
	Create(ctx context.Context, reminder *models.Reminder) (int64, error)
	ListPending(ctx context.Context, userID int64) ([]*models.Reminder, error)
	ClaimDue(ctx context.Context, now time.Time) ([]*models.Reminder, error)
}

// AnnouncementStore persists announcements
type AnnouncementStore interface {
	Create(ctx context.Context, a *models.Announcement) (int64, error)
}

// ModeratorStore persists the moderator set
type ModeratorStore interface {
	Add(ctx context.Context, id, addedBy int64) (bool, error)
	Remove(ctx context.Context, id int64) (bool, error)
	IsModerator(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context) ([]*models.Moderator, error)
}

// StatsStore computes aggregate counters
type StatsStore interface {
	Stats(ctx context.Context, now time.Time) (*models.Stats, error)
}

// SnapshotStore exports and imports the whole database
type SnapshotStore interface {
	Export(ctx context.Context, now time.Time) (*models.Snapshot, error)
	Import(ctx context.Context, snap *models.Snapshot) (models.ImportCounts, error)
}

// Stores groups every store the bot works with
type Stores struct {
	Users         UserStore
	Spots         SpotStore
	Messages      MessageStore
	GuestPasses   GuestPassStore
	Reminders     ReminderStore
	Announcements AnnouncementStore
	Moderators    ModeratorStore
	Stats         StatsStore
	Snapshots     SnapshotStore
}
