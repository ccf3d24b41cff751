package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"parking-bot/internal/access"
	"parking-bot/internal/dialogue"
	"parking-bot/internal/models"
	"parking-bot/internal/ratelimit"
	"parking-bot/internal/repository"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// memDB is an in-memory stand-in for the Postgres repositories
type memDB struct {
	mu            sync.Mutex
	now           time.Time
	users         map[int64]*models.User
	spots         []*models.ParkingSpot
	messages      []*models.Message
	passes        []*models.GuestPass
	reminders     []*models.Reminder
	announcements []*models.Announcement
	mods          map[int64]*models.Moderator
	nextID        int64
}

func newMemDB() *memDB {
	return &memDB{
		now:   testNow,
		users: make(map[int64]*models.User),
		mods:  make(map[int64]*models.Moderator),
	}
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

func (db *memDB) stores() Stores {
	return Stores{
		Users:         memUsers{db},
		Spots:         memSpots{db},
		Messages:      memMessages{db},
		GuestPasses:   memPasses{db},
		Reminders:     memReminders{db},
		Announcements: memAnnouncements{db},
		Moderators:    memMods{db},
		Stats:         memStats{db},
		Snapshots:     memSnapshots{db},
	}
}

// addUser inserts a user with the given status and spots
func (db *memDB) addUser(id int64, name string, status models.UserStatus, spots ...int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[id] = &models.User{TelegramID: id, Name: name, Status: status, CreatedAt: db.now}
	for _, s := range spots {
		db.spots = append(db.spots, &models.ParkingSpot{ID: db.id(), SpotNumber: s, UserID: id, CreatedAt: db.now})
	}
}

func (db *memDB) messageCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.messages)
}

func (db *memDB) ownerIDs(spot int) []int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	var ids []int64
	for _, s := range db.spots {
		if s.SpotNumber == spot {
			ids = append(ids, s.UserID)
		}
	}
	return ids
}

func (db *memDB) status(id int64) models.UserStatus {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u, ok := db.users[id]; ok {
		return u.Status
	}
	return models.StatusNew
}

type memUsers struct{ db *memDB }

func (s memUsers) Upsert(_ context.Context, user *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if u, ok := s.db.users[user.TelegramID]; ok {
		u.Username = user.Username
		u.Name = user.Name
		return nil
	}
	cp := *user
	cp.CreatedAt = s.db.now
	s.db.users[user.TelegramID] = &cp
	return nil
}

func (s memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, repository.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s memUsers) SetStatus(_ context.Context, id int64, status models.UserStatus) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, repository.ErrNotFound)
	}
	u.Status = status
	return nil
}

func (s memUsers) SetPushToken(_ context.Context, id int64, token *string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, repository.ErrNotFound)
	}
	u.PushToken = token
	return nil
}

func (s memUsers) ListByStatus(_ context.Context, status models.UserStatus) ([]*models.User, error) {
	all, _ := s.ListAll(context.Background())
	var out []*models.User
	for _, u := range all {
		if u.Status == status {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s memUsers) ListAll(context.Context) ([]*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]*models.User, 0, len(s.db.users))
	for _, u := range s.db.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

type memSpots struct{ db *memDB }

func (s memSpots) AssignExclusive(_ context.Context, spot int, userID int64) (models.AssignResult, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, row := range s.db.spots {
		if row.SpotNumber != spot {
			continue
		}
		if row.UserID == userID {
			return models.AssignAlreadyOwned, nil
		}
		return models.AssignTaken, nil
	}
	s.db.spots = append(s.db.spots, &models.ParkingSpot{ID: s.db.id(), SpotNumber: spot, UserID: userID, CreatedAt: s.db.now})
	return models.AssignCreated, nil
}

func (s memSpots) AddOwner(_ context.Context, spot int, userID int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, row := range s.db.spots {
		if row.SpotNumber == spot && row.UserID == userID {
			return false, nil
		}
	}
	s.db.spots = append(s.db.spots, &models.ParkingSpot{ID: s.db.id(), SpotNumber: spot, UserID: userID, CreatedAt: s.db.now})
	return true, nil
}

func (s memSpots) Get(_ context.Context, spot int) (*models.ParkingSpot, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, row := range s.db.spots {
		if row.SpotNumber == spot {
			cp := *row
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("spot %d: %w", spot, repository.ErrNotFound)
}

func (s memSpots) Owners(_ context.Context, spot int) ([]*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.User
	for _, row := range s.db.spots {
		if row.SpotNumber != spot {
			continue
		}
		if u, ok := s.db.users[row.UserID]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s memSpots) ListByUser(_ context.Context, userID int64) ([]*models.ParkingSpot, error) {
	return s.filter(func(row *models.ParkingSpot) bool { return row.UserID == userID }), nil
}

func (s memSpots) ListFree(context.Context) ([]*models.ParkingSpot, error) {
	seen := make(map[int]bool)
	return s.filter(func(row *models.ParkingSpot) bool {
		if !row.IsTemporaryFree || seen[row.SpotNumber] {
			return false
		}
		seen[row.SpotNumber] = true
		return true
	}), nil
}

func (s memSpots) filter(keep func(*models.ParkingSpot) bool) []*models.ParkingSpot {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	rows := slices.Clone(s.db.spots)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].SpotNumber < rows[j].SpotNumber })
	var out []*models.ParkingSpot
	for _, row := range rows {
		if keep(row) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out
}

func (s memSpots) Remove(_ context.Context, spot int, userID int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	before := len(s.db.spots)
	s.db.spots = slices.DeleteFunc(s.db.spots, func(row *models.ParkingSpot) bool {
		return row.SpotNumber == spot && row.UserID == userID
	})
	return len(s.db.spots) < before, nil
}

func (s memSpots) RemoveAll(_ context.Context, spot int) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	before := len(s.db.spots)
	s.db.spots = slices.DeleteFunc(s.db.spots, func(row *models.ParkingSpot) bool { return row.SpotNumber == spot })
	return int64(before - len(s.db.spots)), nil
}

func (s memSpots) SetFree(_ context.Context, spot int, free bool, until *time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, row := range s.db.spots {
		if row.SpotNumber == spot {
			row.IsTemporaryFree = free
			row.FreeUntil = until
		}
	}
	return nil
}

func (s memSpots) ReleaseExpired(_ context.Context, now time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, row := range s.db.spots {
		if row.IsTemporaryFree && row.FreeUntil != nil && !row.FreeUntil.After(now) {
			row.IsTemporaryFree = false
			row.FreeUntil = nil
			n++
		}
	}
	return n, nil
}

type memMessages struct{ db *memDB }

func (s memMessages) Create(_ context.Context, msg *models.Message) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *msg
	cp.ID = s.db.id()
	cp.CreatedAt = s.db.now
	s.db.messages = append(s.db.messages, &cp)
	return cp.ID, nil
}

func (s memMessages) SetReply(_ context.Context, id int64, reply string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, m := range s.db.messages {
		if m.ID == id {
			m.ReplyText = &reply
			return nil
		}
	}
	return fmt.Errorf("message %d: %w", id, repository.ErrNotFound)
}

func (s memMessages) GetByID(_ context.Context, id int64) (*models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, m := range s.db.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("message %d: %w", id, repository.ErrNotFound)
}

type memPasses struct{ db *memDB }

func (s memPasses) Create(_ context.Context, pass *models.GuestPass) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *pass
	cp.ID = s.db.id()
	cp.IsActive = true
	cp.CreatedAt = s.db.now
	s.db.passes = append(s.db.passes, &cp)
	return cp.ID, nil
}

func (s memPasses) ListActive(_ context.Context, host int64, now time.Time) ([]*models.GuestPass, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.GuestPass
	for _, p := range s.db.passes {
		if p.HostUserID == host && p.IsActive && p.ExpiresAt.After(now) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s memPasses) Deactivate(_ context.Context, id, host int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, p := range s.db.passes {
		if p.ID == id && p.HostUserID == host && p.IsActive {
			p.IsActive = false
			return true, nil
		}
	}
	return false, nil
}

func (s memPasses) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, p := range s.db.passes {
		if p.IsActive && !p.ExpiresAt.After(now) {
			p.IsActive = false
			n++
		}
	}
	return n, nil
}

type memReminders struct{ db *memDB }

func (s memReminders) Create(_ context.Context, r *models.Reminder) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *r
	cp.ID = s.db.id()
	cp.CreatedAt = s.db.now
	s.db.reminders = append(s.db.reminders, &cp)
	return cp.ID, nil
}

func (s memReminders) ListPending(_ context.Context, userID int64) ([]*models.Reminder, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Reminder
	for _, r := range s.db.reminders {
		if r.UserID == userID && !r.Fired {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s memReminders) ClaimDue(_ context.Context, now time.Time) ([]*models.Reminder, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Reminder
	for _, r := range s.db.reminders {
		if !r.Fired && !r.RemindAt.After(now) {
			r.Fired = true
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memAnnouncements struct{ db *memDB }

func (s memAnnouncements) Create(_ context.Context, a *models.Announcement) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *a
	cp.ID = s.db.id()
	cp.CreatedAt = s.db.now
	s.db.announcements = append(s.db.announcements, &cp)
	return cp.ID, nil
}

type memMods struct{ db *memDB }

func (s memMods) Add(_ context.Context, id, addedBy int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.mods[id]; ok {
		return false, nil
	}
	s.db.mods[id] = &models.Moderator{TelegramID: id, AddedBy: addedBy, CreatedAt: s.db.now}
	return true, nil
}

func (s memMods) Remove(_ context.Context, id int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.mods[id]; !ok {
		return false, nil
	}
	delete(s.db.mods, id)
	return true, nil
}

func (s memMods) IsModerator(_ context.Context, id int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	_, ok := s.db.mods[id]
	return ok, nil
}

func (s memMods) List(context.Context) ([]*models.Moderator, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]*models.Moderator, 0, len(s.db.mods))
	for _, m := range s.db.mods {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

type memStats struct{ db *memDB }

func (s memStats) Stats(_ context.Context, now time.Time) (*models.Stats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	st := &models.Stats{UsersTotal: len(s.db.users), SpotsTotal: len(s.db.spots), MessagesTotal: len(s.db.messages)}
	for _, u := range s.db.users {
		switch u.Status {
		case models.StatusApproved:
			st.UsersApproved++
		case models.StatusPending:
			st.UsersPending++
		}
	}
	for _, p := range s.db.passes {
		if p.IsActive && p.ExpiresAt.After(now) {
			st.GuestsActive++
		}
	}
	return st, nil
}

type memSnapshots struct{ db *memDB }

func (s memSnapshots) Export(_ context.Context, now time.Time) (*models.Snapshot, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	snap := &models.Snapshot{
		ExportedAt:    now,
		ParkingSpots:  slices.Clone(s.db.spots),
		Messages:      slices.Clone(s.db.messages),
		GuestPasses:   slices.Clone(s.db.passes),
		Announcements: slices.Clone(s.db.announcements),
		Reminders:     slices.Clone(s.db.reminders),
	}
	for _, u := range s.db.users {
		snap.Users = append(snap.Users, u)
	}
	return snap, nil
}

func (s memSnapshots) Import(_ context.Context, snap *models.Snapshot) (models.ImportCounts, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range snap.Users {
		cp := *u
		s.db.users[u.TelegramID] = &cp
	}
	return models.ImportCounts{Users: len(snap.Users), ParkingSpots: len(snap.ParkingSpots)}, nil
}

// recordingNotifier records deliveries; identities in down are unreachable
type recordingNotifier struct {
	mu   sync.Mutex
	sent map[int64][]Notification
	down map[int64]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(map[int64][]Notification), down: make(map[int64]bool)}
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down[userID] {
		return fmt.Errorf("user %d: %w", userID, ErrUnreachable)
	}
	n.sent[userID] = append(n.sent[userID], note)
	return nil
}

func (n *recordingNotifier) to(userID int64) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.sent[userID])
}

func (n *recordingNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, list := range n.sent {
		total += len(list)
	}
	return total
}

const (
	testAdmin = int64(1000)
	testBot   = "parking_test_bot"
)

type testEnv struct {
	bot      *Bot
	db       *memDB
	notifier *recordingNotifier
	states   *flakyStates
}

// flakyStates wraps a memory store and fails the next failGets reads
type flakyStates struct {
	*dialogue.MemoryStore
	failGets int
}

func (s *flakyStates) Get(ctx context.Context, id int64) (dialogue.State, error) {
	if s.failGets > 0 {
		s.failGets--
		return nil, errors.New("connection refused")
	}
	return s.MemoryStore.Get(ctx, id)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newMemDB()
	notifier := newRecordingNotifier()
	states := &flakyStates{MemoryStore: dialogue.NewMemoryStore(0)}
	stores := db.stores()
	resolver := access.New(access.Config{AdminIDs: []int64{testAdmin}}, stores.Users, stores.Moderators)

	bot := NewBot(BotDeps{
		Stores:   stores,
		Access:   resolver,
		States:   states,
		Limiter:  ratelimit.New(1000, time.Minute),
		Notifier: notifier,
		Backups:  NewBackupService(stores.Snapshots, nil, notifier, []int64{testAdmin}),
		Username: testBot,
		Now:      func() time.Time { return testNow },
	})
	return &testEnv{bot: bot, db: db, notifier: notifier, states: states}
}

// send handles a private text message and returns the reply texts
func (e *testEnv) send(t *testing.T, from int64, text string) []Reply {
	t.Helper()
	replies, err := e.bot.Handle(context.Background(), Update{From: Sender{ID: from, Username: fmt.Sprintf("user%d", from), FullName: fmt.Sprintf("User %d", from)}, Text: text})
	require.NoError(t, err)
	return replies
}

// press handles a button press
func (e *testEnv) press(t *testing.T, from int64, a Action) []Reply {
	t.Helper()
	replies, err := e.bot.Handle(context.Background(), Update{Kind: UpdateAction, From: Sender{ID: from}, Data: a.Encode()})
	require.NoError(t, err)
	return replies
}

func (e *testEnv) state(t *testing.T, id int64) dialogue.State {
	t.Helper()
	st, err := e.states.MemoryStore.Get(context.Background(), id)
	require.NoError(t, err)
	return st
}

func lastText(replies []Reply) string {
	if len(replies) == 0 {
		return ""
	}
	return replies[len(replies)-1].Text
}
