package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"parking-bot/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPool connects to PARKING_TEST_DATABASE_URL and resets the schema.
// The test is skipped when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("PARKING_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PARKING_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS moderators, reminders, announcements, guest_passes, messages, parking_spots, users CASCADE`)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func seedUser(t *testing.T, users *UserRepository, id int64, name string, status models.UserStatus) {
	t.Helper()
	require.NoError(t, users.Upsert(context.Background(), &models.User{TelegramID: id, Name: name, Status: status}))
}

func TestUserUpsertKeepsStatus(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)

	seedUser(t, users, 1, "Anna", models.StatusPending)
	require.NoError(t, users.SetStatus(ctx, 1, models.StatusApproved))
	seedUser(t, users, 1, "Anna K", models.StatusPending)

	u, err := users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Anna K", u.Name)
	assert.Equal(t, models.StatusApproved, u.Status)

	_, err = users.GetByID(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssignExclusiveConcurrent(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)
	spots := NewSpotRepository(pool)

	seedUser(t, users, 1, "Anna", models.StatusApproved)
	seedUser(t, users, 2, "Boris", models.StatusApproved)

	var (
		wg      sync.WaitGroup
		results [2]models.AssignResult
		errs    [2]error
	)
	for i, id := range []int64{1, 2} {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			results[i], errs[i] = spots.AssignExclusive(ctx, 50, id)
		}(i, id)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.ElementsMatch(t, []models.AssignResult{models.AssignCreated, models.AssignTaken}, results[:])

	owners, err := spots.Owners(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, owners, 1)
}

func TestAssignExclusiveIsIdempotent(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)
	spots := NewSpotRepository(pool)
	seedUser(t, users, 1, "Anna", models.StatusApproved)

	first, err := spots.AssignExclusive(ctx, 12, 1)
	require.NoError(t, err)
	second, err := spots.AssignExclusive(ctx, 12, 1)
	require.NoError(t, err)

	assert.Equal(t, models.AssignCreated, first)
	assert.Equal(t, models.AssignAlreadyOwned, second)

	list, err := spots.ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAddOwnerIdempotent(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)
	spots := NewSpotRepository(pool)
	seedUser(t, users, 1, "Anna", models.StatusApproved)
	seedUser(t, users, 2, "Boris", models.StatusApproved)

	_, err := spots.AssignExclusive(ctx, 7, 1)
	require.NoError(t, err)

	added, err := spots.AddOwner(ctx, 7, 2)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = spots.AddOwner(ctx, 7, 2)
	require.NoError(t, err)
	assert.False(t, added)

	owners, err := spots.Owners(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, owners, 2)
}

func TestFreeFlagExpiry(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)
	spots := NewSpotRepository(pool)
	seedUser(t, users, 1, "Anna", models.StatusApproved)
	_, err := spots.AssignExclusive(ctx, 3, 1)
	require.NoError(t, err)

	now := time.Now()
	until := now.Add(time.Hour)
	require.NoError(t, spots.SetFree(ctx, 3, true, &until))

	free, err := spots.ListFree(ctx)
	require.NoError(t, err)
	require.Len(t, free, 1)

	released, err := spots.ReleaseExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, released)

	free, err = spots.ListFree(ctx)
	require.NoError(t, err)
	assert.Empty(t, free)
}

func TestGuestPassSweep(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)
	passes := NewGuestPassRepository(pool)
	seedUser(t, users, 1, "Anna", models.StatusApproved)

	now := time.Now()
	_, err := passes.Create(ctx, &models.GuestPass{HostUserID: 1, GuestInfo: "Red car A123", ExpiresAt: now.Add(72 * time.Hour)})
	require.NoError(t, err)

	active, err := passes.ListActive(ctx, 1, now)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	later := now.Add(73 * time.Hour)
	active, err = passes.ListActive(ctx, 1, later)
	require.NoError(t, err)
	assert.Empty(t, active)

	swept, err := passes.DeactivateExpired(ctx, later)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, swept, int64(1))
}

func TestReminderClaimDueOnce(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)
	reminders := NewReminderRepository(pool)
	seedUser(t, users, 1, "Anna", models.StatusApproved)

	now := time.Now()
	_, err := reminders.Create(ctx, &models.Reminder{UserID: 1, SpotNumber: 4, Text: "move car", RemindAt: now.Add(time.Minute)})
	require.NoError(t, err)

	due, err := reminders.ClaimDue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = reminders.ClaimDue(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, due[0].Fired)

	due, err = reminders.ClaimDue(ctx, now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSnapshotRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)
	spots := NewSpotRepository(pool)
	messages := NewMessageRepository(pool)
	passes := NewGuestPassRepository(pool)
	announcements := NewAnnouncementRepository(pool)
	moderators := NewModeratorRepository(pool)
	snapshots := NewSnapshotRepository(pool)

	seedUser(t, users, 1, "Anna", models.StatusApproved)
	seedUser(t, users, 2, "Boris", models.StatusPending)
	_, err := spots.AssignExclusive(ctx, 12, 1)
	require.NoError(t, err)
	from := int64(2)
	_, err = messages.Create(ctx, &models.Message{FromUserID: &from, ToSpot: 12, MessageText: "you block me", Source: models.SourceBlocked})
	require.NoError(t, err)
	_, err = passes.Create(ctx, &models.GuestPass{HostUserID: 1, GuestInfo: "Blue van", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	_, err = announcements.Create(ctx, &models.Announcement{AdminID: 99, Text: "Gate maintenance"})
	require.NoError(t, err)
	_, err = moderators.Add(ctx, 2, 99)
	require.NoError(t, err)

	exported, err := snapshots.Export(ctx, time.Now())
	require.NoError(t, err)

	// restore into a fresh schema
	pool2 := testPool(t)
	restore := NewSnapshotRepository(pool2)
	counts, err := restore.Import(ctx, exported)
	require.NoError(t, err)
	assert.Equal(t, models.ImportCounts{Users: 2, ParkingSpots: 1, Messages: 1, GuestPasses: 1, Announcements: 1, Moderators: 1}, counts)

	again, err := restore.Export(ctx, exported.ExportedAt)
	require.NoError(t, err)
	assert.Len(t, again.Users, len(exported.Users))
	assert.Len(t, again.ParkingSpots, len(exported.ParkingSpots))
	assert.Len(t, again.Messages, len(exported.Messages))
	assert.Equal(t, exported.Messages[0].ID, again.Messages[0].ID)
	assert.Equal(t, exported.Messages[0].MessageText, again.Messages[0].MessageText)

	// sequences continue after the restored ids
	next, err := NewMessageRepository(pool2).Create(ctx, &models.Message{ToSpot: 12, MessageText: "next", Source: models.SourceGroup})
	require.NoError(t, err)
	assert.Greater(t, next, exported.Messages[0].ID)

	// replaying the same snapshot does not duplicate rows
	_, err = restore.Import(ctx, exported)
	require.NoError(t, err)
	replayed, err := restore.Export(ctx, exported.ExportedAt)
	require.NoError(t, err)
	assert.Len(t, replayed.ParkingSpots, 1)
	assert.Len(t, replayed.Messages, 2)
}
