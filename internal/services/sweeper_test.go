package services

import (
	"context"
	"testing"
	"time"

	"parking-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSweeperRejectsBadSpec(t *testing.T) {
	db := newMemDB()
	_, err := NewSweeper(SweeperConfig{GuestPasses: "every hour"}, db.stores(), newRecordingNotifier(), nil)
	assert.Error(t, err)

	s, err := NewSweeper(DefaultSweeperConfig(), db.stores(), newRecordingNotifier(), nil)
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 3, "backup is not scheduled without a backup service")
}

func TestReleaseFreeSpots(t *testing.T) {
	db := newMemDB()
	db.addUser(1, "Anna", models.StatusApproved, 10, 11)
	stores := db.stores()
	until := testNow.Add(2 * time.Hour)
	require.NoError(t, stores.Spots.SetFree(context.Background(), 10, true, &until))
	require.NoError(t, stores.Spots.SetFree(context.Background(), 11, true, nil))

	s, err := NewSweeper(SweeperConfig{}, stores, newRecordingNotifier(), nil)
	require.NoError(t, err)

	s.now = func() time.Time { return testNow.Add(time.Hour) }
	n, err := s.ReleaseFreeSpots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	s.now = func() time.Time { return testNow.Add(3 * time.Hour) }
	n, err = s.ReleaseFreeSpots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	free, err := stores.Spots.ListFree(context.Background())
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.Equal(t, 11, free[0].SpotNumber, "open-ended free flags stay")
}

func TestSweeperStartStop(t *testing.T) {
	s, err := NewSweeper(DefaultSweeperConfig(), newMemDB().stores(), newRecordingNotifier(), nil)
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
