package dialogue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeKeepsPayload(t *testing.T) {
	spot := 12
	states := []State{
		AwaitingName{},
		AwaitingSpots{Name: "Anna", Spots: []int{12, 40}, Conflicts: []int{40}},
		AwaitingGuestDuration{Info: "Red car", Spot: &spot},
		AwaitingReminderText{Spot: 3, Hours: 2},
		AwaitingReply{MessageID: 77},
	}
	for _, s := range states {
		t.Run(s.Kind(), func(t *testing.T) {
			raw, err := Encode(s)
			require.NoError(t, err)
			got, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, s, got)
		})
	}
}

func TestEveryKindIsRegistered(t *testing.T) {
	assert.Len(t, factories, 20)
	for kind, newState := range factories {
		assert.Equal(t, kind, newState().Kind())
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"awaiting_nothing"}`))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Set(ctx, 1, AwaitingAwayDuration{Spot: 5}))
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, AwaitingAwayDuration{Spot: 5}, got)

	require.NoError(t, s.Set(ctx, 1, nil))
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, 1, AwaitingName{}))
	now = now.Add(59 * time.Minute)
	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, AwaitingName{}, got)

	// Set refreshes the deadline
	require.NoError(t, s.Set(ctx, 1, AwaitingName{}))
	now = now.Add(59 * time.Minute)
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, AwaitingName{}, got)

	now = now.Add(time.Hour)
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, s.states)
}

func TestMemoryStorePrunesExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }

	for id := int64(1); id <= memoryPruneThreshold+1; id++ {
		require.NoError(t, s.Set(ctx, id, AwaitingName{}))
	}
	now = now.Add(2 * time.Hour)
	require.NoError(t, s.Set(ctx, 5000, AwaitingName{}))
	assert.Len(t, s.states, 1)
}
