package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"parking-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (f *fakeUploader) Upload(_ context.Context, key string, body []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.bodies = append(f.bodies, body)
	return nil
}

func TestBackupBuild(t *testing.T) {
	db := newMemDB()
	db.addUser(1, "Anna", models.StatusApproved, 3)
	svc := NewBackupService(db.stores().Snapshots, nil, newRecordingNotifier(), nil)

	doc, err := svc.Build(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, "parking_backup_20260310_120000.json", doc.Name)

	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(doc.Content, &snap))
	require.Len(t, snap.Users, 1)
	assert.Equal(t, "Anna", snap.Users[0].Name)
	require.Len(t, snap.ParkingSpots, 1)
	assert.Equal(t, 3, snap.ParkingSpots[0].SpotNumber)
}

func TestBackupRunUploads(t *testing.T) {
	db := newMemDB()
	uploader := &fakeUploader{}
	notifier := newRecordingNotifier()
	svc := NewBackupService(db.stores().Snapshots, uploader, notifier, []int64{testAdmin})

	require.NoError(t, svc.Run(context.Background(), testNow))
	require.Len(t, uploader.keys, 1)
	assert.True(t, strings.HasPrefix(uploader.keys[0], "backups/20260310T120000Z_"))
	assert.Empty(t, notifier.to(testAdmin))

	uploader.err = errors.New("bucket gone")
	assert.Error(t, svc.Run(context.Background(), testNow))
}

func TestBackupRunDeliversToAdmins(t *testing.T) {
	db := newMemDB()
	notifier := newRecordingNotifier()
	svc := NewBackupService(db.stores().Snapshots, nil, notifier, []int64{testAdmin, 2000})
	notifier.down[2000] = true

	require.NoError(t, svc.Run(context.Background(), testNow))
	notes := notifier.to(testAdmin)
	require.Len(t, notes, 1)
	require.NotNil(t, notes[0].Document)

	notifier.down[testAdmin] = true
	assert.ErrorIs(t, svc.Run(context.Background(), testNow), ErrUnreachable)
}

func TestRestoreRejectsGarbage(t *testing.T) {
	svc := NewBackupService(newMemDB().stores().Snapshots, nil, newRecordingNotifier(), nil)

	_, err := svc.Restore(context.Background(), []byte("not json"))
	assert.ErrorIs(t, err, ErrBadSnapshot)
}
