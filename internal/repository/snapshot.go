package repository

import (
	"context"
	"fmt"
	"time"

	"parking-bot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRepository exports and imports the whole database
type SnapshotRepository struct {
	db *pgxpool.Pool
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Export reads every table inside a single read-only repeatable-read transaction
func (r *SnapshotRepository) Export(ctx context.Context, now time.Time) (*models.Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin export: %w", err)
	}
	defer tx.Rollback(ctx)

	snap := &models.Snapshot{ExportedAt: now.UTC()}
	if snap.Users, err = collect(ctx, tx, `SELECT `+userColumns+` FROM users ORDER BY created_at`, scanUser); err != nil {
		return nil, fmt.Errorf("failed to export users: %w", err)
	}
	if snap.ParkingSpots, err = collect(ctx, tx, `SELECT `+spotColumns+` FROM parking_spots ORDER BY id`, scanSpot); err != nil {
		return nil, fmt.Errorf("failed to export parking spots: %w", err)
	}
	if snap.Messages, err = collect(ctx, tx, `SELECT `+messageColumns+` FROM messages ORDER BY id`, scanMessage); err != nil {
		return nil, fmt.Errorf("failed to export messages: %w", err)
	}
	if snap.GuestPasses, err = collect(ctx, tx, `SELECT `+guestPassColumns+` FROM guest_passes ORDER BY id`, scanGuestPass); err != nil {
		return nil, fmt.Errorf("failed to export guest passes: %w", err)
	}
	if snap.Announcements, err = collect(ctx, tx, `SELECT id, admin_id, text, created_at FROM announcements ORDER BY id`, scanAnnouncement); err != nil {
		return nil, fmt.Errorf("failed to export announcements: %w", err)
	}
	if snap.Reminders, err = collect(ctx, tx, `SELECT `+reminderColumns+` FROM reminders ORDER BY id`, scanReminder); err != nil {
		return nil, fmt.Errorf("failed to export reminders: %w", err)
	}
	if snap.Moderators, err = collect(ctx, tx, `SELECT telegram_id, added_by, created_at FROM moderators ORDER BY created_at`, scanModerator); err != nil {
		return nil, fmt.Errorf("failed to export moderators: %w", err)
	}
	return snap, nil
}

// Import replays a snapshot row by row. Users and spot ownerships are upserted,
// append-only tables keep their primary keys and have their sequences reset.
// Import is not atomic: on error it returns the counts processed so far.
func (r *SnapshotRepository) Import(ctx context.Context, snap *models.Snapshot) (models.ImportCounts, error) {
	var counts models.ImportCounts

	for _, u := range snap.Users {
		status := u.Status
		if !status.Valid() {
			status = models.StatusPending
		}
		query := `
			INSERT INTO users (telegram_id, username, name, status, push_token, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (telegram_id) DO UPDATE
			SET username = EXCLUDED.username, name = EXCLUDED.name, status = EXCLUDED.status,
				push_token = COALESCE(EXCLUDED.push_token, users.push_token)
		`
		if _, err := r.db.Exec(ctx, query, u.TelegramID, u.Username, u.Name, string(status), u.PushToken, orNow(u.CreatedAt)); err != nil {
			return counts, fmt.Errorf("failed to import user %d: %w", u.TelegramID, err)
		}
		counts.Users++
	}

	for _, s := range snap.ParkingSpots {
		query := `
			INSERT INTO parking_spots (spot_number, user_id, is_temporary_free, free_until, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (spot_number, user_id) DO UPDATE
			SET is_temporary_free = EXCLUDED.is_temporary_free, free_until = EXCLUDED.free_until
		`
		if _, err := r.db.Exec(ctx, query, s.SpotNumber, s.UserID, s.IsTemporaryFree, s.FreeUntil, orNow(s.CreatedAt)); err != nil {
			return counts, fmt.Errorf("failed to import spot %d: %w", s.SpotNumber, err)
		}
		counts.ParkingSpots++
	}

	for _, m := range snap.Messages {
		source := m.Source
		if source == "" {
			source = models.SourcePrivate
		}
		query := `
			INSERT INTO messages (id, from_user_id, to_spot, message_text, reply_text, source, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`
		if _, err := r.db.Exec(ctx, query, m.ID, m.FromUserID, m.ToSpot, m.MessageText, m.ReplyText, string(source), orNow(m.CreatedAt)); err != nil {
			return counts, fmt.Errorf("failed to import message %d: %w", m.ID, err)
		}
		counts.Messages++
	}
	if err := r.resetSequence(ctx, "messages"); err != nil {
		return counts, err
	}

	for _, g := range snap.GuestPasses {
		query := `
			INSERT INTO guest_passes (id, host_user_id, guest_info, spot_number, expires_at, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`
		if _, err := r.db.Exec(ctx, query, g.ID, g.HostUserID, g.GuestInfo, g.SpotNumber, g.ExpiresAt, g.IsActive, orNow(g.CreatedAt)); err != nil {
			return counts, fmt.Errorf("failed to import guest pass %d: %w", g.ID, err)
		}
		counts.GuestPasses++
	}
	if err := r.resetSequence(ctx, "guest_passes"); err != nil {
		return counts, err
	}

	for _, a := range snap.Announcements {
		query := `
			INSERT INTO announcements (id, admin_id, text, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`
		if _, err := r.db.Exec(ctx, query, a.ID, a.AdminID, a.Text, orNow(a.CreatedAt)); err != nil {
			return counts, fmt.Errorf("failed to import announcement %d: %w", a.ID, err)
		}
		counts.Announcements++
	}
	if err := r.resetSequence(ctx, "announcements"); err != nil {
		return counts, err
	}

	for _, rm := range snap.Reminders {
		query := `
			INSERT INTO reminders (id, user_id, spot_number, text, remind_at, fired, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`
		if _, err := r.db.Exec(ctx, query, rm.ID, rm.UserID, rm.SpotNumber, rm.Text, rm.RemindAt, rm.Fired, orNow(rm.CreatedAt)); err != nil {
			return counts, fmt.Errorf("failed to import reminder %d: %w", rm.ID, err)
		}
		counts.Reminders++
	}
	if err := r.resetSequence(ctx, "reminders"); err != nil {
		return counts, err
	}

	for _, m := range snap.Moderators {
		query := `
			INSERT INTO moderators (telegram_id, added_by, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (telegram_id) DO NOTHING
		`
		if _, err := r.db.Exec(ctx, query, m.TelegramID, m.AddedBy, orNow(m.CreatedAt)); err != nil {
			return counts, fmt.Errorf("failed to import moderator %d: %w", m.TelegramID, err)
		}
		counts.Moderators++
	}

	return counts, nil
}

// resetSequence moves the serial sequence of table past its largest id.
// table is always one of the constant names above.
func (r *SnapshotRepository) resetSequence(ctx context.Context, table string) error {
	query := fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE((SELECT MAX(id) FROM %[1]s), 0) + 1, false)`,
		table,
	)
	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to reset %s sequence: %w", table, err)
	}
	return nil
}

func collect[T any](ctx context.Context, q querier, query string, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanAnnouncement(row pgx.Row) (*models.Announcement, error) {
	var a models.Announcement
	if err := row.Scan(&a.ID, &a.AdminID, &a.Text, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanModerator(row pgx.Row) (*models.Moderator, error) {
	var m models.Moderator
	if err := row.Scan(&m.TelegramID, &m.AddedBy, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
