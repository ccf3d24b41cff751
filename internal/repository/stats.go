package repository

import (
	"context"
	"fmt"
	"time"

	"parking-bot/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StatsRepository computes aggregate counters
type StatsRepository struct {
	db *pgxpool.Pool
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{db: db}
}

// Stats returns the counters shown by the admin stats command
func (r *StatsRepository) Stats(ctx context.Context, now time.Time) (*models.Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE status = 'approved'),
			(SELECT COUNT(*) FROM users WHERE status = 'pending'),
			(SELECT COUNT(DISTINCT spot_number) FROM parking_spots),
			(SELECT COUNT(DISTINCT spot_number) FROM parking_spots WHERE is_temporary_free = TRUE),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM guest_passes WHERE is_active = TRUE AND expires_at > $1),
			(SELECT COUNT(*) FROM reminders WHERE NOT fired)
	`
	var s models.Stats
	err := r.db.QueryRow(ctx, query, now).Scan(
		&s.UsersTotal,
		&s.UsersApproved,
		&s.UsersPending,
		&s.SpotsTotal,
		&s.SpotsFree,
		&s.MessagesTotal,
		&s.GuestsActive,
		&s.RemindersPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &s, nil
}
