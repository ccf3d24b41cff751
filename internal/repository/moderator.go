package repository

import (
	"context"
	"fmt"

	"parking-bot/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModeratorRepository handles database operations for the persisted moderator set
type ModeratorRepository struct {
	db *pgxpool.Pool
}

// NewModeratorRepository creates a new moderator repository
func NewModeratorRepository(db *pgxpool.Pool) *ModeratorRepository {
	return &ModeratorRepository{db: db}
}

// Add inserts a moderator. It returns false if the identity was already one.
func (r *ModeratorRepository) Add(ctx context.Context, id, addedBy int64) (bool, error) {
	query := `
		INSERT INTO moderators (telegram_id, added_by)
		VALUES ($1, $2)
		ON CONFLICT (telegram_id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query, id, addedBy)
	if err != nil {
		return false, fmt.Errorf("failed to add moderator: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Remove deletes a moderator
func (r *ModeratorRepository) Remove(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM moderators WHERE telegram_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to remove moderator: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// IsModerator reports whether the identity is in the persisted set
func (r *ModeratorRepository) IsModerator(ctx context.Context, id int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM moderators WHERE telegram_id = $1)`
	if err := r.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check moderator: %w", err)
	}
	return exists, nil
}

// List returns the persisted moderators
func (r *ModeratorRepository) List(ctx context.Context) ([]*models.Moderator, error) {
	rows, err := r.db.Query(ctx, `SELECT telegram_id, added_by, created_at FROM moderators ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list moderators: %w", err)
	}
	defer rows.Close()

	var moderators []*models.Moderator
	for rows.Next() {
		var m models.Moderator
		if err := rows.Scan(&m.TelegramID, &m.AddedBy, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan moderator: %w", err)
		}
		moderators = append(moderators, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating moderators: %w", err)
	}
	return moderators, nil
}
