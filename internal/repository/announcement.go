package repository

import (
	"context"
	"fmt"

	"parking-bot/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AnnouncementRepository handles database operations for announcements
type AnnouncementRepository struct {
	db *pgxpool.Pool
}

// NewAnnouncementRepository creates a new announcement repository
func NewAnnouncementRepository(db *pgxpool.Pool) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// Create appends an announcement
func (r *AnnouncementRepository) Create(ctx context.Context, a *models.Announcement) (int64, error) {
	query := `INSERT INTO announcements (admin_id, text) VALUES ($1, $2) RETURNING id, created_at`
	if err := r.db.QueryRow(ctx, query, a.AdminID, a.Text).Scan(&a.ID, &a.CreatedAt); err != nil {
		return 0, fmt.Errorf("failed to create announcement: %w", err)
	}
	return a.ID, nil
}

// ListAll returns every announcement in insertion order
func (r *AnnouncementRepository) ListAll(ctx context.Context) ([]*models.Announcement, error) {
	query := `SELECT id, admin_id, text, created_at FROM announcements ORDER BY id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	defer rows.Close()

	var announcements []*models.Announcement
	for rows.Next() {
		var a models.Announcement
		if err := rows.Scan(&a.ID, &a.AdminID, &a.Text, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan announcement: %w", err)
		}
		announcements = append(announcements, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating announcements: %w", err)
	}
	return announcements, nil
}
