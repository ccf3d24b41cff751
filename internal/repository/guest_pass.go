package repository

import (
	"context"
	"fmt"
	"time"

	"parking-bot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const guestPassColumns = `id, host_user_id, guest_info, spot_number, expires_at, is_active, created_at`

// GuestPassRepository handles database operations for guest passes
type GuestPassRepository struct {
	db *pgxpool.Pool
}

// NewGuestPassRepository creates a new guest pass repository
func NewGuestPassRepository(db *pgxpool.Pool) *GuestPassRepository {
	return &GuestPassRepository{db: db}
}

// Create issues a new active guest pass
func (r *GuestPassRepository) Create(ctx context.Context, pass *models.GuestPass) (int64, error) {
	query := `
		INSERT INTO guest_passes (host_user_id, guest_info, spot_number, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_active, created_at
	`
	err := r.db.QueryRow(ctx, query, pass.HostUserID, pass.GuestInfo, pass.SpotNumber, pass.ExpiresAt).
		Scan(&pass.ID, &pass.IsActive, &pass.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create guest pass: %w", err)
	}
	return pass.ID, nil
}

// ListActive returns the passes of a host that are active and not yet expired
func (r *GuestPassRepository) ListActive(ctx context.Context, hostUserID int64, now time.Time) ([]*models.GuestPass, error) {
	query := `
		SELECT ` + guestPassColumns + `
		FROM guest_passes
		WHERE host_user_id = $1 AND is_active = TRUE AND expires_at > $2
		ORDER BY expires_at
	`
	return r.list(ctx, query, hostUserID, now)
}

// ListAll returns every guest pass in insertion order
func (r *GuestPassRepository) ListAll(ctx context.Context) ([]*models.GuestPass, error) {
	query := `SELECT ` + guestPassColumns + ` FROM guest_passes ORDER BY id`
	return r.list(ctx, query)
}

// Deactivate turns off one pass of the given host
func (r *GuestPassRepository) Deactivate(ctx context.Context, id, hostUserID int64) (bool, error) {
	query := `
		UPDATE guest_passes SET is_active = FALSE
		WHERE id = $1 AND host_user_id = $2 AND is_active = TRUE
	`
	result, err := r.db.Exec(ctx, query, id, hostUserID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate guest pass: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// DeactivateExpired turns off every active pass whose expiry has passed
func (r *GuestPassRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE guest_passes SET is_active = FALSE WHERE is_active = TRUE AND expires_at <= $1`
	result, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired guest passes: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *GuestPassRepository) list(ctx context.Context, query string, args ...any) ([]*models.GuestPass, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list guest passes: %w", err)
	}
	defer rows.Close()

	var passes []*models.GuestPass
	for rows.Next() {
		pass, err := scanGuestPass(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guest pass: %w", err)
		}
		passes = append(passes, pass)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating guest passes: %w", err)
	}
	return passes, nil
}

func scanGuestPass(row pgx.Row) (*models.GuestPass, error) {
	var pass models.GuestPass
	err := row.Scan(&pass.ID, &pass.HostUserID, &pass.GuestInfo, &pass.SpotNumber, &pass.ExpiresAt, &pass.IsActive, &pass.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &pass, nil
}
