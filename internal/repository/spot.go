package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parking-bot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const spotColumns = `id, spot_number, user_id, is_temporary_free, free_until, created_at`

// SpotRepository handles database operations for parking spots
type SpotRepository struct {
	db *pgxpool.Pool
}

// NewSpotRepository creates a new spot repository
func NewSpotRepository(db *pgxpool.Pool) *SpotRepository {
	return &SpotRepository{db: db}
}

// AssignExclusive gives a spot to a user only if nobody else owns it.
// The check and the insert run under a transaction-scoped advisory lock on the spot
// number, so two concurrent claims of an unowned spot cannot both succeed.
func (r *SpotRepository) AssignExclusive(ctx context.Context, spotNumber int, userID int64) (models.AssignResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.AssignTaken, fmt.Errorf("failed to begin spot assignment: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(spotNumber)); err != nil {
		return models.AssignTaken, fmt.Errorf("failed to lock spot: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT user_id FROM parking_spots WHERE spot_number = $1`, spotNumber)
	if err != nil {
		return models.AssignTaken, fmt.Errorf("failed to check spot owners: %w", err)
	}
	owners, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return models.AssignTaken, fmt.Errorf("failed to scan spot owners: %w", err)
	}
	for _, owner := range owners {
		if owner == userID {
			return models.AssignAlreadyOwned, nil
		}
	}
	if len(owners) > 0 {
		return models.AssignTaken, nil
	}

	query := `INSERT INTO parking_spots (spot_number, user_id) VALUES ($1, $2)`
	if _, err := tx.Exec(ctx, query, spotNumber, userID); err != nil {
		return models.AssignTaken, fmt.Errorf("failed to assign spot: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.AssignTaken, fmt.Errorf("failed to commit spot assignment: %w", err)
	}
	return models.AssignCreated, nil
}

// AddOwner adds a user as a (co-)owner of a spot. It returns false when the
// pairing already exists.
func (r *SpotRepository) AddOwner(ctx context.Context, spotNumber int, userID int64) (bool, error) {
	query := `
		INSERT INTO parking_spots (spot_number, user_id)
		VALUES ($1, $2)
		ON CONFLICT (spot_number, user_id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query, spotNumber, userID)
	if err != nil {
		return false, fmt.Errorf("failed to add spot owner: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Get returns the oldest ownership row of a spot
func (r *SpotRepository) Get(ctx context.Context, spotNumber int) (*models.ParkingSpot, error) {
	query := `SELECT ` + spotColumns + ` FROM parking_spots WHERE spot_number = $1 ORDER BY id LIMIT 1`
	spot, err := scanSpot(r.db.QueryRow(ctx, query, spotNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("spot %d: %w", spotNumber, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get spot: %w", err)
	}
	return spot, nil
}

// Owners returns every user owning the spot
func (r *SpotRepository) Owners(ctx context.Context, spotNumber int) ([]*models.User, error) {
	query := `
		SELECT u.telegram_id, u.username, u.name, u.status, u.push_token, u.created_at
		FROM users u
		JOIN parking_spots ps ON u.telegram_id = ps.user_id
		WHERE ps.spot_number = $1
		ORDER BY ps.id
	`
	rows, err := r.db.Query(ctx, query, spotNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get spot owners: %w", err)
	}
	defer rows.Close()

	var owners []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan spot owner: %w", err)
		}
		owners = append(owners, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spot owners: %w", err)
	}
	return owners, nil
}

// ListByUser returns the spots of a user ordered by number
func (r *SpotRepository) ListByUser(ctx context.Context, userID int64) ([]*models.ParkingSpot, error) {
	query := `SELECT ` + spotColumns + ` FROM parking_spots WHERE user_id = $1 ORDER BY spot_number`
	return r.list(ctx, query, userID)
}

// ListFree returns the spots currently marked as temporarily free
func (r *SpotRepository) ListFree(ctx context.Context) ([]*models.ParkingSpot, error) {
	query := `
		SELECT DISTINCT ON (spot_number) ` + spotColumns + `
		FROM parking_spots
		WHERE is_temporary_free = TRUE
		ORDER BY spot_number, id
	`
	return r.list(ctx, query)
}

// ListAll returns every ownership row
func (r *SpotRepository) ListAll(ctx context.Context) ([]*models.ParkingSpot, error) {
	query := `SELECT ` + spotColumns + ` FROM parking_spots ORDER BY spot_number, id`
	return r.list(ctx, query)
}

// Remove deletes the ownership of one user over a spot
func (r *SpotRepository) Remove(ctx context.Context, spotNumber int, userID int64) (bool, error) {
	query := `DELETE FROM parking_spots WHERE spot_number = $1 AND user_id = $2`
	result, err := r.db.Exec(ctx, query, spotNumber, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove spot: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// RemoveAll deletes every ownership row of a spot
func (r *SpotRepository) RemoveAll(ctx context.Context, spotNumber int) (int64, error) {
	query := `DELETE FROM parking_spots WHERE spot_number = $1`
	result, err := r.db.Exec(ctx, query, spotNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to remove spot owners: %w", err)
	}
	return result.RowsAffected(), nil
}

// SetFree marks a spot as temporarily free (optionally until a deadline) or occupied
func (r *SpotRepository) SetFree(ctx context.Context, spotNumber int, free bool, until *time.Time) error {
	if !free {
		until = nil
	}
	query := `
		UPDATE parking_spots
		SET is_temporary_free = $1, free_until = $2
		WHERE spot_number = $3
	`
	_, err := r.db.Exec(ctx, query, free, until, spotNumber)
	if err != nil {
		return fmt.Errorf("failed to set spot free flag: %w", err)
	}
	return nil
}

// ReleaseExpired clears free flags whose deadline has passed and returns the
// number of rows changed
func (r *SpotRepository) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE parking_spots
		SET is_temporary_free = FALSE, free_until = NULL
		WHERE is_temporary_free = TRUE AND free_until IS NOT NULL AND free_until <= $1
	`
	result, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired free spots: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *SpotRepository) list(ctx context.Context, query string, args ...any) ([]*models.ParkingSpot, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list spots: %w", err)
	}
	defer rows.Close()

	var spots []*models.ParkingSpot
	for rows.Next() {
		spot, err := scanSpot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan spot: %w", err)
		}
		spots = append(spots, spot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spots: %w", err)
	}
	return spots, nil
}

func scanSpot(row pgx.Row) (*models.ParkingSpot, error) {
	var spot models.ParkingSpot
	err := row.Scan(&spot.ID, &spot.SpotNumber, &spot.UserID, &spot.IsTemporaryFree, &spot.FreeUntil, &spot.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &spot, nil
}
