package repository

import (
	"context"
	"errors"
	"fmt"

	"parking-bot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `telegram_id, username, name, status, push_token, created_at`

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert inserts a user or updates the username and name of an existing one.
// The status is only written on insert.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	status := user.Status
	if !status.Valid() {
		status = models.StatusPending
	}
	query := `
		INSERT INTO users (telegram_id, username, name, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username, name = EXCLUDED.name
	`
	_, err := r.db.Exec(ctx, query, user.TelegramID, user.Username, user.Name, string(status))
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by telegram ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// SetStatus changes the registration status of a user
func (r *UserRepository) SetStatus(ctx context.Context, id int64, status models.UserStatus) error {
	query := `UPDATE users SET status = $1 WHERE telegram_id = $2`
	result, err := r.db.Exec(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to set user status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetPushToken stores the APNs device token of a user
func (r *UserRepository) SetPushToken(ctx context.Context, id int64, pushToken *string) error {
	query := `UPDATE users SET push_token = $1 WHERE telegram_id = $2`
	result, err := r.db.Exec(ctx, query, pushToken, id)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListByStatus returns users with the given status, oldest first
func (r *UserRepository) ListByStatus(ctx context.Context, status models.UserStatus) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE status = $1 ORDER BY created_at`
	return r.list(ctx, query, string(status))
}

// ListAll returns every user, oldest first
func (r *UserRepository) ListAll(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	return r.list(ctx, query)
}

func (r *UserRepository) list(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		user   models.User
		status string
	)
	err := row.Scan(&user.TelegramID, &user.Username, &user.Name, &status, &user.PushToken, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	user.Status = models.UserStatus(status)
	return &user, nil
}
