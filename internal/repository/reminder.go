package repository

import (
	"context"
	"fmt"
	"time"

	"parking-bot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reminderColumns = `id, user_id, spot_number, text, remind_at, fired, created_at`

// ReminderRepository handles database operations for reminders
type ReminderRepository struct {
	db *pgxpool.Pool
}

// NewReminderRepository creates a new reminder repository
func NewReminderRepository(db *pgxpool.Pool) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Create schedules a reminder
func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) (int64, error) {
	query := `
		INSERT INTO reminders (user_id, spot_number, text, remind_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, reminder.UserID, reminder.SpotNumber, reminder.Text, reminder.RemindAt).
		Scan(&reminder.ID, &reminder.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create reminder: %w", err)
	}
	return reminder.ID, nil
}

// ListPending returns the reminders of a user that have not fired yet
func (r *ReminderRepository) ListPending(ctx context.Context, userID int64) ([]*models.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE user_id = $1 AND NOT fired ORDER BY remind_at`
	return r.list(ctx, query, userID)
}

// ListAll returns every reminder in insertion order
func (r *ReminderRepository) ListAll(ctx context.Context) ([]*models.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders ORDER BY id`
	return r.list(ctx, query)
}

// ClaimDue marks every due reminder as fired and returns the claimed rows.
// A reminder is returned by exactly one call.
func (r *ReminderRepository) ClaimDue(ctx context.Context, now time.Time) ([]*models.Reminder, error) {
	query := `
		UPDATE reminders SET fired = TRUE
		WHERE NOT fired AND remind_at <= $1
		RETURNING ` + reminderColumns
	return r.list(ctx, query, now)
}

func (r *ReminderRepository) list(ctx context.Context, query string, args ...any) ([]*models.Reminder, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminders: %w", err)
	}
	return reminders, nil
}

func scanReminder(row pgx.Row) (*models.Reminder, error) {
	var reminder models.Reminder
	err := row.Scan(&reminder.ID, &reminder.UserID, &reminder.SpotNumber, &reminder.Text, &reminder.RemindAt, &reminder.Fired, &reminder.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}
