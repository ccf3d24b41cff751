package repository

import (
	"context"
	"errors"
	"fmt"

	"parking-bot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = `id, from_user_id, to_spot, message_text, reply_text, source, created_at`

// MessageRepository handles database operations for relayed messages
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create appends a message and returns its ID
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) (int64, error) {
	query := `
		INSERT INTO messages (from_user_id, to_spot, message_text, source)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, msg.FromUserID, msg.ToSpot, msg.MessageText, string(msg.Source)).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create message: %w", err)
	}
	return msg.ID, nil
}

// SetReply stores the owner's reply to a message
func (r *MessageRepository) SetReply(ctx context.Context, id int64, reply string) error {
	query := `UPDATE messages SET reply_text = $1 WHERE id = $2`
	result, err := r.db.Exec(ctx, query, reply, id)
	if err != nil {
		return fmt.Errorf("failed to set message reply: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetByID retrieves a message by ID
func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	msg, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListForSpot returns the most recent messages addressed to a spot
func (r *MessageRepository) ListForSpot(ctx context.Context, spotNumber int, limit int) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE to_spot = $1 ORDER BY id DESC LIMIT $2`
	return r.list(ctx, query, spotNumber, limit)
}

// ListAll returns every message in insertion order
func (r *MessageRepository) ListAll(ctx context.Context) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages ORDER BY id`
	return r.list(ctx, query)
}

func (r *MessageRepository) list(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		msg    models.Message
		source string
	)
	err := row.Scan(&msg.ID, &msg.FromUserID, &msg.ToSpot, &msg.MessageText, &msg.ReplyText, &source, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	msg.Source = models.MessageSource(source)
	return &msg, nil
}
