package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/SigmaChatSync/internal/models"
)

const conversationColumns = `
	id, sender_id, sender_name, sender_image,
	receiver_id, receiver_name, receiver_image,
	last_message, last_message_at
`

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

type UpsertConversationInput struct {
	SenderID      string
	SenderName    string
	SenderImage   string
	ReceiverID    string
	ReceiverName  string
	ReceiverImage string
	LastMessage   string
	SentAt        time.Time
}

// Upsert records the latest message of the pair. The first writer of a pair
// becomes the record's sender; later writes only move last_message and
// last_message_at, whichever side sends.
func (r *ConversationRepository) Upsert(
	ctx context.Context,
	input UpsertConversationInput,
) (*models.ConversationRecord, error) {
	query := `
		INSERT INTO conversations (
			sender_id, sender_name, sender_image,
			receiver_id, receiver_name, receiver_image,
			last_message, last_message_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ((LEAST(sender_id, receiver_id)), (GREATEST(sender_id, receiver_id)))
		DO UPDATE SET
			last_message = EXCLUDED.last_message,
			last_message_at = EXCLUDED.last_message_at
		RETURNING ` + conversationColumns

	return scanConversation(r.db.QueryRow(
		ctx,
		query,
		input.SenderID,
		input.SenderName,
		input.SenderImage,
		input.ReceiverID,
		input.ReceiverName,
		input.ReceiverImage,
		input.LastMessage,
		input.SentAt,
	))
}

func (r *ConversationRepository) ListByParticipant(
	ctx context.Context,
	role models.Role,
	userID string,
) ([]models.ConversationRecord, error) {
	column, err := roleColumn(role)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE ` + column + ` = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.ConversationRecord, 0)
	for rows.Next() {
		record, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// GetForParticipant returns pgx.ErrNoRows when the record exists but does not
// match the role filter.
func (r *ConversationRepository) GetForParticipant(
	ctx context.Context,
	conversationID string,
	role models.Role,
	userID string,
) (*models.ConversationRecord, error) {
	column, err := roleColumn(role)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1 AND ` + column + ` = $2
	`
	return scanConversation(r.db.QueryRow(ctx, query, conversationID, userID))
}

func roleColumn(role models.Role) (string, error) {
	switch role {
	case models.RoleSender:
		return "sender_id", nil
	case models.RoleReceiver:
		return "receiver_id", nil
	default:
		return "", fmt.Errorf("unknown subscription role %q", role)
	}
}

func scanConversation(row pgx.Row) (*models.ConversationRecord, error) {
	var record models.ConversationRecord
	if err := row.Scan(
		&record.ID,
		&record.SenderID,
		&record.SenderName,
		&record.SenderImage,
		&record.ReceiverID,
		&record.ReceiverName,
		&record.ReceiverImage,
		&record.LastMessage,
		&record.Timestamp,
	); err != nil {
		return nil, err
	}
	return &record, nil
}
